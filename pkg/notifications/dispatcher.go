package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/clinicnotify/pkg/async"
	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/metrics"
)

// DefaultSendTimeout bounds a single channel publish.
const DefaultSendTimeout = 5 * time.Second

// abandonGrace is how long past the send timeout the dispatcher still waits
// for a transport that ignores its context.
const abandonGrace = 250 * time.Millisecond

// ReachUnknown is the receiver count a Transport reports when the publish
// left the process and local receivers cannot be counted.
const ReachUnknown = -1

// Transport publishes an envelope on a logical channel and reports how many
// live receivers accepted it, or ReachUnknown. Zero receivers is not an error.
type Transport interface {
	Publish(ctx context.Context, channel string, env Envelope) (int, error)
}

// ChannelKind labels the role of a channel in a dispatch.
type ChannelKind string

const (
	ChannelPrimary   ChannelKind = "primary"
	ChannelBackup    ChannelKind = "backup"
	ChannelBroadcast ChannelKind = "broadcast"
)

// Attempt is the outcome of one channel publish. Unconfirmed is set when the
// transport accepted the envelope but could not tell who received it.
type Attempt struct {
	Channel     string
	Kind        ChannelKind
	Reached     int
	Unconfirmed bool
	Err         error
	Duration    time.Duration
}

// Report collects the attempts of one dispatch.
type Report struct {
	Attempts []Attempt
}

// Reached sums receivers over all attempts.
func (r Report) Reached() int {
	total := 0
	for _, a := range r.Attempts {
		total += a.Reached
	}
	return total
}

// Unconfirmed reports whether any attempt was accepted without a receiver count.
func (r Report) Unconfirmed() bool {
	for _, a := range r.Attempts {
		if a.Unconfirmed {
			return true
		}
	}
	return false
}

// Err joins the errors of all failed attempts, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, a := range r.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrDispatch}, errs...)...)
}

// Status derives the delivery status to record. ok is false when the stored
// status should stay as it is: nobody was listening, or receivers could not
// be counted, and nothing failed hard.
func (r Report) Status() (status DeliveryStatus, ok bool) {
	if len(r.Attempts) == 0 {
		return "", false
	}
	failed := 0
	for _, a := range r.Attempts {
		if a.Reached > 0 {
			return DeliveryDelivered, true
		}
		if a.Err != nil {
			failed++
		}
	}
	if failed == len(r.Attempts) {
		return DeliveryFailed, true
	}
	return "", false
}

// Dispatcher pushes envelopes over a Transport. It never returns errors:
// every failure is logged, counted and left in the Report.
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSendTimeout bounds each channel publish. Non-positive values are ignored.
func WithSendTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithDispatcherLogger sets the logger for the Dispatcher.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher over t.
func NewDispatcher(t Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transport: t,
		timeout:   DefaultSendTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type target struct {
	channel string
	kind    ChannelKind
}

// SendToUser publishes env on both per-user channels concurrently. Both
// publishes always happen, so a connected client may see the payload twice.
func (d *Dispatcher) SendToUser(ctx context.Context, userID int64, env Envelope) Report {
	targets := []target{
		{channel: PrimaryChannel(userID), kind: ChannelPrimary},
		{channel: BackupChannel(userID), kind: ChannelBackup},
	}

	futures := make([]*async.Future[Attempt], len(targets))
	for i, t := range targets {
		futures[i] = async.Async(ctx, t, func(ctx context.Context, t target) (Attempt, error) {
			return d.publish(ctx, t, env), nil
		})
	}

	report := Report{Attempts: make([]Attempt, len(targets))}
	for i, f := range futures {
		report.Attempts[i] = d.await(ctx, f, targets[i], env)
	}

	if report.Reached() == 0 && report.Err() == nil && !report.Unconfirmed() {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "recipient has no live connection",
			logger.UserID(userID),
			logger.Event(env.Event),
		)
	}
	return report
}

// SendBroadcast publishes env once on the broadcast channel.
func (d *Dispatcher) SendBroadcast(ctx context.Context, env Envelope) Report {
	t := target{channel: BroadcastChannel, kind: ChannelBroadcast}
	f := async.Async(ctx, t, func(ctx context.Context, t target) (Attempt, error) {
		return d.publish(ctx, t, env), nil
	})
	return Report{Attempts: []Attempt{d.await(ctx, f, t, env)}}
}

// await collects one publish and records it. An abandoned publish is recorded
// here as failed; its late result is discarded.
func (d *Dispatcher) await(ctx context.Context, f *async.Future[Attempt], t target, env Envelope) Attempt {
	a, err := f.AwaitWithTimeout(d.timeout + abandonGrace)
	if err != nil {
		a = Attempt{Channel: t.channel, Kind: t.kind, Err: errors.Join(ErrDispatch, err), Duration: d.timeout}
	}
	d.record(ctx, env, a)
	return a
}

func (d *Dispatcher) publish(ctx context.Context, t target, env Envelope) (a Attempt) {
	a = Attempt{Channel: t.channel, Kind: t.kind}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			a.Err = errors.Join(ErrDispatch, panicError(r))
		}
		a.Duration = time.Since(start)
	}()

	n, err := d.transport.Publish(ctx, t.channel, env)
	if n < 0 {
		a.Unconfirmed = true
	} else {
		a.Reached = n
	}
	if err != nil {
		a.Err = errors.Join(ErrDispatch, err)
	}
	return a
}

func (d *Dispatcher) record(ctx context.Context, env Envelope, a Attempt) {
	outcome := metrics.OutcomeNoListener
	switch {
	case a.Err != nil:
		outcome = metrics.OutcomeError
	case a.Reached > 0:
		outcome = metrics.OutcomeDelivered
	case a.Unconfirmed:
		outcome = metrics.OutcomeRelayed
	}
	metrics.ObserveDispatch(string(a.Kind), outcome, a.Duration)

	if a.Err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "channel publish failed",
			logger.Channel(a.Channel),
			logger.Event(env.Event),
			logger.Duration(a.Duration),
			logger.Error(a.Err),
		)
		return
	}
	d.logger.LogAttrs(ctx, slog.LevelDebug, "channel publish",
		logger.Channel(a.Channel),
		logger.Event(env.Event),
		logger.Count(a.Reached),
	)
}
