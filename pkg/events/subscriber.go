package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/metrics"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
	"github.com/dmitrymomot/clinicnotify/pkg/requestid"
)

// Event results recorded in metrics.
const (
	ResultOK        = "ok"
	ResultMalformed = "malformed"
	ResultFailed    = "failed"
)

// Sink receives decoded domain events. *notifications.Notifier implements it.
type Sink interface {
	NotifyResultReady(ctx context.Context, ev notifications.ResultReady) (*notifications.Notification, error)
	NotifyAppointmentBooked(ctx context.Context, a notifications.Appointment) (*notifications.Notification, error)
	NotifyTestBooked(ctx context.Context, a notifications.Appointment) (*notifications.Notification, error)
	NotifyAppointmentStatusChanged(ctx context.Context, a notifications.Appointment, oldStatus, newStatus string) (*notifications.Notification, error)
	NotifyReminder(ctx context.Context, a notifications.Appointment) (*notifications.Notification, error)
	NotifyManual(ctx context.Context, recipientID int64, msg notifications.Message) (*notifications.Notification, error)
	NotifyBroadcast(ctx context.Context, msg notifications.Message) ([]notifications.Notification, error)
}

var _ Sink = (*notifications.Notifier)(nil)

type handler func(ctx context.Context, data []byte) error

// Subscriber consumes domain events from NATS and turns them into
// notifications. Malformed payloads are logged and dropped; there is no
// redelivery.
type Subscriber struct {
	nc       *nats.Conn
	sink     Sink
	prefix   string
	queue    string
	timeout  time.Duration
	logger   *slog.Logger
	handlers map[string]handler

	mu   sync.Mutex
	subs []*nats.Subscription
	base context.Context
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSubjectPrefix sets the subject prefix. Defaults to "clinic".
func WithSubjectPrefix(prefix string) Option {
	return func(s *Subscriber) {
		s.prefix = strings.TrimSuffix(prefix, ".")
	}
}

// WithQueueGroup joins every subscription to a queue group so replicas share
// the event stream. An empty group subscribes every replica to every event.
func WithQueueGroup(group string) Option {
	return func(s *Subscriber) {
		s.queue = group
	}
}

// WithHandlerTimeout bounds the handling of a single event.
func WithHandlerTimeout(d time.Duration) Option {
	return func(s *Subscriber) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSubscriber creates a subscriber. nc may be nil when events are fed
// through Handle directly.
func NewSubscriber(nc *nats.Conn, sink Sink, opts ...Option) *Subscriber {
	s := &Subscriber{
		nc:      nc,
		sink:    sink,
		prefix:  "clinic",
		timeout: 10 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("events"))
	s.handlers = map[string]handler{
		SubjectResultUploaded:      s.resultUploaded,
		SubjectAppointmentBooked:   s.appointmentBooked,
		SubjectTestBooked:          s.testBooked,
		SubjectAppointmentStatus:   s.statusChanged,
		SubjectAppointmentReminder: s.reminder,
		SubjectAdminMessage:        s.adminMessage,
		SubjectAdminBroadcast:      s.adminBroadcast,
	}
	return s
}

// Subject returns the full subject for suffix.
func (s *Subscriber) Subject(suffix string) string {
	if s.prefix == "" {
		return suffix
	}
	return s.prefix + "." + suffix
}

// Start subscribes to every routed subject. Handlers run on the NATS
// delivery goroutine of their subscription with a context derived from ctx.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs != nil {
		return ErrAlreadyStarted
	}
	s.base = context.WithoutCancel(ctx)

	subs := make([]*nats.Subscription, 0, len(Subjects))
	for _, suffix := range Subjects {
		subject := s.Subject(suffix)
		cb := func(msg *nats.Msg) {
			ctx := requestid.WithContext(s.base, requestid.Resolve(msg.Header.Get(requestid.Header)))
			_ = s.Handle(ctx, msg.Subject, msg.Data)
		}

		var (
			sub *nats.Subscription
			err error
		)
		if s.queue != "" {
			sub, err = s.nc.QueueSubscribe(subject, s.queue, cb)
		} else {
			sub, err = s.nc.Subscribe(subject, cb)
		}
		if err != nil {
			for _, prev := range subs {
				_ = prev.Unsubscribe()
			}
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	s.subs = subs

	s.logger.InfoContext(ctx, "event subscriber started",
		slog.String("prefix", s.prefix),
		slog.String("queue", s.queue),
		logger.Count(len(subs)),
	)
	return nil
}

// Stop drains every subscription so in-flight events finish.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handle routes one event by its full subject. It is exported so other
// transports and tests can feed events without NATS.
func (s *Subscriber) Handle(ctx context.Context, subject string, data []byte) error {
	suffix := strings.TrimPrefix(subject, s.prefix+".")
	h, ok := s.handlers[suffix]
	if !ok {
		metrics.EventReceived("unknown", ResultMalformed)
		s.logger.WarnContext(ctx, "dropping event on unknown subject", logger.Subject(subject))
		return fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := h(ctx, data)
	switch {
	case err == nil:
		metrics.EventReceived(suffix, ResultOK)
		s.logger.DebugContext(ctx, "event handled", logger.Subject(subject))
	case errors.Is(err, ErrMalformedPayload):
		metrics.EventReceived(suffix, ResultMalformed)
		s.logger.WarnContext(ctx, "dropping malformed event", logger.Subject(subject), logger.Error(err))
	default:
		metrics.EventReceived(suffix, ResultFailed)
		s.logger.ErrorContext(ctx, "event handling failed", logger.Subject(subject), logger.Error(err))
	}
	return err
}

func (s *Subscriber) resultUploaded(ctx context.Context, data []byte) error {
	var ev notifications.ResultReady
	if err := decode(data, &ev); err != nil {
		return err
	}
	if err := validatePayload(&ev); err != nil {
		return err
	}
	_, err := s.sink.NotifyResultReady(ctx, ev)
	return err
}

func (s *Subscriber) appointmentBooked(ctx context.Context, data []byte) error {
	return s.appointment(ctx, data, s.sink.NotifyAppointmentBooked)
}

func (s *Subscriber) testBooked(ctx context.Context, data []byte) error {
	return s.appointment(ctx, data, s.sink.NotifyTestBooked)
}

func (s *Subscriber) reminder(ctx context.Context, data []byte) error {
	return s.appointment(ctx, data, s.sink.NotifyReminder)
}

func (s *Subscriber) appointment(ctx context.Context, data []byte, notify func(context.Context, notifications.Appointment) (*notifications.Notification, error)) error {
	var a notifications.Appointment
	if err := decode(data, &a); err != nil {
		return err
	}
	if err := validatePayload(&a); err != nil {
		return err
	}
	_, err := notify(ctx, a)
	return err
}

func (s *Subscriber) statusChanged(ctx context.Context, data []byte) error {
	var ev StatusChanged
	if err := decode(data, &ev); err != nil {
		return err
	}
	if err := validatePayload(&ev); err != nil {
		return err
	}
	_, err := s.sink.NotifyAppointmentStatusChanged(ctx, ev.Appointment, ev.OldStatus, ev.NewStatus)
	return err
}

func (s *Subscriber) adminMessage(ctx context.Context, data []byte) error {
	var m AdminMessage
	if err := decode(data, &m); err != nil {
		return err
	}
	if err := validatePayload(&m); err != nil {
		return err
	}
	_, err := s.sink.NotifyManual(ctx, m.RecipientID, m.Message)
	return err
}

func (s *Subscriber) adminBroadcast(ctx context.Context, data []byte) error {
	var m notifications.Message
	if err := decode(data, &m); err != nil {
		return err
	}
	if err := validatePayload(&m); err != nil {
		return err
	}
	_, err := s.sink.NotifyBroadcast(ctx, m)
	return err
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(ErrMalformedPayload, err)
	}
	return nil
}
