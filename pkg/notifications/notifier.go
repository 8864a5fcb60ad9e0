package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/clinicnotify/pkg/async"
	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/metrics"
)

// DefaultStatusTimeout bounds the delivery-status write after a dispatch.
const DefaultStatusTimeout = 5 * time.Second

// Sender pushes envelopes to live connections. *Dispatcher implements it.
type Sender interface {
	SendToUser(ctx context.Context, userID int64, env Envelope) Report
	SendBroadcast(ctx context.Context, env Envelope) Report
}

// Notifier is the entry point business services call when something
// notification-worthy happens. Every Notify call stores the notification
// synchronously and pushes it in the background; only recipient lookup and
// persistence failures reach the caller.
type Notifier struct {
	storage       Storage // writes go here; a transaction in Tx mode
	statusStorage Storage // delivery status is always written outside any transaction
	directory     RecipientDirectory
	sender        Sender
	mapper        *Mapper
	tasks         *async.Group
	statusTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
	queue         *txQueue
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithNotifierLogger sets the logger for the Notifier.
func WithNotifierLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithMapper replaces the default template mapper.
func WithMapper(m *Mapper) NotifierOption {
	return func(n *Notifier) {
		if m != nil {
			n.mapper = m
		}
	}
}

// WithStatusTimeout bounds the delivery-status update after each dispatch.
func WithStatusTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.statusTimeout = d
		}
	}
}

// WithNotifierClock overrides the clock used for envelope timestamps and sent-at.
func WithNotifierClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// NewNotifier creates a Notifier.
func NewNotifier(storage Storage, directory RecipientDirectory, sender Sender, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		storage:       storage,
		statusStorage: storage,
		directory:     directory,
		sender:        sender,
		mapper:        NewMapper(),
		tasks:         &async.Group{},
		statusTimeout: DefaultStatusTimeout,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyResultReady tells a patient their lab result is available.
func (n *Notifier) NotifyResultReady(ctx context.Context, ev ResultReady) (*Notification, error) {
	return n.notifyRecipient(ctx, ev.PatientID, func(r Recipient) Draft {
		return n.mapper.ResultReady(r, ev)
	})
}

// NotifyAppointmentBooked confirms a newly scheduled appointment.
func (n *Notifier) NotifyAppointmentBooked(ctx context.Context, a Appointment) (*Notification, error) {
	return n.notifyRecipient(ctx, a.PatientID, func(r Recipient) Draft {
		return n.mapper.AppointmentBooked(r, a)
	})
}

// NotifyTestBooked confirms a booked lab test.
func (n *Notifier) NotifyTestBooked(ctx context.Context, a Appointment) (*Notification, error) {
	return n.notifyRecipient(ctx, a.PatientID, func(r Recipient) Draft {
		return n.mapper.TestBooked(r, a)
	})
}

// NotifyAppointmentStatusChanged reports an appointment status transition.
func (n *Notifier) NotifyAppointmentStatusChanged(ctx context.Context, a Appointment, oldStatus, newStatus string) (*Notification, error) {
	return n.notifyRecipient(ctx, a.PatientID, func(r Recipient) Draft {
		return n.mapper.AppointmentStatusChanged(r, a, oldStatus, newStatus)
	})
}

// NotifyReminder reminds a patient of an upcoming appointment.
func (n *Notifier) NotifyReminder(ctx context.Context, a Appointment) (*Notification, error) {
	return n.notifyRecipient(ctx, a.PatientID, func(r Recipient) Draft {
		return n.mapper.AppointmentReminder(r, a)
	})
}

// NotifyManual sends an admin-authored message to one recipient.
func (n *Notifier) NotifyManual(ctx context.Context, recipientID int64, msg Message) (*Notification, error) {
	return n.notifyRecipient(ctx, recipientID, func(r Recipient) Draft {
		return n.mapper.Manual(r, msg)
	})
}

// NotifyBroadcast stores one notification per known patient, pushes each to
// its owner, then pushes the announcement once on the broadcast channel.
// On a persistence failure the rows stored so far are returned and dispatched.
func (n *Notifier) NotifyBroadcast(ctx context.Context, msg Message) ([]Notification, error) {
	if strings.TrimSpace(msg.Title) == "" || strings.TrimSpace(msg.Message) == "" {
		return nil, errInvalid("title and message are required")
	}

	recipients, err := n.directory.ListRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	draft := n.mapper.Broadcast(msg)
	created := make([]Notification, 0, len(recipients))
	var createErr error
	for _, r := range recipients {
		d := draft.For(r.ID)
		d.Event = EventNotification
		rec, err := n.store(ctx, d)
		if err != nil {
			createErr = err
			break
		}
		created = append(created, *clone(&rec))
		n.schedule(ctx, func(ctx context.Context) { n.deliver(ctx, rec, d) })
	}

	n.schedule(ctx, func(ctx context.Context) {
		env := NewEnvelope(&draft.Notification, EventBroadcast, draft.Data, n.now())
		report := n.sender.SendBroadcast(ctx, env)
		n.logger.LogAttrs(ctx, slog.LevelDebug, "broadcast pushed",
			logger.Count(report.Reached()),
			logger.Category(string(CategoryBroadcast)),
		)
	})

	n.logger.LogAttrs(ctx, slog.LevelInfo, "broadcast notification stored",
		logger.Count(len(created)),
	)
	return created, createErr
}

// History returns the recipient's notifications, newest first.
func (n *Notifier) History(ctx context.Context, recipientID int64, opts ListOptions) ([]Notification, error) {
	return n.storage.ListByRecipient(ctx, recipientID, opts)
}

// ListAll returns every notification. Admin only.
func (n *Notifier) ListAll(ctx context.Context, opts ListOptions) ([]Notification, error) {
	return n.storage.ListAll(ctx, opts)
}

// MarkRead marks a recipient's notification read. Repeated calls are no-ops.
func (n *Notifier) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	return n.storage.MarkRead(ctx, id, recipientID)
}

// MarkAllRead marks all of the recipient's notifications read.
func (n *Notifier) MarkAllRead(ctx context.Context, recipientID int64) (int, error) {
	return n.storage.MarkAllRead(ctx, recipientID)
}

// Delete removes a recipient's notification.
func (n *Notifier) Delete(ctx context.Context, id, recipientID int64) error {
	return n.storage.Delete(ctx, id, recipientID)
}

// CountUnread returns the recipient's unread count.
func (n *Notifier) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	return n.storage.CountUnread(ctx, recipientID)
}

// Wait blocks until all background dispatches finished or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	return n.tasks.Wait(ctx)
}

// Close stops accepting dispatches and waits for the in-flight ones.
func (n *Notifier) Close(ctx context.Context) error {
	return n.tasks.Close(ctx)
}

// Tx returns a Notifier that writes through storage, typically bound to the
// caller's database transaction, and holds every dispatch until Flush.
// Call Flush after commit, or Discard after rollback.
func (n *Notifier) Tx(storage Storage) *Notifier {
	tx := *n
	tx.storage = storage
	tx.queue = &txQueue{}
	return &tx
}

// Flush schedules the dispatches held by a Tx notifier. It is a no-op otherwise.
func (n *Notifier) Flush(ctx context.Context) {
	if n.queue == nil {
		return
	}
	for _, task := range n.queue.drain() {
		n.start(ctx, task)
	}
}

// Discard drops the dispatches held by a Tx notifier.
func (n *Notifier) Discard() {
	if n.queue != nil {
		_ = n.queue.drain()
	}
}

func (n *Notifier) notifyRecipient(ctx context.Context, recipientID int64, build func(Recipient) Draft) (*Notification, error) {
	r, err := n.directory.FindRecipient(ctx, recipientID)
	if err != nil {
		if errors.Is(err, ErrRecipientNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrRecipientNotFound, recipientID)
		}
		return nil, fmt.Errorf("find recipient %d: %w", recipientID, err)
	}

	d := build(r)
	rec, err := n.store(ctx, d)
	if err != nil {
		return nil, err
	}
	n.schedule(ctx, func(ctx context.Context) { n.deliver(ctx, rec, d) })
	return clone(&rec), nil
}

// store persists the draft and returns the stored copy.
func (n *Notifier) store(ctx context.Context, d Draft) (Notification, error) {
	rec := *clone(&d.Notification)
	if rec.DeliveryStatus == "" {
		rec.DeliveryStatus = DeliveryPending
	}
	if _, err := n.storage.Create(ctx, &rec); err != nil {
		if !errors.Is(err, ErrInvalidNotification) && !errors.Is(err, ErrPersistence) {
			err = errors.Join(ErrPersistence, err)
		}
		n.logger.LogAttrs(ctx, slog.LevelError, "failed to store notification",
			logger.UserID(rec.RecipientID),
			logger.Category(string(rec.Category)),
			logger.Error(err),
		)
		return Notification{}, err
	}
	metrics.NotificationCreated(string(rec.Category))
	return rec, nil
}

func (n *Notifier) schedule(ctx context.Context, task func(context.Context)) {
	if n.queue != nil {
		n.queue.add(task)
		return
	}
	n.start(ctx, task)
}

func (n *Notifier) start(ctx context.Context, task func(context.Context)) {
	if !n.tasks.Go(ctx, task) {
		n.logger.LogAttrs(ctx, slog.LevelWarn, "notifier closed, dispatch skipped")
	}
}

// deliver pushes a stored notification and records the outcome.
func (n *Notifier) deliver(ctx context.Context, rec Notification, d Draft) {
	env := NewEnvelope(&rec, d.Event, d.Data, n.now())
	report := n.sender.SendToUser(ctx, rec.RecipientID, env)

	status, ok := report.Status()
	if !ok {
		n.logger.LogAttrs(ctx, slog.LevelDebug, "notification stored for later retrieval",
			logger.NotificationID(rec.ID),
			logger.UserID(rec.RecipientID),
		)
		return
	}

	sctx, cancel := context.WithTimeout(ctx, n.statusTimeout)
	defer cancel()

	if err := n.statusStorage.UpdateDelivery(sctx, rec.ID, status, n.now()); err != nil {
		n.logger.LogAttrs(ctx, slog.LevelWarn, "failed to record delivery status",
			logger.NotificationID(rec.ID),
			logger.UserID(rec.RecipientID),
			slog.String("status", string(status)),
			logger.Error(err),
		)
		return
	}
	if err := report.Err(); err != nil {
		n.logger.LogAttrs(ctx, slog.LevelWarn, "notification dispatch failed, kept in history",
			logger.NotificationID(rec.ID),
			logger.UserID(rec.RecipientID),
			logger.Error(err),
		)
	}
}

type txQueue struct {
	mu    sync.Mutex
	tasks []func(context.Context)
}

func (q *txQueue) add(task func(context.Context)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

func (q *txQueue) drain() []func(context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := q.tasks
	q.tasks = nil
	return tasks
}
