package notifications_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) FindRecipient(ctx context.Context, id int64) (notifications.Recipient, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(notifications.Recipient), args.Error(1)
}

func (m *MockDirectory) ListRecipients(ctx context.Context) ([]notifications.Recipient, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]notifications.Recipient), args.Error(1)
}

type fixture struct {
	store     *notifications.MemoryStorage
	directory *notifications.MemoryDirectory
	transport *fakeTransport
	notifier  *notifications.Notifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: notifications.NewMemoryStorage(),
		directory: notifications.NewMemoryDirectory(
			alice,
			notifications.Recipient{ID: 8, FirstName: "Bruno", Role: notifications.RolePatient},
			notifications.Recipient{ID: 1, FirstName: "Root", Role: notifications.RoleAdmin},
		),
		transport: newFakeTransport(),
	}
	dispatcher := notifications.NewDispatcher(f.transport,
		notifications.WithSendTimeout(time.Second),
		notifications.WithDispatcherLogger(logger.Discard()),
	)
	f.notifier = notifications.NewNotifier(f.store, f.directory, dispatcher,
		notifications.WithNotifierLogger(logger.Discard()),
	)
	t.Cleanup(func() { _ = f.notifier.Close(context.Background()) })
	return f
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.notifier.Wait(ctx))
}

func TestNotifier_NotifyResultReady(t *testing.T) {
	f := newFixture(t)
	f.transport.listen("user/7/notifications", 1)
	ctx := context.Background()

	n, err := f.notifier.NotifyResultReady(ctx, notifications.ResultReady{PatientID: 7, TestName: "CBC", ResultID: 99, Status: "NORMAL"})
	require.NoError(t, err)
	f.wait(t)

	assert.Equal(t, notifications.CategoryResult, n.Category)
	assert.Equal(t, notifications.PriorityHigh, n.Priority)
	assert.Equal(t, notifications.ReferenceTestResult, n.ReferenceType)
	assert.Equal(t, int64(99), *n.ReferenceID)

	sent := f.transport.published()
	require.Len(t, sent, 2)
	assert.ElementsMatch(t, []string{"user/7/notifications", "user/7/messages"}, f.transport.channels())
	for _, p := range sent {
		assert.Equal(t, notifications.EventTestResultReady, p.Envelope.Event)
		assert.Equal(t, n.ID, p.Envelope.Data["notificationId"])
	}

	history, err := f.notifier.History(ctx, 7, notifications.ListOptions{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, notifications.DeliveryDelivered, history[0].DeliveryStatus)
	assert.True(t, history[0].Sent)
	assert.NotNil(t, history[0].SentAt)
	assert.False(t, history[0].Read)
}

func TestNotifier_OfflineRecipientStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.notifier.NotifyAppointmentBooked(ctx, appt)
	require.NoError(t, err)
	f.wait(t)

	got, err := f.store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.DeliveryPending, got.DeliveryStatus)
	assert.False(t, got.Sent)
	assert.Nil(t, got.SentAt)
	assert.Len(t, f.transport.published(), 2)
}

func TestNotifier_StatusChangedCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.notifier.NotifyAppointmentStatusChanged(ctx, appt, "SCHEDULED", "CANCELLED")
	require.NoError(t, err)
	f.wait(t)

	assert.Equal(t, int64(7), n.RecipientID)
	assert.Equal(t, notifications.CategoryAppointment, n.Category)
	assert.Contains(t, n.Body, "cancelled")
	assert.Equal(t, notifications.PriorityNormal, n.Priority)
	assert.Equal(t, notifications.ReferenceAppointment, n.ReferenceType)
	assert.Equal(t, appt.ID, *n.ReferenceID)
}

func TestNotifier_EveryOperationStoresOneRow(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		call     func(*notifications.Notifier) (*notifications.Notification, error)
		category notifications.Category
		priority notifications.Priority
	}{
		{"booked", func(n *notifications.Notifier) (*notifications.Notification, error) {
			return n.NotifyAppointmentBooked(ctx, appt)
		}, notifications.CategoryAppointment, notifications.PriorityHigh},
		{"test booked", func(n *notifications.Notifier) (*notifications.Notification, error) {
			return n.NotifyTestBooked(ctx, appt)
		}, notifications.CategoryAppointment, notifications.PriorityHigh},
		{"reminder", func(n *notifications.Notifier) (*notifications.Notification, error) {
			return n.NotifyReminder(ctx, appt)
		}, notifications.CategoryReminder, notifications.PriorityHigh},
		{"manual", func(n *notifications.Notifier) (*notifications.Notification, error) {
			return n.NotifyManual(ctx, 7, notifications.Message{Title: "Hi", Message: "Hello", Type: "alert"})
		}, notifications.CategoryAlert, notifications.PriorityNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			n, err := tt.call(f.notifier)
			require.NoError(t, err)
			f.wait(t)

			all, err := f.notifier.ListAll(ctx, notifications.ListOptions{})
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, n.ID, all[0].ID)
			assert.Equal(t, int64(7), all[0].RecipientID)
			assert.Equal(t, tt.category, all[0].Category)
			assert.Equal(t, tt.priority, all[0].Priority)
		})
	}
}

func TestNotifier_RepeatedCallsCreateDistinctRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.notifier.NotifyReminder(ctx, appt)
	require.NoError(t, err)
	b, err := f.notifier.NotifyReminder(ctx, appt)
	require.NoError(t, err)
	f.wait(t)

	assert.NotEqual(t, a.ID, b.ID)
	count, err := f.notifier.CountUnread(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNotifier_RecipientNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.notifier.NotifyManual(ctx, 404, notifications.Message{Title: "x", Message: "y"})
	assert.ErrorIs(t, err, notifications.ErrRecipientNotFound)
	f.wait(t)

	all, err := f.notifier.ListAll(ctx, notifications.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.transport.published())
}

func TestNotifier_DirectoryFailure(t *testing.T) {
	dir := &MockDirectory{}
	dir.On("FindRecipient", mock.Anything, int64(7)).Return(notifications.Recipient{}, errors.New("db down"))

	n := notifications.NewNotifier(notifications.NewMemoryStorage(), dir, notifications.NewDispatcher(newFakeTransport()),
		notifications.WithNotifierLogger(logger.Discard()))

	_, err := n.NotifyReminder(context.Background(), appt)
	require.Error(t, err)
	assert.NotErrorIs(t, err, notifications.ErrRecipientNotFound)
	assert.Contains(t, err.Error(), "db down")
	dir.AssertExpectations(t)
}

func TestNotifier_PersistenceFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.store.FailWrites(errors.New("connection reset"))

	_, err := f.notifier.NotifyReminder(context.Background(), appt)
	assert.ErrorIs(t, err, notifications.ErrPersistence)
	f.wait(t)
	assert.Empty(t, f.transport.published())
}

func TestNotifier_DispatchFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.transport.fail("user/7/notifications", errors.New("boom"))
	f.transport.fail("user/7/messages", errors.New("boom"))
	ctx := context.Background()

	n, err := f.notifier.NotifyReminder(ctx, appt)
	require.NoError(t, err)
	f.wait(t)

	got, err := f.store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.DeliveryFailed, got.DeliveryStatus)
	assert.False(t, got.Sent)
}

func TestNotifier_NotifyBroadcast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.notifier.NotifyBroadcast(ctx, notifications.Message{Title: "Holiday hours", Message: "Closed Monday", Type: "general"})
	require.NoError(t, err)
	f.wait(t)

	require.Len(t, created, 2)
	assert.Equal(t, int64(7), created[0].RecipientID)
	assert.Equal(t, int64(8), created[1].RecipientID)
	for _, n := range created {
		assert.Equal(t, notifications.CategoryBroadcast, n.Category)
		assert.Equal(t, notifications.PriorityNormal, n.Priority)
	}

	assert.ElementsMatch(t, []string{
		"user/7/notifications", "user/7/messages",
		"user/8/notifications", "user/8/messages",
		notifications.BroadcastChannel,
	}, f.transport.channels())

	for _, p := range f.transport.published() {
		if p.Channel == notifications.BroadcastChannel {
			assert.Equal(t, notifications.EventBroadcast, p.Envelope.Event)
			assert.NotContains(t, p.Envelope.Data, "notificationId")
		}
	}

	admin, err := f.notifier.History(ctx, 1, notifications.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, admin)
}

func TestNotifier_NotifyBroadcastValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.notifier.NotifyBroadcast(context.Background(), notifications.Message{Title: "", Message: "x"})
	assert.ErrorIs(t, err, notifications.ErrInvalidNotification)
}

func TestNotifier_HistoryOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.notifier.NotifyManual(ctx, 7, notifications.Message{Title: "a", Message: "b"})
	require.NoError(t, err)
	_, err = f.notifier.NotifyManual(ctx, 7, notifications.Message{Title: "c", Message: "d"})
	require.NoError(t, err)
	f.wait(t)

	changed, err := f.notifier.MarkRead(ctx, n.ID, 7)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.notifier.MarkRead(ctx, n.ID, 7)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.notifier.MarkRead(ctx, n.ID, 8)
	assert.ErrorIs(t, err, notifications.ErrNotFound)

	marked, err := f.notifier.MarkAllRead(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	require.NoError(t, f.notifier.Delete(ctx, n.ID, 7))
	history, err := f.notifier.History(ctx, 7, notifications.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestNotifier_Tx(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatch waits for flush", func(t *testing.T) {
		f := newFixture(t)
		txStore := notifications.NewMemoryStorage()
		txn := f.notifier.Tx(txStore)

		_, err := txn.NotifyReminder(ctx, appt)
		require.NoError(t, err)
		f.wait(t)
		assert.Empty(t, f.transport.published())

		rows, err := txStore.ListAll(ctx, notifications.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		txn.Flush(ctx)
		f.wait(t)
		assert.Len(t, f.transport.published(), 2)
	})

	t.Run("discard drops dispatches", func(t *testing.T) {
		f := newFixture(t)
		txn := f.notifier.Tx(notifications.NewMemoryStorage())

		_, err := txn.NotifyReminder(ctx, appt)
		require.NoError(t, err)
		txn.Discard()
		txn.Flush(ctx)
		f.wait(t)
		assert.Empty(t, f.transport.published())
	})
}

func TestNotifier_ClosedSkipsDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.notifier.Close(ctx))

	n, err := f.notifier.NotifyReminder(ctx, appt)
	require.NoError(t, err)
	assert.NotZero(t, n.ID)
	assert.Empty(t, f.transport.published())
}

func TestNotifier_CallerCancellationDoesNotAbortDispatch(t *testing.T) {
	f := newFixture(t)
	f.transport.listen("user/7/notifications", 1)

	ctx, cancel := context.WithCancel(context.Background())
	n, err := f.notifier.NotifyReminder(ctx, appt)
	require.NoError(t, err)
	cancel()
	f.wait(t)

	got, err := f.store.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.DeliveryDelivered, got.DeliveryStatus)
}
