package events_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clinicnotify/pkg/events"
	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) one(args mock.Arguments) (*notifications.Notification, error) {
	n, _ := args.Get(0).(*notifications.Notification)
	return n, args.Error(1)
}

func (m *MockSink) NotifyResultReady(ctx context.Context, ev notifications.ResultReady) (*notifications.Notification, error) {
	return m.one(m.Called(ctx, ev))
}

func (m *MockSink) NotifyAppointmentBooked(ctx context.Context, a notifications.Appointment) (*notifications.Notification, error) {
	return m.one(m.Called(ctx, a))
}

func (m *MockSink) NotifyTestBooked(ctx context.Context, a notifications.Appointment) (*notifications.Notification, error) {
	return m.one(m.Called(ctx, a))
}

func (m *MockSink) NotifyAppointmentStatusChanged(ctx context.Context, a notifications.Appointment, oldStatus, newStatus string) (*notifications.Notification, error) {
	return m.one(m.Called(ctx, a, oldStatus, newStatus))
}

func (m *MockSink) NotifyReminder(ctx context.Context, a notifications.Appointment) (*notifications.Notification, error) {
	return m.one(m.Called(ctx, a))
}

func (m *MockSink) NotifyManual(ctx context.Context, recipientID int64, msg notifications.Message) (*notifications.Notification, error) {
	return m.one(m.Called(ctx, recipientID, msg))
}

func (m *MockSink) NotifyBroadcast(ctx context.Context, msg notifications.Message) ([]notifications.Notification, error) {
	args := m.Called(ctx, msg)
	ns, _ := args.Get(0).([]notifications.Notification)
	return ns, args.Error(1)
}

var scheduled = time.Date(2026, 5, 14, 9, 30, 0, 0, time.UTC)

func newSubscriber(sink events.Sink) *events.Subscriber {
	return events.NewSubscriber(nil, sink, events.WithLogger(logger.Discard()))
}

func TestSubscriber_Routes(t *testing.T) {
	t.Parallel()

	appt := notifications.Appointment{ID: 31, PatientID: 7, Reason: "dental", ScheduledAt: scheduled}
	apptJSON := `{"id":31,"patient_id":7,"reason":"dental","scheduled_at":"2026-05-14T09:30:00Z"}`
	ctxArg := mock.Anything

	tests := []struct {
		name    string
		subject string
		payload string
		expect  func(m *MockSink)
	}{
		{
			name:    "result uploaded",
			subject: "clinic.results.uploaded",
			payload: `{"patient_id":7,"result_id":99,"test_name":"Blood Panel"}`,
			expect: func(m *MockSink) {
				m.On("NotifyResultReady", ctxArg, notifications.ResultReady{PatientID: 7, ResultID: 99, TestName: "Blood Panel"}).
					Return(&notifications.Notification{ID: 1}, nil)
			},
		},
		{
			name:    "appointment booked",
			subject: "clinic.appointments.booked",
			payload: apptJSON,
			expect: func(m *MockSink) {
				m.On("NotifyAppointmentBooked", ctxArg, appt).Return(&notifications.Notification{ID: 2}, nil)
			},
		},
		{
			name:    "test booked",
			subject: "clinic.appointments.test_booked",
			payload: apptJSON,
			expect: func(m *MockSink) {
				m.On("NotifyTestBooked", ctxArg, appt).Return(&notifications.Notification{ID: 3}, nil)
			},
		},
		{
			name:    "status changed",
			subject: "clinic.appointments.status_changed",
			payload: `{"appointment":` + apptJSON + `,"old_status":"PENDING","new_status":"CONFIRMED"}`,
			expect: func(m *MockSink) {
				m.On("NotifyAppointmentStatusChanged", ctxArg, appt, "PENDING", "CONFIRMED").
					Return(&notifications.Notification{ID: 4}, nil)
			},
		},
		{
			name:    "reminder",
			subject: "clinic.appointments.reminder",
			payload: apptJSON,
			expect: func(m *MockSink) {
				m.On("NotifyReminder", ctxArg, appt).Return(&notifications.Notification{ID: 5}, nil)
			},
		},
		{
			name:    "admin message",
			subject: "clinic.admin.message",
			payload: `{"recipient_id":7,"title":"Lab closed","message":"Back tomorrow","type":"alert"}`,
			expect: func(m *MockSink) {
				m.On("NotifyManual", ctxArg, int64(7), notifications.Message{Title: "Lab closed", Message: "Back tomorrow", Type: "alert"}).
					Return(&notifications.Notification{ID: 6}, nil)
			},
		},
		{
			name:    "admin broadcast",
			subject: "clinic.admin.broadcast",
			payload: `{"title":"Holiday","message":"Closed Monday","type":"general"}`,
			expect: func(m *MockSink) {
				m.On("NotifyBroadcast", ctxArg, notifications.Message{Title: "Holiday", Message: "Closed Monday", Type: "general"}).
					Return([]notifications.Notification{{ID: 7}}, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := new(MockSink)
			tt.expect(sink)

			err := newSubscriber(sink).Handle(context.Background(), tt.subject, []byte(tt.payload))
			require.NoError(t, err)
			sink.AssertExpectations(t)
		})
	}
}

func TestSubscriber_DropsMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		subject string
		payload string
	}{
		{"invalid json", "clinic.results.uploaded", `{not json`},
		{"missing patient", "clinic.results.uploaded", `{"result_id":9}`},
		{"appointment without date", "clinic.appointments.booked", `{"id":1,"patient_id":7}`},
		{"status without new status", "clinic.appointments.status_changed", `{"appointment":{"id":1,"patient_id":7,"scheduled_at":"2026-05-14T09:30:00Z"}}`},
		{"message without recipient", "clinic.admin.message", `{"title":"a","message":"b"}`},
		{"broadcast without body", "clinic.admin.broadcast", `{"title":"a"}`},
		{"broadcast with blank title", "clinic.admin.broadcast", `{"title":"   ","message":"b"}`},
		{"negative patient", "clinic.appointments.reminder", `{"id":1,"patient_id":-3,"scheduled_at":"2026-05-14T09:30:00Z"}`},
		{"status with invalid appointment", "clinic.appointments.status_changed", `{"appointment":{"id":1,"scheduled_at":"2026-05-14T09:30:00Z"},"new_status":"CANCELLED"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := new(MockSink)
			err := newSubscriber(sink).Handle(context.Background(), tt.subject, []byte(tt.payload))
			require.ErrorIs(t, err, events.ErrMalformedPayload)
			sink.AssertNotCalled(t, "NotifyResultReady", mock.Anything, mock.Anything)
			sink.AssertExpectations(t)
		})
	}
}

func TestSubscriber_MalformedNamesFields(t *testing.T) {
	t.Parallel()

	err := newSubscriber(new(MockSink)).Handle(context.Background(), "clinic.admin.message", []byte(`{"title":"a"}`))
	require.ErrorIs(t, err, events.ErrMalformedPayload)
	assert.Contains(t, err.Error(), "recipient_id")
	assert.Contains(t, err.Error(), "message failed notblank")
}

func TestSubscriber_UnknownSubject(t *testing.T) {
	t.Parallel()

	err := newSubscriber(new(MockSink)).Handle(context.Background(), "clinic.billing.paid", []byte(`{}`))
	require.ErrorIs(t, err, events.ErrUnknownSubject)
}

func TestSubscriber_SinkErrorSurfaces(t *testing.T) {
	t.Parallel()

	sink := new(MockSink)
	sink.On("NotifyReminder", mock.Anything, mock.Anything).
		Return(nil, notifications.ErrRecipientNotFound)

	err := newSubscriber(sink).Handle(context.Background(), "clinic.appointments.reminder",
		[]byte(`{"id":1,"patient_id":404,"scheduled_at":"2026-05-14T09:30:00Z"}`))
	require.ErrorIs(t, err, notifications.ErrRecipientNotFound)
}

func TestSubscriber_HandlerDeadline(t *testing.T) {
	t.Parallel()

	sink := new(MockSink)
	sink.On("NotifyReminder", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(&notifications.Notification{ID: 1}, nil)

	s := events.NewSubscriber(nil, sink, events.WithLogger(logger.Discard()), events.WithHandlerTimeout(time.Second))
	err := s.Handle(context.Background(), "clinic.appointments.reminder",
		[]byte(`{"id":1,"patient_id":7,"scheduled_at":"2026-05-14T09:30:00Z"}`))
	require.NoError(t, err)
	sink.AssertExpectations(t)
}

func TestSubscriber_Subject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "clinic.results.uploaded", newSubscriber(nil).Subject(events.SubjectResultUploaded))

	custom := events.NewSubscriber(nil, nil, events.WithSubjectPrefix("hospital."))
	assert.Equal(t, "hospital.admin.message", custom.Subject(events.SubjectAdminMessage))

	bare := events.NewSubscriber(nil, nil, events.WithSubjectPrefix(""))
	assert.Equal(t, "admin.message", bare.Subject(events.SubjectAdminMessage))
}

func TestConnectValidation(t *testing.T) {
	t.Parallel()

	_, err := events.Connect(context.Background(), events.Config{}, logger.Discard())
	require.ErrorIs(t, err, events.ErrEmptyURL)
	require.ErrorIs(t, events.Healthcheck(nil)(context.Background()), events.ErrNotReady)
}

func TestSubscriber_NATS(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nc, err := events.Connect(ctx, events.Config{URL: url, Name: "events-test", RetryAttempts: 1, MaxReconnects: 1}, logger.Discard())
	require.NoError(t, err)
	defer nc.Close()
	require.NoError(t, events.Healthcheck(nc)(ctx))

	prefix := "test" + time.Now().Format("150405000000")
	done := make(chan struct{})

	sink := new(MockSink)
	sink.On("NotifyResultReady", mock.Anything, notifications.ResultReady{PatientID: 7, ResultID: 1, TestName: "X-Ray"}).
		Run(func(mock.Arguments) { close(done) }).
		Return(&notifications.Notification{ID: 1}, nil)

	sub := events.NewSubscriber(nc, sink,
		events.WithLogger(logger.Discard()),
		events.WithSubjectPrefix(prefix),
		events.WithQueueGroup("events-test"),
	)
	require.NoError(t, sub.Start(ctx))
	require.ErrorIs(t, sub.Start(ctx), events.ErrAlreadyStarted)
	defer func() { _ = sub.Stop() }()

	require.NoError(t, nc.Publish(prefix+".results.uploaded", []byte(`{"patient_id":7,"result_id":1,"test_name":"X-Ray"}`)))
	require.NoError(t, nc.Flush())

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("event not handled")
	}
	sink.AssertExpectations(t)
	assert.False(t, errors.Is(sub.Stop(), nats.ErrConnectionClosed))
}
