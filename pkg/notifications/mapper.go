package notifications

import (
	"strings"
	"time"
)

// ResultReady describes a lab result that became available to the patient.
type ResultReady struct {
	PatientID int64  `json:"patient_id" validate:"required,gt=0"`
	ResultID  int64  `json:"result_id"`
	TestName  string `json:"test_name"`
	TestType  string `json:"test_type,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Appointment is the appointment state the templates need.
type Appointment struct {
	ID          int64     `json:"id"`
	PatientID   int64     `json:"patient_id" validate:"required,gt=0"`
	Reason      string    `json:"reason,omitempty"`
	DoctorName  string    `json:"doctor_name,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Status      string    `json:"status,omitempty"`
}

// Message is an admin-authored notification. Type names a category; unknown
// types fall back to CategoryGeneral.
type Message struct {
	Title   string `json:"title" validate:"notblank"`
	Message string `json:"message" validate:"notblank"`
	Type    string `json:"type"`
}

// Draft is a mapped notification that has not been stored yet, together with
// the envelope event and data to push once it has.
type Draft struct {
	Notification Notification
	Event        string
	Data         map[string]any
}

// For returns a copy of the draft addressed to recipientID.
func (d Draft) For(recipientID int64) Draft {
	n := clone(&d.Notification)
	n.RecipientID = recipientID
	d.Notification = *n
	return d
}

// Mapper turns domain events into notification drafts. It is pure: the same
// input always yields the same draft.
type Mapper struct {
	catalog    *Catalog
	location   *time.Location
	dateLayout string
	timeLayout string
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithCatalog replaces the built-in template catalog.
func WithCatalog(c *Catalog) MapperOption {
	return func(m *Mapper) {
		if c != nil {
			m.catalog = c
		}
	}
}

// WithLocation sets the time zone appointment times are rendered in.
func WithLocation(loc *time.Location) MapperOption {
	return func(m *Mapper) {
		if loc != nil {
			m.location = loc
		}
	}
}

// NewMapper creates a mapper using the built-in catalog and UTC.
func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{
		catalog:    DefaultCatalog(),
		location:   time.UTC,
		dateLayout: time.DateOnly,
		timeLayout: "15:04",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ResultReady maps a lab result upload.
func (m *Mapper) ResultReady(r Recipient, ev ResultReady) Draft {
	testName := firstNonEmpty(ev.TestName, ev.TestType, "medical test")
	title, body := m.catalog.fill(TemplateResultReady, Vars{
		"firstName": greetingName(r),
		"testName":  testName,
		"testType":  firstNonEmpty(ev.TestType, testName),
		"status":    ev.Status,
	})
	return Draft{
		Notification: Notification{
			RecipientID:   r.ID,
			Title:         title,
			Body:          body,
			Category:      CategoryResult,
			Priority:      PriorityHigh,
			ReferenceType: ReferenceTestResult,
			ReferenceID:   Ref(ev.ResultID),
			Metadata: map[string]any{
				"testName":  testName,
				"status":    ev.Status,
				"resultId":  ev.ResultID,
				"patientId": r.ID,
			},
		},
		Event: EventTestResultReady,
		Data: map[string]any{
			"id":       ev.ResultID,
			"testName": testName,
			"testType": ev.TestType,
			"status":   ev.Status,
		},
	}
}

// AppointmentBooked maps a newly scheduled appointment.
func (m *Mapper) AppointmentBooked(r Recipient, a Appointment) Draft {
	vars := m.appointmentVars(r, a, "medical")
	title, body := m.catalog.fill(TemplateAppointmentBooked, vars)
	return m.appointmentDraft(r, a, title, body, PriorityHigh, CategoryAppointment, EventAppointmentBooked, nil)
}

// TestBooked maps a booked lab test appointment.
func (m *Mapper) TestBooked(r Recipient, a Appointment) Draft {
	vars := m.appointmentVars(r, a, "test")
	title, body := m.catalog.fill(TemplateTestBooked, vars)
	return m.appointmentDraft(r, a, title, body, PriorityHigh, CategoryAppointment, EventAppointmentBooked, map[string]any{
		"appointmentTime": vars["time"],
		"isTest":          true,
	})
}

// AppointmentStatusChanged maps a status transition. The copy branches on
// newStatus, compared case-insensitively.
func (m *Mapper) AppointmentStatusChanged(r Recipient, a Appointment, oldStatus, newStatus string) Draft {
	key := TemplateStatusOther
	switch strings.ToUpper(strings.TrimSpace(newStatus)) {
	case "CONFIRMED":
		key = TemplateStatusConfirmed
	case "CANCELLED", "CANCELED":
		key = TemplateStatusCancelled
	case "COMPLETED":
		key = TemplateStatusCompleted
	}
	vars := m.appointmentVars(r, a, "medical")
	vars["status"] = newStatus
	title, body := m.catalog.fill(key, vars)

	d := m.appointmentDraft(r, a, title, body, PriorityNormal, CategoryAppointment, EventAppointmentStatusChange, map[string]any{
		"oldStatus": oldStatus,
		"newStatus": newStatus,
	})
	d.Data["status"] = newStatus
	d.Notification.Metadata["status"] = newStatus
	return d
}

// AppointmentReminder maps an upcoming appointment reminder.
func (m *Mapper) AppointmentReminder(r Recipient, a Appointment) Draft {
	vars := m.appointmentVars(r, a, "medical")
	title, body := m.catalog.fill(TemplateReminder, vars)
	return m.appointmentDraft(r, a, title, body, PriorityHigh, CategoryReminder, EventReminder, map[string]any{
		"isReminder": true,
	})
}

// Manual maps an admin message to a single recipient.
func (m *Mapper) Manual(r Recipient, msg Message) Draft {
	category, ok := ParseCategory(msg.Type)
	if !ok {
		category = CategoryGeneral
	}
	event := EventNotification
	if category == CategoryAlert {
		event = EventAlert
	}
	return Draft{
		Notification: Notification{
			RecipientID: r.ID,
			Title:       msg.Title,
			Body:        msg.Message,
			Category:    category,
			Priority:    PriorityNormal,
			Metadata:    map[string]any{"type": msg.Type},
		},
		Event: event,
		Data:  map[string]any{"type": msg.Type},
	}
}

// Broadcast maps an announcement to everyone. The draft has no recipient;
// use Draft.For to address a copy.
func (m *Mapper) Broadcast(msg Message) Draft {
	return Draft{
		Notification: Notification{
			Title:    msg.Title,
			Body:     msg.Message,
			Category: CategoryBroadcast,
			Priority: PriorityNormal,
			Metadata: map[string]any{"type": msg.Type},
		},
		Event: EventBroadcast,
		Data:  map[string]any{"type": msg.Type},
	}
}

func (m *Mapper) appointmentVars(r Recipient, a Appointment, defaultReason string) Vars {
	at := a.ScheduledAt.In(m.location)
	return Vars{
		"firstName":  greetingName(r),
		"reason":     firstNonEmpty(a.Reason, defaultReason),
		"date":       at.Format(m.dateLayout),
		"time":       at.Format(m.timeLayout),
		"doctorName": a.DoctorName,
		"status":     a.Status,
	}
}

func (m *Mapper) appointmentDraft(r Recipient, a Appointment, title, body string, p Priority, c Category, event string, extra map[string]any) Draft {
	date := a.ScheduledAt.In(m.location).Format(m.dateLayout)
	data := map[string]any{
		"id":              a.ID,
		"reason":          a.Reason,
		"appointmentDate": date,
		"status":          a.Status,
		"doctorName":      a.DoctorName,
	}
	meta := map[string]any{
		"appointmentId":   a.ID,
		"appointmentDate": date,
	}
	for k, v := range extra {
		data[k] = v
		meta[k] = v
	}
	return Draft{
		Notification: Notification{
			RecipientID:   r.ID,
			Title:         title,
			Body:          body,
			Category:      c,
			Priority:      p,
			ReferenceType: ReferenceAppointment,
			ReferenceID:   Ref(a.ID),
			Metadata:      meta,
		},
		Event: event,
		Data:  data,
	}
}

// anonymousGreeting stands in for a missing first name: "Hi there, ...".
const anonymousGreeting = "there"

func greetingName(r Recipient) string {
	return strings.TrimSpace(firstNonEmpty(r.FirstName, anonymousGreeting))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
