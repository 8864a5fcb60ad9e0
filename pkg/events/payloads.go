package events

import (
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
)

// Subject suffixes, appended to Config.SubjectPrefix.
const (
	SubjectResultUploaded      = "results.uploaded"
	SubjectAppointmentBooked   = "appointments.booked"
	SubjectTestBooked          = "appointments.test_booked"
	SubjectAppointmentStatus   = "appointments.status_changed"
	SubjectAppointmentReminder = "appointments.reminder"
	SubjectAdminMessage        = "admin.message"
	SubjectAdminBroadcast      = "admin.broadcast"
)

// Subjects lists every subject suffix the subscriber routes.
var Subjects = []string{
	SubjectResultUploaded,
	SubjectAppointmentBooked,
	SubjectTestBooked,
	SubjectAppointmentStatus,
	SubjectAppointmentReminder,
	SubjectAdminMessage,
	SubjectAdminBroadcast,
}

// StatusChanged is the payload of appointments.status_changed.
type StatusChanged struct {
	Appointment notifications.Appointment `json:"appointment"`
	OldStatus   string                    `json:"old_status"`
	NewStatus   string                    `json:"new_status" validate:"notblank"`
}

// AdminMessage is the payload of admin.message.
type AdminMessage struct {
	RecipientID int64 `json:"recipient_id" validate:"required,gt=0"`
	notifications.Message
}
