package notifications

import (
	"maps"
	"strconv"
	"time"
)

// Envelope event names.
const (
	EventNotification            = "NOTIFICATION"
	EventBroadcast               = "BROADCAST"
	EventTestResultReady         = "TEST_RESULT_READY"
	EventAppointmentBooked       = "APPOINTMENT_BOOKED"
	EventAppointmentStatusChange = "APPOINTMENT_STATUS_CHANGE"
	EventReminder                = "REMINDER"
	EventAlert                   = "ALERT"
)

// BroadcastChannel reaches every connected client.
const BroadcastChannel = "broadcast/notifications"

// PrimaryChannel is the per-user channel clients subscribe to first.
func PrimaryChannel(userID int64) string {
	return "user/" + strconv.FormatInt(userID, 10) + "/notifications"
}

// BackupChannel carries the same payload as PrimaryChannel for clients whose
// primary subscription silently failed.
func BackupChannel(userID int64) string {
	return "user/" + strconv.FormatInt(userID, 10) + "/messages"
}

// Envelope is the JSON payload pushed over live connections. Every event kind
// uses this shape; clients de-duplicate by data.notificationId.
type Envelope struct {
	Event       string         `json:"event"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data"`
	ReferenceID *int64         `json:"referenceId,omitempty"`
}

// NewEnvelope builds the push payload for a stored notification.
func NewEnvelope(n *Notification, event string, data map[string]any, at time.Time) Envelope {
	payload := make(map[string]any, len(data)+1)
	maps.Copy(payload, data)
	if n.ID != 0 {
		payload["notificationId"] = n.ID
	}
	env := Envelope{
		Event:     event,
		Type:      string(n.Category),
		Title:     n.Title,
		Message:   n.Body,
		Timestamp: at.UTC(),
		Data:      payload,
	}
	if n.ReferenceID != nil {
		env.ReferenceID = Ref(*n.ReferenceID)
	}
	return env
}
