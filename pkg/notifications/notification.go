package notifications

import (
	"strings"
	"time"
)

// Category groups notifications by the kind of event that produced them.
type Category string

const (
	CategoryResult      Category = "result"
	CategoryAppointment Category = "appointment"
	CategoryReminder    Category = "reminder"
	CategoryAlert       Category = "alert"
	CategoryBroadcast   Category = "broadcast"
	CategoryGeneral     Category = "general"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryResult,
	CategoryAppointment,
	CategoryReminder,
	CategoryAlert,
	CategoryBroadcast,
	CategoryGeneral,
}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Priority is the urgency hint shown to the client.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// DeliveryStatus records the outcome of the real-time push.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// Reference types used by the built-in templates.
const (
	ReferenceTestResult  = "test_result"
	ReferenceAppointment = "appointment"
)

// Notification is the durable record of one event occurrence for one recipient.
// Read and Sent are independent: a row can be delivered but unread, or stored
// but never pushed because the recipient was offline.
type Notification struct {
	ID             int64          `json:"id"`
	RecipientID    int64          `json:"recipient_id"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Category       Category       `json:"category"`
	Priority       Priority       `json:"priority"`
	ReferenceType  string         `json:"reference_type,omitempty"`
	ReferenceID    *int64         `json:"reference_id,omitempty"`
	Read           bool           `json:"read"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	Sent           bool           `json:"sent"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
}

// Validate checks the invariants every stored notification must hold.
func (n *Notification) Validate() error {
	switch {
	case n.RecipientID <= 0:
		return errInvalid("recipient is required")
	case strings.TrimSpace(n.Title) == "":
		return errInvalid("title is required")
	case strings.TrimSpace(n.Body) == "":
		return errInvalid("body is required")
	}
	return nil
}

// MarkAsRead flips the read flag and stamps ReadAt. It reports false when the
// notification was already read.
func (n *Notification) MarkAsRead(at time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	n.ReadAt = &at
	return true
}

// MarkDelivered records a successful push.
func (n *Notification) MarkDelivered(at time.Time) {
	n.Sent = true
	n.DeliveryStatus = DeliveryDelivered
	n.SentAt = &at
}

// Ref returns a pointer to id, for populating ReferenceID.
func Ref(id int64) *int64 {
	return &id
}
