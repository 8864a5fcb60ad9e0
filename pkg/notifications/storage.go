package notifications

import (
	"context"
	"time"
)

// Storage persists notifications. Every mutating call is scoped either by
// recipient or by an explicit id so concurrent writers never touch each
// other's rows.
type Storage interface {
	// Create stores n and returns the assigned id.
	Create(ctx context.Context, n *Notification) (int64, error)

	// Get returns a notification by id regardless of recipient.
	Get(ctx context.Context, id int64) (*Notification, error)

	// ListByRecipient returns the recipient's notifications, newest first.
	ListByRecipient(ctx context.Context, recipientID int64, opts ListOptions) ([]Notification, error)

	// ListAll returns every notification, newest first. Admin only.
	ListAll(ctx context.Context, opts ListOptions) ([]Notification, error)

	// MarkRead marks one notification read. It reports true only when the row
	// changed, and returns ErrNotFound if id does not belong to recipientID.
	MarkRead(ctx context.Context, id, recipientID int64) (bool, error)

	// MarkAllRead marks every unread notification of the recipient read and
	// returns how many changed.
	MarkAllRead(ctx context.Context, recipientID int64) (int, error)

	// Delete removes a notification owned by recipientID.
	Delete(ctx context.Context, id, recipientID int64) error

	// CountUnread returns the unread count for the recipient.
	CountUnread(ctx context.Context, recipientID int64) (int, error)

	// UpdateDelivery records the real-time delivery outcome. sentAt is only
	// stored for DeliveryDelivered.
	UpdateDelivery(ctx context.Context, id int64, status DeliveryStatus, sentAt time.Time) error
}

// ListOptions filters and paginates list queries.
type ListOptions struct {
	Limit      int        // 0 means no limit
	Offset     int        // rows to skip
	OnlyUnread bool       // unread rows only
	Categories []Category // restrict to these categories when non-empty
	Since      *time.Time // created at or after this instant
}

// Matches reports whether n passes the non-pagination filters.
func (o ListOptions) Matches(n *Notification) bool {
	if o.OnlyUnread && n.Read {
		return false
	}
	if o.Since != nil && n.CreatedAt.Before(*o.Since) {
		return false
	}
	if len(o.Categories) == 0 {
		return true
	}
	for _, c := range o.Categories {
		if n.Category == c {
			return true
		}
	}
	return false
}

// Window clamps offset and limit to a slice of length n.
func (o ListOptions) Window(n int) (start, end int) {
	start = min(max(o.Offset, 0), n)
	end = n
	if o.Limit > 0 {
		end = min(start+o.Limit, n)
	}
	return start, end
}
