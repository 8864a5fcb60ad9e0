package notifications

import (
	"context"
	"slices"
	"sync"
)

// Role of a user in the clinic.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleAdmin   Role = "ADMIN"
)

// Recipient is the subset of a user needed to address and greet them.
type Recipient struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// RecipientDirectory resolves users owned by the surrounding application.
type RecipientDirectory interface {
	// FindRecipient returns ErrRecipientNotFound when id is unknown.
	FindRecipient(ctx context.Context, id int64) (Recipient, error)

	// ListRecipients returns every patient that should receive announcements.
	ListRecipients(ctx context.Context) ([]Recipient, error)
}

// MemoryDirectory is a RecipientDirectory backed by a map.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[int64]Recipient
}

// NewMemoryDirectory creates a directory seeded with users.
func NewMemoryDirectory(users ...Recipient) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[int64]Recipient, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Put adds or replaces a user.
func (d *MemoryDirectory) Put(u Recipient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryDirectory) FindRecipient(ctx context.Context, id int64) (Recipient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return Recipient{}, ErrRecipientNotFound
	}
	return u, nil
}

func (d *MemoryDirectory) ListRecipients(ctx context.Context) ([]Recipient, error) {
	d.mu.RLock()
	out := make([]Recipient, 0, len(d.users))
	for _, u := range d.users {
		if u.Role == RolePatient {
			out = append(out, u)
		}
	}
	d.mu.RUnlock()

	slices.SortFunc(out, func(a, b Recipient) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}
