package notifications

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStorage keeps notifications in process memory.
// Suitable for development and testing.
type MemoryStorage struct {
	mu     sync.RWMutex
	rows   map[int64]*Notification
	nextID int64
	now    func() time.Time
	fail   error
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*MemoryStorage)

// WithMemoryClock overrides the clock used for CreatedAt and ReadAt.
func WithMemoryClock(now func() time.Time) MemoryStorageOption {
	return func(s *MemoryStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		rows: make(map[int64]*Notification),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailWrites makes subsequent Create calls fail with err. Pass nil to recover.
func (s *MemoryStorage) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *MemoryStorage) Create(ctx context.Context, n *Notification) (int64, error) {
	if err := n.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, s.fail)
	}

	s.nextID++
	row := clone(n)
	row.ID = s.nextID
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	if row.DeliveryStatus == "" {
		row.DeliveryStatus = DeliveryPending
	}
	s.rows[row.ID] = row

	n.ID = row.ID
	n.CreatedAt = row.CreatedAt
	n.DeliveryStatus = row.DeliveryStatus
	return row.ID, nil
}

func (s *MemoryStorage) Get(ctx context.Context, id int64) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(row), nil
}

func (s *MemoryStorage) ListByRecipient(ctx context.Context, recipientID int64, opts ListOptions) ([]Notification, error) {
	return s.list(func(n *Notification) bool { return n.RecipientID == recipientID }, opts), nil
}

func (s *MemoryStorage) ListAll(ctx context.Context, opts ListOptions) ([]Notification, error) {
	return s.list(func(*Notification) bool { return true }, opts), nil
}

func (s *MemoryStorage) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.RecipientID != recipientID {
		return false, ErrNotFound
	}
	return row.MarkAsRead(s.now()), nil
}

func (s *MemoryStorage) MarkAllRead(ctx context.Context, recipientID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	changed := 0
	for _, row := range s.rows {
		if row.RecipientID == recipientID && row.MarkAsRead(now) {
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, id, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.RecipientID != recipientID {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *MemoryStorage) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, row := range s.rows {
		if row.RecipientID == recipientID && !row.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) UpdateDelivery(ctx context.Context, id int64, status DeliveryStatus, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if status == DeliveryDelivered {
		row.MarkDelivered(sentAt)
		return nil
	}
	row.DeliveryStatus = status
	return nil
}

func (s *MemoryStorage) list(keep func(*Notification) bool, opts ListOptions) []Notification {
	s.mu.RLock()
	out := make([]Notification, 0)
	for _, row := range s.rows {
		if keep(row) && opts.Matches(row) {
			out = append(out, *clone(row))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, newestFirst)
	start, end := opts.Window(len(out))
	return out[start:end]
}

func newestFirst(a, b Notification) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}

// clone copies n deeply enough that callers cannot mutate stored state.
func clone(n *Notification) *Notification {
	c := *n
	if n.Metadata != nil {
		c.Metadata = maps.Clone(n.Metadata)
	}
	if n.ReferenceID != nil {
		c.ReferenceID = Ref(*n.ReferenceID)
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		c.ReadAt = &t
	}
	if n.SentAt != nil {
		t := *n.SentAt
		c.SentAt = &t
	}
	return &c
}
