package registry

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/clinicnotify/pkg/logger"
)

// Session describes one live connection.
type Session struct {
	ConnectionID string    `json:"connection_id"`
	UserID       int64     `json:"user_id"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// Registry tracks live connections and the user each one belongs to.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	observe  func(live int)
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver registers fn to be called with the live connection count after
// every change. fn runs outside the registry lock.
func WithObserver(fn func(live int)) Option {
	return func(r *Registry) {
		r.observe = fn
	}
}

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source for ConnectedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]Session),
		logger:   logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnConnect records connID as owned by userID. Reusing a connection ID
// replaces the earlier binding.
func (r *Registry) OnConnect(connID string, userID int64) {
	r.mu.Lock()
	r.sessions[connID] = Session{
		ConnectionID: connID,
		UserID:       userID,
		ConnectedAt:  r.now(),
	}
	live := len(r.sessions)
	r.mu.Unlock()

	r.logger.Debug("connection registered",
		logger.ConnectionID(connID),
		logger.UserID(userID),
		logger.Count(live),
	)
	r.notify(live)
}

// OnDisconnect forgets connID. Unknown IDs are ignored.
func (r *Registry) OnDisconnect(connID string) {
	r.mu.Lock()
	s, ok := r.sessions[connID]
	delete(r.sessions, connID)
	live := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.logger.Debug("connection removed",
		logger.ConnectionID(connID),
		logger.UserID(s.UserID),
		logger.Count(live),
	)
	r.notify(live)
}

// CountLive returns the number of live connections.
func (r *Registry) CountLive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// LiveUserIDs returns the distinct users with at least one live connection, ascending.
func (r *Registry) LiveUserIDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.sessions))
	for _, s := range r.sessions {
		ids = append(ids, s.UserID)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return slices.Compact(ids)
}

// Connections returns the connection IDs held by userID, sorted.
func (r *Registry) Connections(userID int64) []string {
	r.mu.RLock()
	var ids []string
	for id, s := range r.sessions {
		if s.UserID == userID {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// IsOnline reports whether userID has any live connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of all sessions ordered by connect time.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Session) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		if a.ConnectionID < b.ConnectionID {
			return -1
		}
		if a.ConnectionID > b.ConnectionID {
			return 1
		}
		return 0
	})
	return out
}

func (r *Registry) notify(live int) {
	if r.observe != nil {
		r.observe(live)
	}
}
