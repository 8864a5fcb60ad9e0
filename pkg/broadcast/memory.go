package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster drops messages for slow consumers rather than blocking the broadcast.
// All methods are safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	subscribers map[*subscriber[T]]struct{}
	bufferSize  int
	closed      bool
	done        chan struct{}
	onEmpty     func()
	mu          sync.RWMutex
	cleanupWg   sync.WaitGroup
}

// NewMemoryBroadcaster creates an in-memory broadcaster whose subscribers each
// get a buffer of bufferSize messages (minimum 1).
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
		done:        make(chan struct{}),
	}
}

// Subscribe creates a subscriber that is removed when ctx is cancelled.
// A closed broadcaster hands out an already-closed subscriber.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscriber[T](b.bufferSize)
	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		b.cleanupWg.Add(1)
		go func() {
			defer b.cleanupWg.Done()
			select {
			case <-ctx.Done():
				b.unsubscribe(sub)
			case <-b.done:
			}
		}()
	}

	return &handle[T]{subscriber: sub, owner: b}
}

// Broadcast sends msg to all active subscribers and returns how many accepted it.
// Subscribers that are full or closed are removed asynchronously.
func (b *MemoryBroadcaster[T]) Broadcast(ctx context.Context, msg Message[T]) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrClosed
	}

	delivered := 0
	for sub := range b.subscribers {
		if sub.send(msg) {
			delivered++
			continue
		}
		go b.unsubscribe(sub)
	}

	return delivered, nil
}

// Len reports the number of registered subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and closes all subscribers. Safe to call repeatedly.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)

	for sub := range b.subscribers {
		_ = sub.Close()
	}
	clear(b.subscribers)
	b.mu.Unlock()

	// wait for context watchers so none touches the map after Close returns
	b.cleanupWg.Wait()
	return nil
}

// unsubscribe removes sub and fires onEmpty, outside the lock, when the last
// subscriber of an open broadcaster leaves.
func (b *MemoryBroadcaster[T]) unsubscribe(sub *subscriber[T]) {
	b.mu.Lock()
	_, ok := b.subscribers[sub]
	delete(b.subscribers, sub)
	_ = sub.Close()
	empty := ok && len(b.subscribers) == 0 && !b.closed
	onEmpty := b.onEmpty
	b.mu.Unlock()

	if empty && onEmpty != nil {
		onEmpty()
	}
}

// handle detaches the subscriber from its broadcaster on Close, so Len stays accurate.
type handle[T any] struct {
	*subscriber[T]
	owner *MemoryBroadcaster[T]
}

func (h *handle[T]) Close() error {
	h.owner.unsubscribe(h.subscriber)
	return nil
}
