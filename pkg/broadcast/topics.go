package broadcast

import (
	"context"
	"errors"
	"sync"
)

// ReachUnknown is returned by a Publisher that cannot count receivers, such as
// one that hands the message to other processes.
const ReachUnknown = -1

// Publisher delivers a message to a named channel and reports how many
// receivers accepted it, or ReachUnknown.
type Publisher[T any] interface {
	Publish(ctx context.Context, channel string, msg Message[T]) (int, error)
}

// Topics multiplexes named channels over per-channel memory broadcasters.
// Channels are created on first subscription and dropped when their last
// subscriber leaves.
type Topics[T any] struct {
	mu         sync.Mutex
	channels   map[string]*MemoryBroadcaster[T]
	bufferSize int
	closed     bool
}

// NewTopics creates an empty topic set. bufferSize applies to every subscriber.
func NewTopics[T any](bufferSize int) *Topics[T] {
	return &Topics[T]{
		channels:   make(map[string]*MemoryBroadcaster[T]),
		bufferSize: bufferSize,
	}
}

// Subscribe attaches a subscriber to channel for the lifetime of ctx.
func (t *Topics[T]) Subscribe(ctx context.Context, channel string) Subscriber[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.channels[channel]
	if !ok {
		b = NewMemoryBroadcaster[T](t.bufferSize)
		if t.closed {
			_ = b.Close()
			return b.Subscribe(ctx)
		}
		b.onEmpty = func() { t.drop(channel, b) }
		t.channels[channel] = b
	}
	return b.Subscribe(ctx)
}

// drop forgets channel if it still maps to an empty b, then closes b.
func (t *Topics[T]) drop(channel string, b *MemoryBroadcaster[T]) {
	t.mu.Lock()
	cur, ok := t.channels[channel]
	if !ok || cur != b || b.Len() > 0 {
		t.mu.Unlock()
		return
	}
	delete(t.channels, channel)
	t.mu.Unlock()

	// onEmpty may run on one of b's context watchers, which Close waits for.
	go func() { _ = b.Close() }()
}

// Publish delivers msg to every subscriber of channel. A channel nobody
// listens on yields zero receivers and no error.
func (t *Topics[T]) Publish(ctx context.Context, channel string, msg Message[T]) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	b, ok := t.channels[channel]
	t.mu.Unlock()

	if !ok {
		return 0, ctx.Err()
	}
	n, err := b.Broadcast(ctx, msg)
	if errors.Is(err, ErrClosed) && !t.isClosed() {
		// the channel emptied and was dropped after the lookup
		return 0, nil
	}
	return n, err
}

func (t *Topics[T]) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// SubscriberCount reports the number of subscribers on channel.
func (t *Topics[T]) SubscriberCount(channel string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if b, ok := t.channels[channel]; ok {
		return b.Len()
	}
	return 0
}

// Channels returns the number of channels currently tracked.
func (t *Topics[T]) Channels() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.channels)
}

// Close closes every channel and its subscribers.
func (t *Topics[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	channels := t.channels
	t.channels = make(map[string]*MemoryBroadcaster[T])
	t.mu.Unlock()

	for _, b := range channels {
		_ = b.Close()
	}
	return nil
}
