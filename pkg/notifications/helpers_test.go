package notifications_test

import (
	"context"
	"sync"

	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
)

type published struct {
	Channel  string
	Envelope notifications.Envelope
}

// fakeTransport records publishes. Channels listed in listeners report that
// many receivers; channels in failures return the error; block makes every
// publish wait for its context.
type fakeTransport struct {
	mu        sync.Mutex
	listeners map[string]int
	failures  map[string]error
	block     bool
	sent      []published
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		listeners: make(map[string]int),
		failures:  make(map[string]error),
	}
}

func (f *fakeTransport) listen(channel string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[channel] = n
}

func (f *fakeTransport) fail(channel string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[channel] = err
}

func (f *fakeTransport) Publish(ctx context.Context, channel string, env notifications.Envelope) (int, error) {
	f.mu.Lock()
	f.sent = append(f.sent, published{Channel: channel, Envelope: env})
	block := f.block
	err := f.failures[channel]
	n := f.listeners[channel]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (f *fakeTransport) channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		out[i] = p.Channel
	}
	return out
}

func (f *fakeTransport) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.sent...)
}
