package realtime

import (
	"context"

	"github.com/dmitrymomot/clinicnotify/pkg/broadcast"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
)

// DefaultBufferSize is the per-connection queue length of each channel.
const DefaultBufferSize = 32

// Hub routes envelopes between publishers and websocket connections. It
// implements notifications.Transport.
type Hub struct {
	topics    *broadcast.Topics[notifications.Envelope]
	publisher broadcast.Publisher[notifications.Envelope]
}

var _ notifications.Transport = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*hubOptions)

type hubOptions struct {
	bufferSize int
	publisher  func(*broadcast.Topics[notifications.Envelope]) broadcast.Publisher[notifications.Envelope]
}

// WithBufferSize sets how many undelivered envelopes a connection may hold per
// channel before it is dropped as too slow.
func WithBufferSize(n int) HubOption {
	return func(o *hubOptions) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithPublisher routes publishes through a publisher built over the hub's
// local topics, such as a broadcast.RedisRelay.
func WithPublisher(build func(local *broadcast.Topics[notifications.Envelope]) broadcast.Publisher[notifications.Envelope]) HubOption {
	return func(o *hubOptions) {
		o.publisher = build
	}
}

// NewHub creates a hub.
func NewHub(opts ...HubOption) *Hub {
	o := hubOptions{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Hub{topics: broadcast.NewTopics[notifications.Envelope](o.bufferSize)}
	h.publisher = h.topics
	if o.publisher != nil {
		h.publisher = o.publisher(h.topics)
	}
	return h
}

// Publish delivers env to every connection subscribed to channel. Through a
// relay the count is notifications.ReachUnknown.
func (h *Hub) Publish(ctx context.Context, channel string, env notifications.Envelope) (int, error) {
	n, err := h.publisher.Publish(ctx, channel, broadcast.Message[notifications.Envelope]{Data: env})
	if n == broadcast.ReachUnknown {
		n = notifications.ReachUnknown
	}
	return n, err
}

// Subscribe attaches a listener to channel for the lifetime of ctx.
func (h *Hub) Subscribe(ctx context.Context, channel string) broadcast.Subscriber[notifications.Envelope] {
	return h.topics.Subscribe(ctx, channel)
}

// SubscriberCount reports local listeners on channel.
func (h *Hub) SubscriberCount(channel string) int {
	return h.topics.SubscriberCount(channel)
}

// Close closes every subscription.
func (h *Hub) Close() error {
	return h.topics.Close()
}
