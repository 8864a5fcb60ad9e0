package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/clinicnotify/pkg/logger"
)

const defaultRelayPrefix = "clinicnotify:"

// RedisRelay fans publishes out across processes through Redis pub/sub.
// Every process runs the relay loop and re-publishes what it receives into its
// local Topics, so subscribers connected to any node see every message.
//
// Publish cannot see the connections held by other nodes, so it reports
// ReachUnknown on success.
type RedisRelay[T any] struct {
	client *redis.Client
	local  *Topics[T]
	prefix string
	logger *slog.Logger
}

// RelayOption configures a RedisRelay.
type RelayOption func(*relayOptions)

type relayOptions struct {
	prefix string
	logger *slog.Logger
}

// WithRelayPrefix sets the Redis channel prefix. Defaults to "clinicnotify:".
func WithRelayPrefix(prefix string) RelayOption {
	return func(o *relayOptions) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithRelayLogger sets the logger used for relay loop failures.
func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(o *relayOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewRedisRelay creates a relay that publishes through client and delivers into local.
func NewRedisRelay[T any](client *redis.Client, local *Topics[T], opts ...RelayOption) *RedisRelay[T] {
	o := relayOptions{
		prefix: defaultRelayPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisRelay[T]{
		client: client,
		local:  local,
		prefix: o.prefix,
		logger: o.logger,
	}
}

// Publish serialises msg and publishes it on the prefixed Redis channel.
func (r *RedisRelay[T]) Publish(ctx context.Context, channel string, msg Message[T]) (int, error) {
	payload, err := json.Marshal(msg.Data)
	if err != nil {
		return 0, errors.Join(ErrRelayPublish, err)
	}
	if err := r.client.Publish(ctx, r.prefix+channel, payload).Err(); err != nil {
		return 0, errors.Join(ErrRelayPublish, err)
	}
	return ReachUnknown, nil
}

// Run consumes relayed messages until ctx is cancelled, forwarding each into
// the local topics. It returns nil on cancellation.
func (r *RedisRelay[T]) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer func() { _ = pubsub.Close() }()

	// surface connection problems before entering the loop
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(ctx, m)
		}
	}
}

func (r *RedisRelay[T]) forward(ctx context.Context, m *redis.Message) {
	var data T
	if err := json.Unmarshal([]byte(m.Payload), &data); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "dropping relayed message",
			logger.Channel(m.Channel),
			logger.Error(errors.Join(ErrRelayDecode, err)),
		)
		return
	}
	channel := strings.TrimPrefix(m.Channel, r.prefix)
	if _, err := r.local.Publish(ctx, channel, Message[T]{Data: data}); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "local delivery of relayed message failed",
			logger.Channel(channel),
			logger.Error(err),
		)
	}
}
