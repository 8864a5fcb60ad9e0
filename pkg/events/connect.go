package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dmitrymomot/clinicnotify/pkg/logger"
)

// Connect dials NATS, retrying up to cfg.RetryAttempts times. Once connected
// the client reconnects on its own; disconnects and reconnects are logged.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("nats"))

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{logger.Error(err)}
			if sub != nil {
				attrs = append(attrs, logger.Subject(sub.Subject))
			}
			log.Error("nats async error", attrs...)
		}),
	}

	var lastErr error
	for range max(cfg.RetryAttempts, 1) {
		nc, err := nats.Connect(cfg.URL, opts...)
		if err == nil {
			return nc, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrNotReady, lastErr)
}

// Healthcheck reports whether nc is connected.
func Healthcheck(nc *nats.Conn) func(context.Context) error {
	return func(context.Context) error {
		if nc == nil || !nc.IsConnected() {
			return ErrNotReady
		}
		return nil
	}
}
