// Command notifyd runs the clinic notification service: the websocket
// endpoint, the notification REST API and the domain event subscriber.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/clinicnotify/internal/api"
	"github.com/dmitrymomot/clinicnotify/pkg/broadcast"
	"github.com/dmitrymomot/clinicnotify/pkg/config"
	"github.com/dmitrymomot/clinicnotify/pkg/events"
	"github.com/dmitrymomot/clinicnotify/pkg/httpserver"
	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/metrics"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
	"github.com/dmitrymomot/clinicnotify/pkg/realtime"
	"github.com/dmitrymomot/clinicnotify/pkg/redis"
	"github.com/dmitrymomot/clinicnotify/pkg/registry"
	"github.com/dmitrymomot/clinicnotify/pkg/requestid"
)

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("notifyd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	cleanup := []func(context.Context){store.close}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i](closeCtx)
		}
	}()

	var checks []httpserver.Check
	if store.check != nil {
		checks = append(checks, *store.check)
	}

	mapper, err := newMapper(cfg)
	if err != nil {
		return err
	}

	reg := registry.New(
		registry.WithObserver(metrics.SetLiveConnections),
		registry.WithLogger(log),
	)

	hubOpts := []realtime.HubOption{realtime.WithBufferSize(cfg.WSBufferSize)}
	if cfg.RelayEnabled {
		client, relayOpt, err := startRelay(ctx, log)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, func(context.Context) { _ = client.Close() })
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
		hubOpts = append(hubOpts, relayOpt)
	}
	hub := realtime.NewHub(hubOpts...)
	cleanup = append(cleanup, func(context.Context) { _ = hub.Close() })

	dispatcher := notifications.NewDispatcher(hub,
		notifications.WithSendTimeout(cfg.SendTimeout),
		notifications.WithDispatcherLogger(log),
	)
	notifier := notifications.NewNotifier(store.storage, store.directory, dispatcher,
		notifications.WithMapper(mapper),
		notifications.WithStatusTimeout(cfg.StatusTimeout),
		notifications.WithNotifierLogger(log),
	)

	ws := realtime.NewServer(hub, reg,
		realtime.WithServerLogger(log),
		realtime.WithKeepalive(cfg.WSPingInterval, cfg.WSPongWait),
		realtime.WithWriteTimeout(cfg.WSWriteTimeout),
		realtime.WithAllowedOrigins(cfg.AllowedOrigins...),
	)

	// Shutdown drains in this order: stop consuming events, let queued
	// pushes finish, then close live connections.
	var drain []httpserver.Option
	if cfg.EventsEnabled {
		sub, nc, err := startEvents(ctx, notifier, log)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, func(context.Context) { nc.Close() })
		checks = append(checks, httpserver.Check{Name: "nats", Fn: events.Healthcheck(nc)})
		drain = append(drain, httpserver.WithDrainHook(func(context.Context) error { return sub.Stop() }))
	}
	drain = append(drain,
		httpserver.WithDrainHook(notifier.Close),
		httpserver.WithDrainHook(ws.Close),
	)

	router := api.NewRouter(api.Options{
		Service:        notifier,
		Registry:       reg,
		Realtime:       ws,
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		Checks:         checks,
		CheckTimeout:   cfg.HealthTimeout,
	})

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	srv := httpserver.NewFromConfig(httpCfg, append(drain, httpserver.WithLogger(log))...)

	log.InfoContext(ctx, "notifyd starting",
		slog.String("store", cfg.Store),
		slog.Bool("relay", cfg.RelayEnabled),
		slog.Bool("events", cfg.EventsEnabled),
	)
	return srv.Run(ctx, router)
}

func newMapper(cfg appConfig) (*notifications.Mapper, error) {
	catalog, err := notifications.LoadCatalogFile(cfg.TemplatesPath)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.TZ, err)
	}
	return notifications.NewMapper(
		notifications.WithCatalog(catalog),
		notifications.WithLocation(loc),
	), nil
}

// startRelay connects to Redis and starts the relay loop. The returned option
// routes hub publishes through the relay.
func startRelay(ctx context.Context, log *slog.Logger) (*goredis.Client, realtime.HubOption, error) {
	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return nil, nil, fmt.Errorf("redis config: %w", err)
	}
	client, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return nil, nil, err
	}

	opt := realtime.WithPublisher(func(local *broadcast.Topics[notifications.Envelope]) broadcast.Publisher[notifications.Envelope] {
		relay := broadcast.NewRedisRelay(client, local,
			broadcast.WithRelayPrefix(redisCfg.ChannelPrefix),
			broadcast.WithRelayLogger(log),
		)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.ErrorContext(ctx, "redis relay stopped", logger.Error(err))
			}
		}()
		return relay
	})
	return client, opt, nil
}

func startEvents(ctx context.Context, sink events.Sink, log *slog.Logger) (*events.Subscriber, *nats.Conn, error) {
	var natsCfg events.Config
	if err := config.Load(&natsCfg); err != nil {
		return nil, nil, fmt.Errorf("nats config: %w", err)
	}
	nc, err := events.Connect(ctx, natsCfg, log)
	if err != nil {
		return nil, nil, err
	}
	sub := events.NewSubscriber(nc, sink,
		events.WithLogger(log),
		events.WithSubjectPrefix(natsCfg.SubjectPrefix),
		events.WithQueueGroup(natsCfg.QueueGroup),
		events.WithHandlerTimeout(natsCfg.HandlerTimeout),
	)
	if err := sub.Start(ctx); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return sub, nc, nil
}
