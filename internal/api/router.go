package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrymomot/clinicnotify/pkg/httpserver"
	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/metrics"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
	"github.com/dmitrymomot/clinicnotify/pkg/registry"
	"github.com/dmitrymomot/clinicnotify/pkg/requestid"
)

// Service is the notification façade the handlers call.
// *notifications.Notifier implements it.
type Service interface {
	NotifyManual(ctx context.Context, recipientID int64, msg notifications.Message) (*notifications.Notification, error)
	NotifyBroadcast(ctx context.Context, msg notifications.Message) ([]notifications.Notification, error)
	History(ctx context.Context, recipientID int64, opts notifications.ListOptions) ([]notifications.Notification, error)
	ListAll(ctx context.Context, opts notifications.ListOptions) ([]notifications.Notification, error)
	MarkRead(ctx context.Context, id, recipientID int64) (bool, error)
	MarkAllRead(ctx context.Context, recipientID int64) (int, error)
	Delete(ctx context.Context, id, recipientID int64) error
	CountUnread(ctx context.Context, recipientID int64) (int, error)
}

var _ Service = (*notifications.Notifier)(nil)

// Options wires the router. Realtime, Registry and Checks are optional.
type Options struct {
	Service        Service
	Registry       *registry.Registry
	Realtime       http.Handler
	Logger         *slog.Logger
	AllowedOrigins []string
	Checks         []httpserver.Check
	CheckTimeout   time.Duration
}

type handlers struct {
	svc      Service
	registry *registry.Registry
	logger   *slog.Logger
}

// NewRouter builds the HTTP surface:
//
//	GET    /ws
//	GET    /api/notifications
//	GET    /api/notifications/unread-count
//	PUT    /api/notifications/mark-all-read
//	PUT    /api/notifications/{id}/read
//	DELETE /api/notifications/{id}
//	GET    /api/admin/notifications
//	POST   /api/admin/notifications
//	POST   /api/admin/notifications/broadcast
//	GET    /api/admin/connections
//	GET    /metrics
//	GET    /health
func NewRouter(opts Options) chi.Router {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{
		svc:      opts.Service,
		registry: opts.Registry,
		logger:   log.With(logger.Component("api")),
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderUserID, HeaderUserRole, requestid.Header},
		ExposedHeaders:   []string{requestid.Header},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", httpserver.HealthCheckHandler(h.logger, opts.CheckTimeout, opts.Checks...))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if opts.Realtime != nil {
		r.Method(http.MethodGet, "/ws", opts.Realtime)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(metrics.Middleware)
		r.Use(h.authenticate)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.listOwn)
			r.Get("/unread-count", h.unreadCount)
			r.Put("/mark-all-read", h.markAllRead)
			r.Put("/{id}/read", h.markRead)
			r.Delete("/{id}", h.delete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Get("/notifications", h.listAll)
			r.Post("/notifications", h.send)
			r.Post("/notifications/broadcast", h.broadcast)
			r.Get("/connections", h.connections)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { h.fail(w, r, ErrNotFound) })
	return r
}
