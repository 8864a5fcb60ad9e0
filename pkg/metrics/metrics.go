package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch outcomes.
const (
	OutcomeDelivered  = "delivered" // at least one connection received the push
	OutcomeNoListener = "no_listener"
	OutcomeRelayed    = "relayed" // handed to another node, receivers unknown
	OutcomeError      = "error"
)

var (
	dispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_dispatch_attempts_total",
		Help: "Real-time publish attempts by channel kind and outcome.",
	}, []string{"channel", "outcome"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notify_dispatch_duration_seconds",
		Help:    "Duration of a single channel publish.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})

	notificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_notifications_created_total",
		Help: "Durable notifications created by category.",
	}, []string{"category"})

	liveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notify_live_connections",
		Help: "Currently open real-time connections.",
	})

	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_events_received_total",
		Help: "Domain events consumed from the message bus by subject and result.",
	}, []string{"subject", "result"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"path", "method", "status"})
)

// ObserveDispatch records one channel publish.
func ObserveDispatch(channelKind, outcome string, d time.Duration) {
	dispatchAttempts.WithLabelValues(channelKind, outcome).Inc()
	dispatchDuration.WithLabelValues(channelKind).Observe(d.Seconds())
}

// NotificationCreated counts a stored notification.
func NotificationCreated(category string) {
	notificationsCreated.WithLabelValues(category).Inc()
}

// SetLiveConnections updates the live connection gauge.
func SetLiveConnections(n int) {
	liveConnections.Set(float64(n))
}

// EventReceived counts a consumed bus event.
func EventReceived(subject, result string) {
	eventsReceived.WithLabelValues(subject, result).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records RED metrics per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}

		status := strconv.Itoa(ww.Status())
		httpDuration.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(path, r.Method, status).Inc()
	})
}
