package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hrpulse/hr-notify/internal/api/handler"
	apimw "github.com/hrpulse/hr-notify/internal/api/middleware"
	"github.com/hrpulse/hr-notify/internal/ratelimiter"
	"github.com/hrpulse/hr-notify/internal/realtime"
	"github.com/hrpulse/hr-notify/internal/repository"
	"github.com/hrpulse/hr-notify/internal/service"
	"github.com/hrpulse/hr-notify/internal/worker"
)

// Deps bundles everything the router wires together.
type Deps struct {
	Service   *service.DispatchService
	Store     repository.Store
	Processor worker.Processor
	Hub       *realtime.Hub
	Tokens    *realtime.TokenIssuer
	Limiter   *ratelimiter.DispatchLimiter
	Registry  prometheus.Gatherer
	Logger    *zap.Logger
	OnQueued  func() // dispatch-enqueued metric callback (nil = no-op)
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// --- global middleware ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(d.Logger))

	// --- handler instances ---
	dh := handler.NewDispatchHandler(d.Service, d.Limiter, d.Logger, d.OnQueued)
	nh := handler.NewNotificationHandler(d.Service, d.Logger)
	qh := handler.NewQueueHandler(d.Processor, d.Store, d.Logger)
	sh := handler.NewSocketHandler(d.Tokens, d.Logger)

	// --- routes ---
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	// Websocket join; the token query parameter is the access control.
	r.Get("/ws", d.Hub.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apimw.RequireUser)

		// Admin-only pipeline surface
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin)
			r.Post("/dispatches", dh.Create)
			r.Post("/queue/process", qh.Process)
			r.Get("/queue/stats", qh.Stats)
		})

		// Current user's feed — note: /unread and /read-all are registered
		// before /{id}/read so chi does not treat the literals as IDs.
		r.Get("/notifications", nh.List)
		r.Get("/notifications/unread", nh.ListUnread)
		r.Put("/notifications/read-all", nh.MarkAllRead)
		r.Put("/notifications/{id}/read", nh.MarkRead)

		r.Get("/socket-token", sh.Token)
	})

	return r
}
