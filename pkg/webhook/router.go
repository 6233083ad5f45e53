package webhook

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jordigilh/rounds/pkg/metrics"
	"github.com/jordigilh/rounds/pkg/ports"
)

// NewRouter builds the webhook surface: one POST route per
// PollPort/ManagementPort operation plus an unauthenticated /health.
// requireAuth gates every route but /health behind a bearer token.
func NewRouter(poll ports.PollPort, management ports.ManagementPort, requireAuth bool, authToken string) http.Handler {
	return NewRouterWithMetrics(poll, management, requireAuth, authToken, nil)
}

// NewRouterWithMetrics is NewRouter with Prometheus instrumentation
// wired in. Passing a nil m disables recording entirely.
func NewRouterWithMetrics(poll ports.PollPort, management ports.ManagementPort, requireAuth bool, authToken string, m *metrics.Metrics) http.Handler {
	h := NewHandler(poll, management)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(limitBody)
	r.Use(metricsMiddleware(m))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	r.Get("/health", h.HandleHealth)

	r.Group(func(authed chi.Router) {
		authed.Use(bearerAuth(requireAuth, authToken))
		authed.Post("/api/poll", h.HandlePoll)
		authed.Post("/api/investigate", h.HandleInvestigate)
		authed.Post("/api/mute", h.HandleMute)
		authed.Post("/api/resolve", h.HandleResolve)
		authed.Post("/api/retriage", h.HandleRetriage)
		authed.Post("/api/reinvestigate", h.HandleReinvestigate)
		authed.Post("/api/details", h.HandleDetails)
		authed.Post("/api/list", h.HandleList)
	})

	return r
}
