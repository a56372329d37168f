package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrijs2005/securebox/internal/logging"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "securebox_request_duration_seconds",
	Help:    "HTTP request duration.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// requestLogger tags every request with an id, logs one line per request and
// feeds the duration histogram.
func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ww.Header().Set("X-Request-Id", requestID)
			log := log.With("request_id", requestID)

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			// Route pattern, not the raw path: tokens in the URL must not
			// explode label cardinality.
			route := chi.RouteContext(r.Context()).RoutePattern()
			requestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			log.Info(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
			)
		})
	}
}
