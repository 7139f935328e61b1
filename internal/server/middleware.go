package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/telhawk-systems/feedgen/common/httputil"
	"github.com/telhawk-systems/feedgen/common/logging"
	"github.com/telhawk-systems/feedgen/internal/metrics"
	"github.com/telhawk-systems/feedgen/internal/ratelimit"
)

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RateLimit rejects clients over their per-IP budget with 429. Limiter
// failures let the request through.
func RateLimit(limiter ratelimit.RateLimiter, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + httputil.GetClientIP(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", logging.Error(err))
			} else if !allowed {
				w.Header().Set("Retry-After", "1")
				httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog logs each request and records route metrics. route names the
// metric label so raw paths never become label values.
func AccessLog(logger *logging.Logger, route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			name := route(r)
			metrics.RequestsTotal.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
			metrics.RequestDuration.WithLabelValues(name).Observe(elapsed.Seconds())

			logger.InfoContext(r.Context(), "request",
				logging.Method(r.Method),
				logging.Path(r.URL.Path),
				logging.Status(rec.status),
				logging.Duration(elapsed))
		})
	}
}
