package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/feedgen/common/logging"
	"github.com/telhawk-systems/feedgen/common/middleware"
	"github.com/telhawk-systems/feedgen/internal/handlers"
	"github.com/telhawk-systems/feedgen/internal/ratelimit"
)

// Options configures the middleware around the routes.
type Options struct {
	CORS    middleware.CORSConfig
	Limiter ratelimit.RateLimiter
	Logger  *logging.Logger
}

// NewRouter constructs a ServeMux with the read API routes registered.
func NewRouter(h *handlers.Handler, opts Options) http.Handler {
	if opts.Limiter == nil {
		opts.Limiter = &ratelimit.NoOpRateLimiter{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	mux := http.NewServeMux()

	// Feed generator XRPC
	mux.HandleFunc("GET /xrpc/app.bsky.feed.getFeedSkeleton", h.GetFeedSkeleton)

	// Browsing API
	mux.HandleFunc("GET /posts", h.ListPosts)
	mux.HandleFunc("GET /stats", h.Stats)

	// Health endpoints
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	route := func(r *http.Request) string {
		if _, pattern := mux.Handler(r); pattern != "" {
			return pattern
		}
		return "unmatched"
	}

	logger := opts.Logger.WithComponent("http")

	var handler http.Handler = mux
	handler = RateLimit(opts.Limiter, logger)(handler)
	handler = AccessLog(logger, route)(handler)
	handler = middleware.CORS(opts.CORS)(handler)
	return middleware.RequestID(handler)
}
