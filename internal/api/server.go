package api

import (
	"net/http"
	"time"

	"github.com/lumeris/hub/internal/api/controlplane"
	"github.com/lumeris/hub/internal/api/dataplane"
	"github.com/lumeris/hub/internal/cache"
	"github.com/lumeris/hub/internal/circuitbreaker"
	"github.com/lumeris/hub/internal/dashboard"
	"github.com/lumeris/hub/internal/logging"
	"github.com/lumeris/hub/internal/observability"
	"github.com/lumeris/hub/internal/ratelimit"
	"github.com/lumeris/hub/internal/store"
)

// ServerConfig contains dependencies for the HTTP server.
type ServerConfig struct {
	Dashboard   *dashboard.Service
	Records     store.RecordStore
	Cache       *cache.Store
	RouteCache  *cache.Loader // route-tier loader; nil disables the route cache
	Invalidator *cache.Invalidator
	Limiter     *ratelimit.Limiter // nil disables rate limiting
	Breakers    *circuitbreaker.Registry

	RouteTTL       time.Duration
	RequestTimeout time.Duration
}

// NewHandler builds the routed and instrumented API handler.
func NewHandler(cfg ServerConfig) http.Handler {
	mux := http.NewServeMux()

	var routeCache Middleware
	if cfg.RouteCache != nil {
		routeCache = cache.Middleware(cfg.RouteCache, cfg.RouteTTL, cache.RequestKey)
	}
	var limit Middleware
	if cfg.Limiter != nil {
		limit = ratelimit.Middleware(cfg.Limiter, "dashboard", "Too many dashboard requests, please try again later")
	}

	invalidateUser := cfg.Invalidator.After(
		func(r *http.Request) string { return dashboard.ServiceKey(r.PathValue("userId")) },
		cache.PathKey(func(r *http.Request) string { return dataplane.DashboardPath(r.PathValue("userId")) }),
	)

	dpHandler := &dataplane.Handler{
		Dashboard: cfg.Dashboard,
		Records:   cfg.Records,
		Cache:     cfg.Cache,
		Breakers:  cfg.Breakers,
		Started:   time.Now(),
	}
	dpHandler.RegisterRoutes(mux, dataplane.Wrap{
		Dashboard: func(h http.Handler) http.Handler {
			return chain(h,
				tracing(dataplane.DashboardRoute),
				instrument(dataplane.DashboardRoute),
				limit,
				Timeout(cfg.RequestTimeout, "Dashboard request timed out"),
				routeCache,
			)
		},
		Activity: func(h http.Handler) http.Handler {
			return chain(h,
				tracing(dataplane.ActivityRoute),
				instrument(dataplane.ActivityRoute),
				invalidateUser,
			)
		},
	})

	cpHandler := &controlplane.Handler{
		Cache:       cfg.Cache,
		Invalidator: cfg.Invalidator,
	}
	cpHandler.RegisterRoutes(mux)

	return mux
}

func tracing(route string) Middleware {
	return func(next http.Handler) http.Handler {
		return observability.HTTPMiddleware(route, next)
	}
}

// StartHTTPServer creates and starts the HTTP server.
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return server
}
