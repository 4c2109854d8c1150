package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumeris/hub/internal/api"
	"github.com/lumeris/hub/internal/cache"
	"github.com/lumeris/hub/internal/circuitbreaker"
	"github.com/lumeris/hub/internal/config"
	"github.com/lumeris/hub/internal/dashboard"
	"github.com/lumeris/hub/internal/logging"
	"github.com/lumeris/hub/internal/metrics"
	"github.com/lumeris/hub/internal/observability"
	"github.com/lumeris/hub/internal/ratelimit"
	"github.com/lumeris/hub/internal/recommend"
	"github.com/lumeris/hub/internal/store"
)

func serveCmd() *cobra.Command {
	var (
		listenAddr  string
		memoryStore bool
		fixtures    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Daemon.HTTPAddr = listenAddr
			}
			return serve(cmd.Context(), cfg, memoryStore, fixtures)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().BoolVar(&memoryStore, "memory-store", false, "Keep records in process memory instead of Postgres")
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "YAML fixtures to load into the record store at startup")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, memoryStore bool, fixtures string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)
	if cfg.Daemon.AccessLog != "" {
		if err := logging.Access().SetOutput(cfg.Daemon.AccessLog); err != nil {
			return fmt.Errorf("open access log: %w", err)
		}
		defer logging.Access().Close()
	}
	metrics.InitPrometheus("lumeris", nil)

	if err := observability.Init(ctx, observability.Config{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		SampleRate:     cfg.Tracing.SampleRate,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.Shutdown(context.Background())

	records, err := openRecords(ctx, cfg, memoryStore)
	if err != nil {
		return err
	}
	defer records.Close()
	if fixtures != "" {
		if err := loadFixtures(ctx, fixtures, records); err != nil {
			return err
		}
	}

	// Cache: shared Redis backend when enabled, in-memory fallback always.
	var redisCache *cache.RedisCache
	var shared cache.Cache
	if cfg.Redis.Enabled {
		redisCache = cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		shared = redisCache
	}
	cacheStore := cache.NewStore(cache.NewInMemoryCache(), shared, cache.StoreConfig{
		ConnectTimeout:   cfg.Cache.ConnectTimeout,
		RecoveryInterval: cfg.Cache.RecoveryInterval,
	})
	defer cacheStore.Close()
	cacheStore.Connect(ctx)

	var invalidator *cache.Invalidator
	if redisCache != nil {
		invalidator = cache.NewInvalidator(cacheStore, redisCache.Client())
		go invalidator.Listen(ctx)
	} else {
		invalidator = cache.NewInvalidator(cacheStore, nil)
	}
	defer invalidator.Close()

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		var primary ratelimit.Backend
		if redisCache != nil {
			primary = ratelimit.NewRedisBackend(redisCache.Client(), cfg.Redis.KeyPrefix)
		}
		limiter = ratelimit.New(ratelimit.NewFallbackBackend(primary), ratelimit.Rule{
			Limit:  cfg.RateLimit.RequestsPerMinute,
			Window: time.Minute,
			Burst:  cfg.RateLimit.Burst,
		})
	}

	serviceLoader := cache.NewLoader(cacheStore, cache.TierService)
	routeLoader := cache.NewLoader(cacheStore, cache.TierRoute)

	bc := cfg.Dashboard.Breaker
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		ErrorPct:       bc.ErrorPct,
		WindowDuration: bc.Window,
		OpenDuration:   bc.OpenDuration,
		HalfOpenProbes: bc.HalfOpenProbes,
		MinRequests:    bc.MinRequests,
	}, nil)

	svc := dashboard.NewService(records, serviceLoader, recommend.New(cfg.Recommendations), dashboard.Config{
		ServiceTTL:        cfg.Cache.ServiceTTL,
		UpstreamTimeout:   cfg.Dashboard.UpstreamTimeout,
		TransactionsLimit: cfg.Dashboard.TransactionsLimit,
		ActivitiesLimit:   cfg.Dashboard.ActivitiesLimit,
		ActivityLookback:  time.Duration(cfg.Dashboard.ActivityLookbackDays) * 24 * time.Hour,
		Breakers:          breakers,
	})

	httpServer := api.StartHTTPServer(cfg.Daemon.HTTPAddr, api.ServerConfig{
		Dashboard:      svc,
		Records:        records,
		Cache:          cacheStore,
		RouteCache:     routeLoader,
		Invalidator:    invalidator,
		Limiter:        limiter,
		Breakers:       breakers,
		RouteTTL:       cfg.Cache.RouteTTL,
		RequestTimeout: cfg.Dashboard.RequestTimeout,
	})
	logging.Op().Info("lumeris hub started",
		"addr", cfg.Daemon.HTTPAddr,
		"redis", cfg.Redis.Enabled,
		"memory_store", memoryStore,
		"rate_limit", cfg.RateLimit.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Op().Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	// Let in-flight cache writes land before the backends close.
	routeLoader.Wait()
	serviceLoader.Wait()
	return nil
}

func openRecords(ctx context.Context, cfg *config.Config, memoryStore bool) (store.RecordStore, error) {
	if memoryStore {
		logging.Op().Warn("using in-memory record store; data is lost on exit")
		return store.NewMemoryStore(), nil
	}
	pg, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return pg, nil
}
