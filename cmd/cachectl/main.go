package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitechdev/CacheSpec/pkg/cachespec"
	"github.com/bitechdev/CacheSpec/pkg/config"
	"github.com/bitechdev/CacheSpec/pkg/errortracking"
	"github.com/bitechdev/CacheSpec/pkg/logger"
	"github.com/bitechdev/CacheSpec/pkg/metrics"
	"github.com/bitechdev/CacheSpec/pkg/tracing"
)

func main() {
	// Load configuration
	cfgMgr := config.NewManager()
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg, err := cfgMgr.GetConfig()
	if err != nil {
		log.Fatalf("Failed to get configuration: %v", err)
	}

	// Initialize logger with configuration
	logger.Init(cfg.Logger.Dev)
	if cfg.Logger.Path != "" {
		logger.UpdateLoggerPath(cfg.Logger.Path, cfg.Logger.Dev)
	}
	logger.Info("CacheSpec cachectl starting")

	// Initialize error tracking
	tracker, err := errortracking.NewProviderFromConfig(cfg.ErrorTracking)
	if err != nil {
		logger.Error("Failed to initialize error tracking: %v", err)
		os.Exit(1)
	}
	logger.InitErrorTracking(tracker)
	defer logger.CloseErrorTracking()

	// Initialize tracing
	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Endpoint:       cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing: %v", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Warn("Tracer shutdown failed: %v", err)
		}
	}()

	// Initialize metrics
	if cfg.Metrics.Enabled {
		metrics.SetProvider(metrics.NewPrometheusProvider(metrics.DefaultConfig()))
	}

	ctx := context.Background()

	// Build the cache from config
	cache, err := cachespec.FromConfig(ctx, cfg)
	if err != nil {
		logger.Error("Failed to build cache: %v", err)
		os.Exit(1)
	}
	defer cache.Close()
	cachespec.SetDefaultCache(cache)

	logger.Info("Cache ready - store provider '%s', marker store '%s'",
		cfg.Store.Provider, cfg.Scheduler.MarkerStore)

	if err := smokeScenario(ctx, cache); err != nil {
		logger.Error("Smoke scenario failed: %v", err)
		os.Exit(1)
	}

	// Serve /metrics until interrupted when metrics are enabled.
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.GetProvider().Handler())
		srv := &http.Server{Addr: ":9090", Handler: mux}

		go func() {
			logger.Info("Metrics endpoint listening on :9090/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed: %v", err)
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed: %v", err)
		}
	}

	logger.Info("cachectl done")
}

// smokeScenario exercises the main cache surfaces end to end: plain
// reads/writes, tag invalidation, dependency cascades and versioning.
func smokeScenario(ctx context.Context, cache *cachespec.Cache) error {
	type user struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	if err := cache.SetWithTags(ctx, "user:1", user{ID: 1, Name: "alice"}, time.Hour, "users", "active"); err != nil {
		return err
	}

	var u user
	if err := cache.Get(ctx, "user:1", &u); err != nil {
		return err
	}
	logger.Info("Fetched user:1 -> %s", u.Name)

	// Producer is only invoked on a miss; a second call is a pure hit.
	if err := cache.GetOrCompute(ctx, "user:2", &u, time.Hour, func(ctx context.Context) (any, error) {
		return user{ID: 2, Name: "bob"}, nil
	}); err != nil {
		return err
	}

	if err := cache.Dependencies().DependsOn(ctx, "user:2", "user:1"); err != nil {
		return err
	}
	removed, err := cache.Invalidate(ctx, "user:1")
	if err != nil {
		return err
	}
	logger.Info("Invalidated user:1 cascade, %d keys removed", removed)

	if err := cache.Versions().SetVersion(ctx, "report", 1, []byte(`{"rows":10}`), time.Hour); err != nil {
		return err
	}
	if err := cache.Versions().SetVersion(ctx, "report", 2, []byte(`{"rows":12}`), time.Hour); err != nil {
		return err
	}
	latest, err := cache.Versions().Latest(ctx, "report")
	if err != nil {
		return err
	}
	logger.Info("Latest report version: %d", latest)

	if err := cache.InvalidateTag(ctx, "users"); err != nil {
		return err
	}

	stats, err := cache.Stats(ctx)
	if err != nil {
		return err
	}
	logger.Info("Store stats - hits=%d misses=%d keys=%d", stats.Hits, stats.Misses, stats.Keys)
	return nil
}
