package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/afternoon-temperature-service/internal/cache"
	"github.com/kjstillabower/afternoon-temperature-service/internal/client"
	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
	"github.com/kjstillabower/afternoon-temperature-service/internal/config"
	httphandler "github.com/kjstillabower/afternoon-temperature-service/internal/http"
	"github.com/kjstillabower/afternoon-temperature-service/internal/lifecycle"
	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
	"github.com/kjstillabower/afternoon-temperature-service/internal/observability"
	"github.com/kjstillabower/afternoon-temperature-service/internal/scheduler"
	"github.com/kjstillabower/afternoon-temperature-service/internal/service"
	"github.com/kjstillabower/afternoon-temperature-service/internal/traffic"
)

const (
	warmTimeout                   = 30 * time.Second
	shutdownInFlightTimeout       = 10 * time.Second
	shutdownInFlightCheckInterval = 100 * time.Millisecond
)

func main() {
	logger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.LogLevel != os.Getenv("LOG_LEVEL") {
		if l, err := observability.NewLogger(cfg.LogLevel); err == nil {
			logger = l
		}
	}

	clk := clock.Real{}
	lifecycle.MarkStarted(clk.Now())

	bc := breakerConfig(cfg)
	geocoder := client.NewOpenMeteoGeocoder(cfg.GeocodingAPIURL, cfg.GeocodingTimeout, bc)
	forecast, err := client.NewForecastClient(client.ForecastOptions{
		Provider:     cfg.ForecastProvider,
		URL:          cfg.ForecastAPIURL,
		Timeout:      cfg.ForecastTimeout,
		ForecastDays: cfg.ForecastDays,
		UserAgent:    cfg.MetNoUserAgent,
		Breaker:      bc,
	})
	if err != nil {
		logger.Fatal("forecast client", zap.Error(err))
	}
	logger.Info("forecast provider", zap.String("provider", cfg.ForecastProvider), zap.String("url", cfg.ForecastAPIURL))

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	var memoryCache *cache.InMemoryCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, clk)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		memoryCache = cache.NewInMemoryCache(clk)
		cacheSvc = memoryCache
		observability.RegisterCacheSizeGauge(memoryCache.Len)
		logger.Info("cache backend: in_memory")
	}

	temperatureService := service.NewTemperatureService(geocoder, forecast, cacheSvc, clk, logger, service.Options{
		DefaultLocation: models.Coordinates{
			Latitude:  cfg.DefaultLatitude,
			Longitude: cfg.DefaultLongitude,
			Name:      cfg.DefaultLocationName,
		},
		TTL:          cfg.CacheTTL,
		SearchLimit:  cfg.SearchLimit,
		TargetHour:   cfg.TargetHour,
		Coalesce:     cfg.CoalesceRequests,
		FetchTimeout: cfg.RequestTimeout,
	})

	healthConfig := &httphandler.HealthConfig{
		Thresholds: traffic.Thresholds{
			OverloadWindow:      cfg.OverloadWindow,
			OverloadDenialPct:   cfg.OverloadThresholdPct,
			DegradedWindow:      cfg.DegradedWindow,
			DegradedErrorPct:    cfg.DegradedErrorPct,
			DegradedMinRequests: cfg.DegradedMinRequests,
		},
		Breakers: []httphandler.BreakerReporter{geocoder},
	}
	if br, ok := forecast.(httphandler.BreakerReporter); ok {
		healthConfig.Breakers = append(healthConfig.Breakers, br)
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	apiLimiter := httphandler.NewClientLimiter("api", cfg.RateLimitMax, cfg.RateLimitWindow, clk, cfg.TrustForwardedFor)
	searchLimiter := httphandler.NewClientLimiter("search", cfg.SearchRateLimitMax, cfg.SearchRateLimitWindow, clk, cfg.TrustForwardedFor)

	handler := httphandler.NewHandler(temperatureService, logger, httphandler.Options{
		Health:         healthConfig,
		APILimiter:     apiLimiter,
		SearchLimiter:  searchLimiter,
		RequestTimeout: cfg.RequestTimeout,
		Version:        cfg.Version,
		Clock:          clk,
	})

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	warmer := cache.NewCacheWarmer(temperatureService, logger)
	if cfg.WarmOnStartup && len(cfg.TrackedLocations) > 0 {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), warmTimeout)
		if err := warmer.Warm(warmCtx, cfg.TrackedLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
	}

	jobs := scheduler.New(logger)
	scheduleJobs(jobs, cfg, memoryCache, warmer, apiLimiter, searchLimiter, logger)
	jobs.Start()

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.NewRouter(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	jobs.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, shutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

func breakerConfig(cfg *config.Config) client.BreakerConfig {
	return client.BreakerConfig{
		ConsecutiveFailures: uint32(cfg.BreakerFailures),
		Timeout:             cfg.BreakerTimeout,
		Interval:            cfg.BreakerInterval,
		MaxRequests:         uint32(cfg.BreakerMaxRequests),
	}
}

// scheduleJobs registers the housekeeping jobs. A nil memoryCache or limiter skips its job.
func scheduleJobs(s *scheduler.Scheduler, cfg *config.Config, memoryCache *cache.InMemoryCache, warmer scheduler.Warmer, apiLimiter, searchLimiter *httphandler.ClientLimiter, logger *zap.Logger) {
	var added []scheduler.Job
	if memoryCache != nil {
		added = append(added, scheduler.SweepJob(memoryCache, cfg.CacheSweepInterval))
	}
	var evictors []scheduler.Evictor
	for _, l := range []*httphandler.ClientLimiter{apiLimiter, searchLimiter} {
		if l != nil {
			evictors = append(evictors, l)
		}
	}
	if len(evictors) > 0 {
		added = append(added, scheduler.EvictJob(cfg.LimiterEvictInterval, evictors...))
	}
	added = append(added, scheduler.WarmJob(warmer, cfg.TrackedLocations, cfg.WarmInterval, warmTimeout))

	for _, job := range added {
		if err := s.Add(job); err != nil {
			logger.Error("scheduler", zap.String("job", job.Name), zap.Error(err))
		}
	}
}
