//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/afternoon-temperature-service/internal/cache"
	"github.com/kjstillabower/afternoon-temperature-service/internal/client"
	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
	"github.com/kjstillabower/afternoon-temperature-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	GeocodingURL     string
	ForecastProvider string
	ForecastURL      string
	CacheBackend     string // "in_memory" or "memcached"
	MemcachedAddr    string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test unless RUN_INTEGRATION is set, since it calls live providers.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("RUN_INTEGRATION not set, skipping integration test")
	}
	return IntegrationTestConfig{
		GeocodingURL:     envOr("GEOCODING_API_URL", "https://geocoding-api.open-meteo.com/v1/search"),
		ForecastProvider: envOr("FORECAST_PROVIDER", client.ProviderOpenMeteo),
		ForecastURL:      envOr("FORECAST_API_URL", "https://api.open-meteo.com/v1/forecast"),
		CacheBackend:     os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr:    envOr("MEMCACHED_ADDRS", "localhost:11211"),
	}
}

// SetupIntegrationService creates a fully configured service for integration tests.
// Returns the service, its cache, and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.TemperatureService, cache.Cache, func()) {
	t.Helper()
	bc := client.BreakerConfig{}
	geocoder := client.NewOpenMeteoGeocoder(cfg.GeocodingURL, 5*time.Second, bc)
	forecast, err := client.NewForecastClient(client.ForecastOptions{
		Provider:  cfg.ForecastProvider,
		URL:       cfg.ForecastURL,
		Timeout:   5 * time.Second,
		UserAgent: "afternoon-temperature-service-integration/1.0",
		Breaker:   bc,
	})
	if err != nil {
		t.Fatalf("NewForecastClient() error = %v", err)
	}

	var cacheSvc cache.Cache
	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2, nil)
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}
	if cacheSvc == nil {
		cacheSvc = cache.NewInMemoryCache(clock.Real{})
	}

	svc := service.NewTemperatureService(geocoder, forecast, cacheSvc, clock.Real{}, zap.NewNop(), service.Options{TTL: time.Hour})
	return svc, cacheSvc, cleanup
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
