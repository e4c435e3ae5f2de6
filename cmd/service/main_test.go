package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/afternoon-temperature-service/internal/cache"
	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
	"github.com/kjstillabower/afternoon-temperature-service/internal/config"
	httphandler "github.com/kjstillabower/afternoon-temperature-service/internal/http"
	"github.com/kjstillabower/afternoon-temperature-service/internal/scheduler"
)

type noopWarmer struct{}

func (noopWarmer) Warm(ctx context.Context, locations []string) error { return nil }

func TestScheduleJobs(t *testing.T) {
	cfg := &config.Config{
		CacheSweepInterval:   time.Minute,
		LimiterEvictInterval: time.Minute,
		TrackedLocations:     []string{"Belgrade"},
		WarmInterval:         time.Hour,
	}
	limiter := httphandler.NewClientLimiter("api", 10, time.Minute, nil, false)

	s := scheduler.New(zap.NewNop())
	scheduleJobs(s, cfg, cache.NewInMemoryCache(clock.Real{}), noopWarmer{}, limiter, nil, zap.NewNop())
	if s.Len() != 3 {
		t.Errorf("jobs = %d, want 3", s.Len())
	}

	// memcached backend, limits disabled, warming off
	s = scheduler.New(zap.NewNop())
	scheduleJobs(s, &config.Config{CacheSweepInterval: time.Minute, LimiterEvictInterval: time.Minute}, nil, noopWarmer{}, nil, nil, zap.NewNop())
	if s.Len() != 0 {
		t.Errorf("jobs = %d, want 0", s.Len())
	}
}

func TestBreakerConfig(t *testing.T) {
	bc := breakerConfig(&config.Config{BreakerFailures: 3, BreakerTimeout: 10 * time.Second, BreakerMaxRequests: 2})
	if bc.ConsecutiveFailures != 3 || bc.Timeout != 10*time.Second || bc.MaxRequests != 2 || bc.Interval != 0 {
		t.Errorf("breakerConfig = %+v", bc)
	}
}
