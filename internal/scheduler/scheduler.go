// Package scheduler runs the service's periodic housekeeping: cache sweeps, rate-limiter
// eviction and cache warming.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/afternoon-temperature-service/internal/observability"
)

// Job is a named task run every Interval. Run receives a context bounded by the job timeout.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler wraps a gocron scheduler. Each job runs in singleton mode so a slow run is never
// overlapped by the next tick.
type Scheduler struct {
	scheduler *gocron.Scheduler
	logger    *zap.Logger
	jobs      int
}

// New creates a Scheduler running jobs in UTC.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{scheduler: gocron.NewScheduler(time.UTC), logger: logger}
}

// Add registers job. Jobs with a non-positive interval are skipped.
func (s *Scheduler) Add(job Job) error {
	if job.Interval <= 0 {
		s.logger.Debug("scheduler: job disabled", zap.String("job", job.Name))
		return nil
	}
	_, err := s.scheduler.Every(job.Interval).WaitForSchedule().SingletonMode().Do(func() {
		s.run(job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.jobs++
	s.logger.Info("scheduler: job registered", zap.String("job", job.Name), zap.Duration("interval", job.Interval))
	return nil
}

func (s *Scheduler) run(job Job) {
	ctx := context.Background()
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Warn("scheduler: job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	s.logger.Debug("scheduler: job completed", zap.String("job", job.Name), zap.Duration("duration", time.Since(start)))
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int { return s.jobs }

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	if s.jobs == 0 {
		s.logger.Info("scheduler: no jobs configured; nothing to schedule")
		return
	}
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Sweeper drops expired cache entries and reports how many were removed.
type Sweeper interface {
	Sweep() int
}

// SweepJob removes expired entries from the in-memory cache.
func SweepJob(c Sweeper, interval time.Duration) Job {
	return Job{
		Name:     "cache_sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if n := c.Sweep(); n > 0 {
				observability.CacheEvictionsTotal.Add(float64(n))
			}
			return nil
		},
	}
}

// Evictor forgets clients that have been idle for at least idle.
type Evictor interface {
	Evict(idle time.Duration) int
}

// EvictJob drops idle clients from each rate limiter.
func EvictJob(interval time.Duration, limiters ...Evictor) Job {
	return Job{
		Name:     "limiter_evict",
		Interval: interval,
		Run: func(ctx context.Context) error {
			for _, l := range limiters {
				l.Evict(interval)
			}
			return nil
		},
	}
}

// Warmer refreshes the cached results of a list of locations.
type Warmer interface {
	Warm(ctx context.Context, locations []string) error
}

// WarmJob refreshes tracked locations ahead of expiry.
func WarmJob(w Warmer, locations []string, interval, timeout time.Duration) Job {
	if len(locations) == 0 {
		interval = 0
	}
	return Job{
		Name:     "cache_warm",
		Interval: interval,
		Timeout:  timeout,
		Run: func(ctx context.Context) error {
			return w.Warm(ctx, locations)
		},
	}
}
