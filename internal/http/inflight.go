package http

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/afternoon-temperature-service/internal/observability"
)

const defaultDrainPoll = 50 * time.Millisecond

// InFlightTracker counts requests still being served so shutdown can drain them.
type InFlightTracker struct {
	count atomic.Int64
}

// Increment marks a request as started.
func (t *InFlightTracker) Increment() { t.count.Add(1) }

// Decrement marks a request as finished.
func (t *InFlightTracker) Decrement() { t.count.Add(-1) }

// Count returns the number of requests in progress.
func (t *InFlightTracker) Count() int64 { return t.count.Load() }

// WaitForZero polls every checkInterval until no requests remain or ctx ends.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	if t.Count() == 0 {
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = defaultDrainPoll
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.Count() == 0 {
				return nil
			}
		}
	}
}

// requests is fed by MetricsMiddleware for every routed request.
var requests = &InFlightTracker{}

// beginRequest records a request start in the tracker and the in-flight gauge and returns
// the matching completion func.
func beginRequest() func() {
	requests.Increment()
	observability.HTTPRequestsInFlight.Inc()
	return func() {
		observability.HTTPRequestsInFlight.Dec()
		requests.Decrement()
	}
}

// InFlightCount returns the number of requests the router is serving.
func InFlightCount() int64 {
	return requests.Count()
}

// WaitForInFlight blocks until the router has drained or ctx ends.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return requests.WaitForZero(ctx, checkInterval)
}
