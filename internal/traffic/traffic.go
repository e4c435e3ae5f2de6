// Package traffic keeps sliding windows of request outcomes and derives the
// service health status from them.
package traffic

import (
	"sync"
	"time"

	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
)

// Health status values, in priority order.
const (
	StatusShuttingDown = "shutting-down"
	StatusOverloaded   = "overloaded"
	StatusDegraded     = "degraded"
	StatusHealthy      = "healthy"
)

const defaultRetention = 15 * time.Minute

var defaultTracker = NewTracker(nil, defaultRetention)

// RecordSuccess records a successful request outcome.
func RecordSuccess() { defaultTracker.RecordSuccess() }

// RecordError records a failed request outcome (upstream error, timeout, etc.).
func RecordError() { defaultTracker.RecordError() }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.RecordDenied() }

// RequestCount returns the number of outcomes (success + error + denied) within the window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.DenialCount(window) }

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors (denied excluded).
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Evaluate derives the health status from the default tracker.
func Evaluate(th Thresholds) Health { return defaultTracker.Evaluate(th) }

// Reset clears all recorded outcomes. For tests only.
func Reset() { defaultTracker.Reset() }

// Thresholds configures when the tracker reports overloaded or degraded.
// A zero window disables the corresponding check.
type Thresholds struct {
	ShuttingDown bool

	OverloadWindow time.Duration
	// OverloadDenialPct is the share of requests in OverloadWindow that were denied
	// before the service reports overloaded.
	OverloadDenialPct int

	DegradedWindow   time.Duration
	DegradedErrorPct int
	// DegradedMinRequests avoids flapping on a single failure after idle periods.
	DegradedMinRequests int
}

// Health is an evaluated status and the reason it was chosen.
type Health struct {
	Status string
	Reason string
}

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu           sync.Mutex
	clock        clock.Clock
	retention    time.Duration
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// NewTracker returns a Tracker that keeps outcomes for retention. A nil clock uses wall time.
func NewTracker(c clock.Clock, retention time.Duration) *Tracker {
	if c == nil {
		c = clock.Real{}
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Tracker{clock: c, retention: retention}
}

// RecordSuccess records a successful request outcome in the tracker.
func (t *Tracker) RecordSuccess() { t.recordOutcome(&t.successTimes) }

// RecordError records a failed request outcome in the tracker.
func (t *Tracker) RecordError() { t.recordOutcome(&t.errorTimes) }

// RecordDenied records a rate-limit denial (429) in the tracker.
func (t *Tracker) RecordDenied() { t.recordOutcome(&t.deniedTimes) }

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns the total number of outcomes (success + error + denied) within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	return countInWindow(t.successTimes, cutoff) +
		countInWindow(t.errorTimes, cutoff) +
		countInWindow(t.deniedTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, t.clock.Now().Add(-window))
}

// ErrorRate returns (errorCount, totalCount) within the window.
// Denials are excluded from the error rate.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	errCount := countInWindow(t.errorTimes, cutoff)
	return errCount, errCount + countInWindow(t.successTimes, cutoff)
}

// Evaluate returns the highest-priority status that applies:
// shutting-down > overloaded > degraded > healthy.
func (t *Tracker) Evaluate(th Thresholds) Health {
	if th.ShuttingDown {
		return Health{Status: StatusShuttingDown, Reason: "signal"}
	}
	if th.OverloadWindow > 0 && th.OverloadDenialPct > 0 {
		total := t.RequestCount(th.OverloadWindow)
		denied := t.DenialCount(th.OverloadWindow)
		if total > 0 && denied*100 >= th.OverloadDenialPct*total {
			return Health{Status: StatusOverloaded, Reason: "rate_limit_denials"}
		}
	}
	if th.DegradedWindow > 0 && th.DegradedErrorPct > 0 {
		errs, total := t.ErrorRate(th.DegradedWindow)
		if total > 0 && total >= th.DegradedMinRequests && errs*100 >= th.DegradedErrorPct*total {
			return Health{Status: StatusDegraded, Reason: "error_rate_breach"}
		}
	}
	return Health{Status: StatusHealthy}
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention period. Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
