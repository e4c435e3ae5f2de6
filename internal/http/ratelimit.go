package http

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
)

// ClientLimiter enforces a request budget per client IP: at most Max requests in each
// fixed Window, which starts at the client's first request and resets when it ends.
// Idle clients are dropped by Evict.
type ClientLimiter struct {
	name     string
	max      int
	window   time.Duration
	clock    clock.Clock
	trustXFF bool

	mu      sync.Mutex
	clients map[string]*clientEntry
}

// clientEntry holds one window's bucket. The bucket refills at one token per window, so it
// never regains a whole token before the window is replaced.
type clientEntry struct {
	limiter     *rate.Limiter
	windowStart time.Time
	lastSeen    time.Time
}

// NewClientLimiter returns a limiter allowing max requests per window for each client.
// name labels metrics ("api", "search"). trustXFF uses the first X-Forwarded-For hop as the
// client address. Returns nil when max or window is not positive, which disables limiting.
func NewClientLimiter(name string, max int, window time.Duration, c clock.Clock, trustXFF bool) *ClientLimiter {
	if max <= 0 || window <= 0 {
		return nil
	}
	if c == nil {
		c = clock.Real{}
	}
	return &ClientLimiter{
		name:     name,
		max:      max,
		window:   window,
		clock:    c,
		trustXFF: trustXFF,
		clients:  make(map[string]*clientEntry),
	}
}

// Name returns the metrics label.
func (l *ClientLimiter) Name() string { return l.name }

// Max returns the request budget per window.
func (l *ClientLimiter) Max() int { return l.max }

// Window returns the budget window.
func (l *ClientLimiter) Window() time.Duration { return l.window }

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// Remaining is the whole requests left in the current window.
	Remaining int
	// Reset is the time until the current window ends.
	Reset time.Duration
}

// Allow consumes one request for client.
func (l *ClientLimiter) Allow(client string) Decision {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.clients[client]
	if !ok || !now.Before(e.windowStart.Add(l.window)) {
		e = &clientEntry{
			limiter:     rate.NewLimiter(rate.Every(l.window), l.max),
			windowStart: now,
		}
		l.clients[client] = e
	}
	e.lastSeen = now

	allowed := e.limiter.AllowN(now, 1)
	remaining := int(e.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   allowed,
		Remaining: remaining,
		Reset:     e.windowStart.Add(l.window).Sub(now),
	}
}

// Evict drops clients not seen for idle and returns how many were removed.
// idle is at least one window, so an evicted client's window has always ended.
func (l *ClientLimiter) Evict(idle time.Duration) int {
	if idle < l.window {
		idle = l.window
	}
	cutoff := l.clock.Now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// ClientKey identifies the caller of r by IP address.
func (l *ClientLimiter) ClientKey(r *http.Request) string {
	if l.trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
