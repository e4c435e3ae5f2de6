package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/afternoon-temperature-service/internal/apperror"
	"github.com/kjstillabower/afternoon-temperature-service/internal/observability"
)

// Provider labels used for metrics, breaker names and log fields.
const (
	ProviderGeocoding = "geocoding"
	ProviderOpenMeteo = "open_meteo"
	ProviderMetNo     = "met_no"
)

// ErrDecode marks a response body that could not be decoded.
var ErrDecode = errors.New("decode response")

// callerCanceled wraps a failure that happened because the caller's context
// ended. The breaker counts it as a success since the provider was never at fault.
type callerCanceled struct{ err error }

func (e *callerCanceled) Error() string { return e.err.Error() }
func (e *callerCanceled) Unwrap() error { return e.err }

func providerHealthy(err error) bool {
	var cc *callerCanceled
	return err == nil || errors.As(err, &cc)
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
}

// BreakerConfig tunes the per-provider circuit breaker. Zero values fall back to defaults.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker open.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open before allowing a probe.
	Timeout time.Duration
	// Interval clears closed-state counts; 0 never clears.
	Interval time.Duration
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
}

func (b BreakerConfig) withDefaults() BreakerConfig {
	if b.ConsecutiveFailures == 0 {
		b.ConsecutiveFailures = 5
	}
	if b.Timeout <= 0 {
		b.Timeout = 30 * time.Second
	}
	if b.MaxRequests == 0 {
		b.MaxRequests = 1
	}
	return b
}

// transport issues GET requests for one provider. Every call goes through the
// provider's circuit breaker and is attempted exactly once.
type transport struct {
	provider  string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
	userAgent string
}

func newTransport(provider string, timeout time.Duration, bc BreakerConfig, userAgent string) *transport {
	bc = bc.withDefaults()
	t := &transport{
		provider:  provider,
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.SetCircuitBreakerState(name, int(to))
		},
		IsSuccessful: providerHealthy,
	})
	observability.SetCircuitBreakerState(provider, int(gobreaker.StateClosed))
	return t
}

// State returns the breaker state: "closed", "half-open" or "open".
func (t *transport) State() string {
	return t.breaker.State().String()
}

// getJSON fetches endpoint?params and decodes the body into out. Any failure,
// including an open breaker, is returned as an apperror UpstreamFailure.
// Failures caused by the caller's own context ending do not count against the breaker.
func (t *transport) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	_, err := t.breaker.Execute(func() (interface{}, error) {
		err := t.do(ctx, endpoint, params, out)
		if err != nil && ctx.Err() != nil {
			return nil, &callerCanceled{err: err}
		}
		return nil, err
	})
	if err == nil {
		return nil
	}
	var cc *callerCanceled
	if errors.As(err, &cc) {
		return apperror.Upstream(cc.err, "%s request canceled", t.provider)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.UpstreamCallsTotal.WithLabelValues(t.provider, "circuit_open").Inc()
	}
	observability.UpstreamErrorsTotal.WithLabelValues(t.provider, string(CategorizeError(err))).Inc()
	return apperror.Upstream(err, "%s request failed", t.provider)
}

func (t *transport) do(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid %s URL: %w", t.provider, err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(t.provider, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(t.provider, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(t.provider, status).Inc()
	observability.UpstreamDuration.WithLabelValues(t.provider, status).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Provider: t.provider, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// formatCoordinate renders a coordinate with the precision used for cache keys.
func formatCoordinate(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
