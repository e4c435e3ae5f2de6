package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), ""},
		{"not found", New(NotFound, "no such place"), NotFound},
		{"wrapped upstream", fmt.Errorf("resolve: %w", Upstream(errors.New("dial"), "forecast HTTP %d", 502)), UpstreamFailure},
		{"invalid input", New(InvalidInput, "query too short"), InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("geocode: %w", Wrap(UpstreamFailure, "geocoding request failed", cause))

	if !errors.Is(err, ErrUpstreamFailure) {
		t.Error("errors.Is(err, ErrUpstreamFailure) = false, want true")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = true, want false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if got := MessageOf(err); got != "geocoding request failed" {
		t.Errorf("MessageOf() = %q", got)
	}
	if got := MessageOf(errors.New("raw")); got != "raw" {
		t.Errorf("MessageOf(raw) = %q", got)
	}
}
