//go:build integration
// +build integration

package client

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestOpenMeteoGeocoder_Integration(t *testing.T) {
	g := NewOpenMeteoGeocoder(envOr("GEOCODING_API_URL", "https://geocoding-api.open-meteo.com/v1/search"), 5*time.Second, BreakerConfig{})
	got, err := g.Search(context.Background(), "Belgrade", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].Country != "Serbia" {
		t.Errorf("Search(Belgrade) = %+v, want a Serbian match", got)
	}
}

func TestOpenMeteoForecast_Integration(t *testing.T) {
	c := NewOpenMeteoForecast(envOr("FORECAST_API_URL", "https://api.open-meteo.com/v1/forecast"), 5*time.Second, 3, BreakerConfig{})
	got, err := c.FetchHourly(context.Background(), models.Coordinates{Latitude: 44.8176, Longitude: 20.4599})
	if err != nil {
		t.Fatalf("FetchHourly() error = %v", err)
	}
	if len(got) < 48 {
		t.Errorf("FetchHourly() returned %d samples, want at least 48 for 3 days", len(got))
	}
}

func TestMetNoForecast_Integration(t *testing.T) {
	ua := os.Getenv("METNO_USER_AGENT")
	if ua == "" {
		t.Skip("METNO_USER_AGENT not set, skipping integration test")
	}
	c := NewMetNoForecast("https://api.met.no/weatherapi/locationforecast/2.0/compact", 5*time.Second, ua, BreakerConfig{})
	got, err := c.FetchHourly(context.Background(), models.Coordinates{Latitude: 59.9139, Longitude: 10.7522})
	if err != nil {
		t.Fatalf("FetchHourly() error = %v", err)
	}
	if len(got) == 0 {
		t.Error("FetchHourly() returned no samples")
	}
}
