package client

import (
	"context"
	"fmt"
	"time"

	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
)

// ForecastClient fetches an hourly forecast series for a point.
type ForecastClient interface {
	FetchHourly(ctx context.Context, coords models.Coordinates) ([]models.Sample, error)
}

// ForecastOptions selects and configures a forecast provider.
type ForecastOptions struct {
	Provider     string // "open_meteo" (default) or "met_no"
	URL          string
	Timeout      time.Duration
	ForecastDays int    // Open-Meteo only
	UserAgent    string // MET Norway requires an identifying User-Agent
	Breaker      BreakerConfig
}

// NewForecastClient builds the client for opts.Provider.
func NewForecastClient(opts ForecastOptions) (ForecastClient, error) {
	switch opts.Provider {
	case "", ProviderOpenMeteo:
		return NewOpenMeteoForecast(opts.URL, opts.Timeout, opts.ForecastDays, opts.Breaker), nil
	case ProviderMetNo:
		if opts.UserAgent == "" {
			return nil, fmt.Errorf("%s forecast provider requires a user agent", ProviderMetNo)
		}
		return NewMetNoForecast(opts.URL, opts.Timeout, opts.UserAgent, opts.Breaker), nil
	default:
		return nil, fmt.Errorf("unknown forecast provider %q", opts.Provider)
	}
}
