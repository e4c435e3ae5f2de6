package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
)

// openMeteoTimeLayout is the local wall-clock format returned with timezone=auto.
const openMeteoTimeLayout = "2006-01-02T15:04"

const defaultForecastDays = 16

// OpenMeteoForecast queries the Open-Meteo forecast API.
type OpenMeteoForecast struct {
	apiURL       string
	forecastDays int
	transport    *transport
}

// NewOpenMeteoForecast returns a forecast client for apiURL (e.g. https://api.open-meteo.com/v1/forecast).
// forecastDays outside 1..16 falls back to 16.
func NewOpenMeteoForecast(apiURL string, timeout time.Duration, forecastDays int, bc BreakerConfig) *OpenMeteoForecast {
	if forecastDays < 1 || forecastDays > defaultForecastDays {
		forecastDays = defaultForecastDays
	}
	return &OpenMeteoForecast{
		apiURL:       apiURL,
		forecastDays: forecastDays,
		transport:    newTransport(ProviderOpenMeteo, timeout, bc, ""),
	}
}

type openMeteoResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		Temperature2m []*float64 `json:"temperature_2m"`
		WeatherCode   []*int     `json:"weather_code"`
	} `json:"hourly"`
}

// FetchHourly returns the hourly series in provider order. Hours with no
// temperature are dropped; a missing weather code becomes -1.
func (c *OpenMeteoForecast) FetchHourly(ctx context.Context, coords models.Coordinates) ([]models.Sample, error) {
	params := url.Values{}
	params.Set("latitude", formatCoordinate(coords.Latitude))
	params.Set("longitude", formatCoordinate(coords.Longitude))
	params.Set("hourly", "temperature_2m,weather_code")
	params.Set("timezone", "auto")
	params.Set("forecast_days", strconv.Itoa(c.forecastDays))

	var resp openMeteoResponse
	if err := c.transport.getJSON(ctx, c.apiURL, params, &resp); err != nil {
		return nil, err
	}
	return mapOpenMeteoHourly(resp)
}

func mapOpenMeteoHourly(resp openMeteoResponse) ([]models.Sample, error) {
	h := resp.Hourly
	out := make([]models.Sample, 0, len(h.Time))
	for i, raw := range h.Time {
		if i >= len(h.Temperature2m) || h.Temperature2m[i] == nil {
			continue
		}
		ts, err := time.Parse(openMeteoTimeLayout, raw)
		if err != nil {
			return nil, upstreamDecode(ProviderOpenMeteo, fmt.Errorf("hourly time %q: %w", raw, err))
		}
		code := -1
		if i < len(h.WeatherCode) && h.WeatherCode[i] != nil {
			code = *h.WeatherCode[i]
		}
		out = append(out, models.Sample{Time: ts, Temperature: *h.Temperature2m[i], Code: code})
	}
	return out, nil
}

// BreakerState reports the forecast circuit breaker state.
func (c *OpenMeteoForecast) BreakerState() string {
	return c.transport.State()
}

// Provider returns the metrics label for this client.
func (c *OpenMeteoForecast) Provider() string {
	return ProviderOpenMeteo
}
