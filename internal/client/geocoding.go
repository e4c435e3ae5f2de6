package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
)

// Geocoder turns a place name into candidate locations, best match first.
type Geocoder interface {
	Search(ctx context.Context, name string, count int) ([]models.Location, error)
}

// OpenMeteoGeocoder queries the Open-Meteo geocoding API.
type OpenMeteoGeocoder struct {
	apiURL    string
	transport *transport
}

// NewOpenMeteoGeocoder returns a geocoder for apiURL (e.g. https://geocoding-api.open-meteo.com/v1/search).
func NewOpenMeteoGeocoder(apiURL string, timeout time.Duration, bc BreakerConfig) *OpenMeteoGeocoder {
	return &OpenMeteoGeocoder{
		apiURL:    apiURL,
		transport: newTransport(ProviderGeocoding, timeout, bc, ""),
	}
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
		Admin1    string  `json:"admin1"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

// Search returns up to count matches. No matches is an empty, non-nil slice.
func (g *OpenMeteoGeocoder) Search(ctx context.Context, name string, count int) ([]models.Location, error) {
	if count < 1 {
		count = 1
	}
	params := url.Values{}
	params.Set("name", name)
	params.Set("count", strconv.Itoa(count))
	params.Set("language", "en")
	params.Set("format", "json")

	var resp geocodingResponse
	if err := g.transport.getJSON(ctx, g.apiURL, params, &resp); err != nil {
		return nil, err
	}

	out := make([]models.Location, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(out) == count {
			break
		}
		out = append(out, models.Location{
			Name:      r.Name,
			Country:   r.Country,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Admin1:    r.Admin1,
			Timezone:  r.Timezone,
		})
	}
	return out, nil
}

// BreakerState reports the geocoding circuit breaker state.
func (g *OpenMeteoGeocoder) BreakerState() string {
	return g.transport.State()
}

// Provider returns the metrics label for this client.
func (g *OpenMeteoGeocoder) Provider() string {
	return ProviderGeocoding
}
