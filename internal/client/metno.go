package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/afternoon-temperature-service/internal/apperror"
	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
)

// symbolCodes maps MET Norway symbol codes (variant suffix stripped) to WMO codes.
var symbolCodes = map[string]int{
	"clearsky":                   0,
	"fair":                       1,
	"partlycloudy":               2,
	"cloudy":                     3,
	"fog":                        45,
	"lightrain":                  61,
	"rain":                       63,
	"heavyrain":                  65,
	"lightsleet":                 66,
	"sleet":                      67,
	"heavysleet":                 67,
	"lightsnow":                  71,
	"snow":                       73,
	"heavysnow":                  75,
	"lightrainshowers":           80,
	"rainshowers":                80,
	"heavyrainshowers":           82,
	"lightsnowshowers":           85,
	"snowshowers":                85,
	"heavysnowshowers":           86,
	"rainandthunder":             95,
	"lightrainandthunder":        95,
	"heavyrainandthunder":        95,
	"rainshowersandthunder":      95,
	"lightrainshowersandthunder": 95,
	"heavyrainshowersandthunder": 99,
	"thunder":                    95,
}

// MetNoForecast queries the MET Norway locationforecast API.
type MetNoForecast struct {
	apiURL    string
	transport *transport
}

// NewMetNoForecast returns a forecast client for apiURL
// (e.g. https://api.met.no/weatherapi/locationforecast/2.0/compact).
func NewMetNoForecast(apiURL string, timeout time.Duration, userAgent string, bc BreakerConfig) *MetNoForecast {
	return &MetNoForecast{
		apiURL:    apiURL,
		transport: newTransport(ProviderMetNo, timeout, bc, userAgent),
	}
}

type metNoResponse struct {
	Properties struct {
		Timeseries []struct {
			Time string `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature *float64 `json:"air_temperature"`
					} `json:"details"`
				} `json:"instant"`
				Next1Hours *struct {
					Summary struct {
						SymbolCode string `json:"symbol_code"`
					} `json:"summary"`
				} `json:"next_1_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

// FetchHourly returns the series in UTC. Steps without an air temperature are dropped.
func (c *MetNoForecast) FetchHourly(ctx context.Context, coords models.Coordinates) ([]models.Sample, error) {
	params := url.Values{}
	params.Set("lat", formatCoordinate(coords.Latitude))
	params.Set("lon", formatCoordinate(coords.Longitude))

	var resp metNoResponse
	if err := c.transport.getJSON(ctx, c.apiURL, params, &resp); err != nil {
		return nil, err
	}
	return mapMetNoTimeseries(resp)
}

func mapMetNoTimeseries(resp metNoResponse) ([]models.Sample, error) {
	series := resp.Properties.Timeseries
	out := make([]models.Sample, 0, len(series))
	for _, step := range series {
		temp := step.Data.Instant.Details.AirTemperature
		if temp == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, step.Time)
		if err != nil {
			return nil, upstreamDecode(ProviderMetNo, fmt.Errorf("timeseries time %q: %w", step.Time, err))
		}
		code := -1
		if step.Data.Next1Hours != nil {
			code = symbolToWMO(step.Data.Next1Hours.Summary.SymbolCode)
		}
		out = append(out, models.Sample{Time: ts.UTC(), Temperature: *temp, Code: code})
	}
	return out, nil
}

// symbolToWMO strips the _day/_night/_polartwilight variant and looks up the WMO code, or -1.
func symbolToWMO(symbol string) int {
	if i := strings.IndexByte(symbol, '_'); i >= 0 {
		symbol = symbol[:i]
	}
	if code, ok := symbolCodes[symbol]; ok {
		return code
	}
	return -1
}

// BreakerState reports the forecast circuit breaker state.
func (c *MetNoForecast) BreakerState() string {
	return c.transport.State()
}

// Provider returns the metrics label for this client.
func (c *MetNoForecast) Provider() string {
	return ProviderMetNo
}

func upstreamDecode(provider string, err error) error {
	return apperror.Upstream(fmt.Errorf("%w: %v", ErrDecode, err), "%s returned an unreadable forecast", provider)
}
