package models

import "time"

// Unit is the only temperature unit the service reports.
const Unit = "Celsius"

// Coordinates identifies a point on the map. Name is set for geocoded and default locations.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
}

// Reading is the extracted observation for one calendar day.
type Reading struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	Time        string  `json:"time"` // HH:MM
	Temperature float64 `json:"temperature"`
	Unit        string  `json:"unit"`
	Description string  `json:"description,omitempty"`
}

// Result is what the service returns for a resolved location.
type Result struct {
	Location   Coordinates `json:"location"`
	Readings   []Reading   `json:"readings"`
	ProducedAt time.Time   `json:"producedAt"`
	FromCache  bool        `json:"fromCache"`
}

// Clone returns a deep copy so callers can modify the copy without touching cached state.
func (r Result) Clone() Result {
	out := r
	if r.Readings != nil {
		out.Readings = make([]Reading, len(r.Readings))
		copy(out.Readings, r.Readings)
	}
	return out
}

// Sample is one provider-agnostic hourly forecast point. Code is a WMO weather
// interpretation code; -1 when the provider's condition has no WMO equivalent.
type Sample struct {
	Time        time.Time
	Temperature float64
	Code        int
}

// Location is a geocoding candidate.
type Location struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Admin1    string  `json:"admin1,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
}

// DisplayName composes "City, Country", or just the city when the country is unknown.
func (l Location) DisplayName() string {
	if l.Country == "" {
		return l.Name
	}
	return l.Name + ", " + l.Country
}
