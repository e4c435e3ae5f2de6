// Package extract reduces an hourly forecast series to one reading per calendar day,
// picking the sample closest to a target time of day.
package extract

import (
	"math"
	"sort"

	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
)

// DefaultTargetHour is the local hour the service reports (14:00).
const DefaultTargetHour = 14

const dateLayout = "2006-01-02"

// Extractor selects one sample per day nearest TargetHour:00.
type Extractor struct {
	targetMinute int
}

// New returns an Extractor for the given hour (0-23). Out-of-range hours fall back to DefaultTargetHour.
func New(targetHour int) *Extractor {
	if targetHour < 0 || targetHour > 23 {
		targetHour = DefaultTargetHour
	}
	return &Extractor{targetMinute: targetHour * 60}
}

type pick struct {
	sample   models.Sample
	distance int
}

// Extract groups samples by their own date component and returns one reading per day,
// ordered by date. An exact target-time sample always wins; otherwise the smallest distance
// wins and ties go to the earliest timestamp. For duplicate timestamps the first one seen is kept.
// Days without samples produce no reading.
func (e *Extractor) Extract(samples []models.Sample) []models.Reading {
	best := make(map[string]pick)
	for _, s := range samples {
		day := s.Time.Format(dateLayout)
		d := e.distance(s)
		cur, ok := best[day]
		if !ok || d < cur.distance || (d == cur.distance && s.Time.Before(cur.sample.Time)) {
			best[day] = pick{sample: s, distance: d}
		}
	}

	days := make([]string, 0, len(best))
	for day := range best {
		days = append(days, day)
	}
	sort.Strings(days)

	readings := make([]models.Reading, 0, len(days))
	for _, day := range days {
		s := best[day].sample
		readings = append(readings, models.Reading{
			Date:        day,
			Time:        s.Time.Format("15:04"),
			Temperature: Round1(s.Temperature),
			Unit:        models.Unit,
			Description: Describe(s.Code),
		})
	}
	return readings
}

// distance is the absolute number of minutes between the sample's time of day and the target.
func (e *Extractor) distance(s models.Sample) int {
	m := s.Time.Hour()*60 + s.Time.Minute()
	d := m - e.targetMinute
	if d < 0 {
		d = -d
	}
	return d
}

// Round1 rounds to one decimal place, halves away from zero (5.25 -> 5.3, -5.25 -> -5.3).
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
