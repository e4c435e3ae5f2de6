package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/afternoon-temperature-service/internal/apperror"
	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
)

// Length bounds for free-text location input, in runes.
const (
	MaxLocationLength = 100
	MinSearchLength   = 2
)

// ErrLocationEmpty is returned when location is empty or whitespace-only after trim.
var ErrLocationEmpty = errors.New("location is required")

// ErrLocationTooShort is returned when location length is below the minimum.
var ErrLocationTooShort = errors.New("location too short")

// ErrLocationTooLong is returned when location length exceeds the maximum.
var ErrLocationTooLong = errors.New("location too long")

// ErrLocationInvalidChars is returned when location contains disallowed characters.
var ErrLocationInvalidChars = errors.New("location contains invalid characters")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("placename", func(fl validator.FieldLevel) bool {
		for _, c := range fl.Field().String() {
			if !isAllowedLocationRune(c) {
				return false
			}
		}
		return true
	})
	return v
}

// TemperatureQuery is the raw query of a temperature request.
type TemperatureQuery struct {
	Location string `validate:"omitempty,max=100,placename"`
	Lat      string `validate:"required_with=Lon,omitempty,latitude"`
	Lon      string `validate:"required_with=Lat,omitempty,longitude"`
	Refresh  string `validate:"omitempty,boolean"`
}

// TemperatureParams is a validated temperature request. Coordinates is nil unless
// both lat and lon were supplied.
type TemperatureParams struct {
	Location    string
	Coordinates *models.Coordinates
	Refresh     bool
}

type searchQuery struct {
	Q string `validate:"required,min=2,max=100,placename"`
}

// ParseTemperatureQuery validates location, lat, lon and refresh. Failures are
// apperror InvalidInput.
func ParseTemperatureQuery(values url.Values) (TemperatureParams, error) {
	q := TemperatureQuery{
		Location: strings.TrimSpace(values.Get("location")),
		Lat:      strings.TrimSpace(values.Get("lat")),
		Lon:      strings.TrimSpace(values.Get("lon")),
		Refresh:  strings.TrimSpace(values.Get("refresh")),
	}
	if err := validate.Struct(q); err != nil {
		return TemperatureParams{}, invalid(err)
	}

	p := TemperatureParams{Location: q.Location}
	if q.Refresh != "" {
		p.Refresh, _ = strconv.ParseBool(q.Refresh)
	}
	if q.Lat != "" && q.Lon != "" {
		lat, err := strconv.ParseFloat(q.Lat, 64)
		if err != nil {
			return TemperatureParams{}, apperror.Wrap(apperror.InvalidInput, "lat must be a valid latitude", err)
		}
		lon, err := strconv.ParseFloat(q.Lon, 64)
		if err != nil {
			return TemperatureParams{}, apperror.Wrap(apperror.InvalidInput, "lon must be a valid longitude", err)
		}
		p.Coordinates = &models.Coordinates{Latitude: lat, Longitude: lon}
	}
	return p, nil
}

// ValidateSearchQuery trims q and requires 2 to 100 allowed characters.
func ValidateSearchQuery(q string) (string, error) {
	sq := searchQuery{Q: strings.TrimSpace(q)}
	if err := validate.Struct(sq); err != nil {
		return "", invalid(err)
	}
	return sq.Q, nil
}

// invalid turns validator errors into an InvalidInput error with a readable message.
func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.Wrap(apperror.InvalidInput, "invalid request", err)
	}
	return apperror.Wrap(apperror.InvalidInput, fieldMessage(verrs[0]), err)
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field())
	if name == "q" {
		name = "search query"
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "required_with":
		return "lat and lon must be provided together"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "latitude":
		return "lat must be a number between -90 and 90"
	case "longitude":
		return "lon must be a number between -180 and 180"
	case "boolean":
		return "refresh must be true or false"
	case "placename":
		return fmt.Sprintf("%s contains invalid characters", name)
	}
	return fmt.Sprintf("%s is invalid", name)
}

// ValidateLocation trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to allowed characters.
// Returns the trimmed string or one of the ErrLocation* errors.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

// isAllowedLocationRune allows letters (Unicode), digits, space, comma, hyphen, period and apostrophe.
func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
