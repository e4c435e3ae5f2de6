package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/afternoon-temperature-service/internal/apperror"
	"github.com/kjstillabower/afternoon-temperature-service/internal/cache"
	"github.com/kjstillabower/afternoon-temperature-service/internal/client"
	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
	"github.com/kjstillabower/afternoon-temperature-service/internal/extract"
	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
	"github.com/kjstillabower/afternoon-temperature-service/internal/observability"
)

// MaxSearchResults caps location search regardless of configuration.
const MaxSearchResults = 5

// DefaultLocation is used when a request names no location.
var DefaultLocation = models.Coordinates{Latitude: 44.8176, Longitude: 20.4599, Name: "Belgrade, Serbia"}

// LocationInput selects what to resolve. Name wins over Coordinates; the zero value means
// the default location.
type LocationInput struct {
	Name        string
	Coordinates *models.Coordinates
}

// Options configures a TemperatureService. Zero values fall back to defaults.
type Options struct {
	DefaultLocation models.Coordinates
	TTL             time.Duration
	SearchLimit     int
	TargetHour      int
	// Coalesce collapses concurrent misses for the same key into one upstream fetch.
	Coalesce bool
	// FetchTimeout bounds a coalesced fetch, which outlives any single caller.
	FetchTimeout time.Duration
}

// TemperatureService resolves a location to daily afternoon readings using the
// cache-aside pattern over the geocoding and forecast providers.
type TemperatureService struct {
	geocoder  client.Geocoder
	forecast  client.ForecastClient
	cache     cache.Cache
	extractor *extract.Extractor
	clock     clock.Clock
	logger    *zap.Logger
	opts      Options
	stampede  *stampedeTracker
	group     *singleflight.Group // nil unless coalescing is enabled
}

// NewTemperatureService wires the service. A nil clock uses wall time; a nil logger discards.
func NewTemperatureService(geocoder client.Geocoder, forecast client.ForecastClient, c cache.Cache, clk clock.Clock, logger *zap.Logger, opts Options) *TemperatureService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultLocation == (models.Coordinates{}) {
		opts.DefaultLocation = DefaultLocation
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.SearchLimit <= 0 || opts.SearchLimit > MaxSearchResults {
		opts.SearchLimit = MaxSearchResults
	}
	if opts.TargetHour == 0 {
		opts.TargetHour = extract.DefaultTargetHour
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	s := &TemperatureService{
		geocoder:  geocoder,
		forecast:  forecast,
		cache:     c,
		extractor: extract.New(opts.TargetHour),
		clock:     clk,
		logger:    logger,
		opts:      opts,
		stampede:  newStampedeTracker(),
	}
	if opts.Coalesce {
		s.group = &singleflight.Group{}
	}
	return s
}

// DefaultLocation returns the configured default location.
func (s *TemperatureService) DefaultLocation() models.Coordinates {
	return s.opts.DefaultLocation
}

// Resolve returns the daily readings for in. forceRefresh skips the cache lookup but
// still stores the fresh result.
func (s *TemperatureService) Resolve(ctx context.Context, in LocationInput, forceRefresh bool) (models.Result, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, s.logger)

	coords, err := s.locate(ctx, in)
	if err != nil {
		return models.Result{}, err
	}
	key := cache.Key(coords)
	observability.RecordTemperatureQuery(coords.Name)

	if forceRefresh {
		observability.CacheBypassTotal.Inc()
	} else if hit, ok := s.lookup(ctx, key, logger); ok {
		hit.FromCache = true
		hit.Location = coords
		logger.Debug("temperature served",
			zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return hit, nil
	}

	concurrent := s.stampede.RecordMiss(key)
	defer s.stampede.RecordHit(key)
	if concurrent > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(observability.MetricLocationLabel(coords.Name)).Inc()
	}

	logger.Debug("cache miss, fetching forecast", zap.String("key", key), zap.Bool("force_refresh", forceRefresh))
	res, err := s.fetch(ctx, key, coords)
	if err != nil {
		return models.Result{}, err
	}
	logger.Debug("temperature served",
		zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return res, nil
}

// Refresh recomputes and stores the result for a named location. Used by cache warming.
func (s *TemperatureService) Refresh(ctx context.Context, location string) error {
	_, err := s.Resolve(ctx, LocationInput{Name: location}, true)
	return err
}

// Search returns up to the configured limit of geocoding candidates for query.
// No matches is an empty slice, not an error.
func (s *TemperatureService) Search(ctx context.Context, query string) ([]models.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.New(apperror.InvalidInput, "search query is required")
	}
	observability.SearchQueriesTotal.Inc()
	locations, err := s.geocoder.Search(ctx, query, s.opts.SearchLimit)
	if err != nil {
		return nil, upstream(err, "search locations for %q", query)
	}
	if locations == nil {
		locations = []models.Location{}
	}
	if len(locations) > s.opts.SearchLimit {
		locations = locations[:s.opts.SearchLimit]
	}
	return locations, nil
}

// locate turns the input into coordinates, geocoding a name when one is given.
func (s *TemperatureService) locate(ctx context.Context, in LocationInput) (models.Coordinates, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name != "":
		matches, err := s.geocoder.Search(ctx, name, 1)
		if err != nil {
			return models.Coordinates{}, upstream(err, "geocode %q", name)
		}
		if len(matches) == 0 {
			return models.Coordinates{}, apperror.New(apperror.NotFound, fmt.Sprintf("location %q not found", name))
		}
		m := matches[0]
		return models.Coordinates{Latitude: m.Latitude, Longitude: m.Longitude, Name: m.DisplayName()}, nil
	case in.Coordinates != nil:
		return *in.Coordinates, nil
	default:
		return s.opts.DefaultLocation, nil
	}
}

// lookup reads the cache. Backend errors are logged and treated as a miss.
func (s *TemperatureService) lookup(ctx context.Context, key string, logger *zap.Logger) (models.Result, bool) {
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", string(client.CategorizeError(err))).Inc()
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return models.Result{}, false
	}
	if !ok {
		observability.CacheMissesTotal.Inc()
		return models.Result{}, false
	}
	observability.CacheHitsTotal.Inc()
	return cached, true
}

// fetch computes a fresh result. A coalesced fetch runs detached from the caller that
// started it, so one caller leaving does not fail the others sharing the flight.
func (s *TemperatureService) fetch(ctx context.Context, key string, coords models.Coordinates) (models.Result, error) {
	if s.group == nil {
		return s.compute(ctx, key, coords)
	}
	ch := s.group.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FetchTimeout)
		defer cancel()
		return s.compute(shared, key, coords)
	})
	select {
	case <-ctx.Done():
		return models.Result{}, apperror.Upstream(ctx.Err(), "fetch forecast for %s", key)
	case r := <-ch:
		if r.Err != nil {
			return models.Result{}, r.Err
		}
		res := r.Val.(models.Result)
		if r.Shared {
			res = res.Clone()
			res.Location = coords
		}
		return res, nil
	}
}

// compute fetches the forecast, extracts readings and stores the result.
func (s *TemperatureService) compute(ctx context.Context, key string, coords models.Coordinates) (models.Result, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)

	samples, err := s.forecast.FetchHourly(ctx, coords)
	if err != nil {
		return models.Result{}, upstream(err, "fetch forecast for %s", key)
	}
	readings := s.extractor.Extract(samples)
	observability.ReadingsPerResult.Observe(float64(len(readings)))

	res := models.Result{
		Location:   coords,
		Readings:   readings,
		ProducedAt: s.clock.Now(),
	}
	if err := s.cache.Set(ctx, key, res, s.opts.TTL); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", string(client.CategorizeError(err))).Inc()
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return res, nil
}

// upstream keeps a tagged error's kind and tags anything else as UpstreamFailure.
func upstream(err error, format string, args ...interface{}) error {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
	return apperror.Upstream(err, format, args...)
}
