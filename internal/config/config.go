package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/afternoon-temperature-service/internal/validation"
)

const (
	defaultGeocodingURL   = "https://geocoding-api.open-meteo.com/v1/search"
	defaultOpenMeteoURL   = "https://api.open-meteo.com/v1/forecast"
	defaultMetNoURL       = "https://api.met.no/weatherapi/locationforecast/2.0/compact"
	defaultMetNoUserAgent = "afternoon-temperature-service/1.0 github.com/kjstillabower/afternoon-temperature-service"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string
	LogLevel   string
	Version    string

	DefaultLocationName string
	DefaultLatitude     float64
	DefaultLongitude    float64
	TargetHour          int
	SearchLimit         int

	GeocodingAPIURL  string
	GeocodingTimeout time.Duration

	ForecastProvider string // "open_meteo" or "met_no"
	ForecastAPIURL   string
	ForecastTimeout  time.Duration
	ForecastDays     int
	MetNoUserAgent   string

	BreakerFailures    int
	BreakerTimeout     time.Duration
	BreakerInterval    time.Duration
	BreakerMaxRequests int

	RequestTimeout time.Duration

	CacheTTL              time.Duration
	CacheBackend          string // "in_memory" or "memcached"
	CacheSweepInterval    time.Duration
	CoalesceRequests      bool
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitMax          int
	RateLimitWindow       time.Duration
	SearchRateLimitMax    int
	SearchRateLimitWindow time.Duration
	TrustForwardedFor     bool
	LimiterEvictInterval  time.Duration

	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	DegradedMinRequests  int

	TrackedLocations []string
	WarmOnStartup    bool
	WarmInterval     time.Duration
}

type fileConfig struct {
	Server struct {
		Port    string `yaml:"port"`
		Version string `yaml:"version"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Location struct {
		DefaultName      string   `yaml:"default_name"`
		DefaultLatitude  *float64 `yaml:"default_latitude"`
		DefaultLongitude *float64 `yaml:"default_longitude"`
		TargetHour       *int     `yaml:"target_hour"`
		SearchLimit      int      `yaml:"search_limit"`
	} `yaml:"location"`

	Geocoding struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"geocoding"`

	Forecast struct {
		Provider  string `yaml:"provider"`
		URL       string `yaml:"url"`
		Timeout   string `yaml:"timeout"`
		Days      int    `yaml:"days"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"forecast"`

	CircuitBreaker struct {
		ConsecutiveFailures int    `yaml:"consecutive_failures"`
		OpenTimeout         string `yaml:"open_timeout"`
		Interval            string `yaml:"interval"`
		HalfOpenMaxRequests int    `yaml:"half_open_max_requests"`
	} `yaml:"circuit_breaker"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend       string `yaml:"backend"`
		TTL           string `yaml:"ttl"`
		SweepInterval string `yaml:"sweep_interval"`
		Coalesce      bool   `yaml:"coalesce"`
		Memcached     struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	RateLimit struct {
		Max               int    `yaml:"max"`
		Window            string `yaml:"window"`
		SearchMax         int    `yaml:"search_max"`
		SearchWindow      string `yaml:"search_window"`
		TrustForwardedFor bool   `yaml:"trust_forwarded_for"`
		EvictInterval     string `yaml:"evict_interval"`
	} `yaml:"rate_limit"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		DegradedMinRequests  int    `yaml:"degraded_min_requests"`
	} `yaml:"health"`

	Warming struct {
		TrackedLocations []string `yaml:"tracked_locations"`
		OnStartup        bool     `yaml:"on_startup"`
		Interval         string   `yaml:"interval"`
	} `yaml:"warming"`
}

// envOverrides are applied after the YAML file. Unset variables leave the file value alone.
type envOverrides struct {
	Port             string        `envconfig:"PORT"`
	LogLevel         string        `envconfig:"LOG_LEVEL"`
	CacheBackend     string        `envconfig:"CACHE_BACKEND"`
	CacheTTL         time.Duration `envconfig:"CACHE_TTL"`
	MemcachedAddrs   string        `envconfig:"MEMCACHED_ADDRS"`
	ForecastProvider string        `envconfig:"FORECAST_PROVIDER"`
	ForecastAPIURL   string        `envconfig:"FORECAST_API_URL"`
	GeocodingAPIURL  string        `envconfig:"GEOCODING_API_URL"`
	MetNoUserAgent   string        `envconfig:"MET_NO_USER_AGENT"`
}

// Load reads an optional .env, then config/{ENV_NAME}.yaml (default dev), then environment
// overrides. Call from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg := fromFile(fc)

	var eo envOverrides
	if err := envconfig.Process("", &eo); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	applyEnv(cfg, eo)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fromFile fills a Config from the YAML values, substituting defaults for anything unset.
func fromFile(fc fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = orDefault(fc.Server.Port, "8080")
	cfg.Version = orDefault(fc.Server.Version, "1.0.0")
	cfg.LogLevel = orDefault(fc.Log.Level, "info")

	cfg.DefaultLocationName = orDefault(fc.Location.DefaultName, "Belgrade, Serbia")
	cfg.DefaultLatitude = 44.8176
	if fc.Location.DefaultLatitude != nil {
		cfg.DefaultLatitude = *fc.Location.DefaultLatitude
	}
	cfg.DefaultLongitude = 20.4599
	if fc.Location.DefaultLongitude != nil {
		cfg.DefaultLongitude = *fc.Location.DefaultLongitude
	}
	cfg.TargetHour = 14
	if fc.Location.TargetHour != nil {
		cfg.TargetHour = *fc.Location.TargetHour
	}
	cfg.SearchLimit = orDefaultInt(fc.Location.SearchLimit, 5)

	cfg.GeocodingAPIURL = orDefault(fc.Geocoding.URL, defaultGeocodingURL)
	cfg.GeocodingTimeout = parseDurationOrZero(fc.Geocoding.Timeout, 5*time.Second)

	cfg.ForecastProvider = strings.ToLower(orDefault(fc.Forecast.Provider, "open_meteo"))
	cfg.ForecastAPIURL = strings.TrimSpace(fc.Forecast.URL)
	cfg.ForecastTimeout = parseDurationOrZero(fc.Forecast.Timeout, 5*time.Second)
	cfg.ForecastDays = orDefaultInt(fc.Forecast.Days, 16)
	cfg.MetNoUserAgent = orDefault(fc.Forecast.UserAgent, defaultMetNoUserAgent)

	cfg.BreakerFailures = orDefaultInt(fc.CircuitBreaker.ConsecutiveFailures, 5)
	cfg.BreakerTimeout = parseDuration(fc.CircuitBreaker.OpenTimeout, 30*time.Second)
	cfg.BreakerInterval = parseDurationOrZero(fc.CircuitBreaker.Interval, 0)
	cfg.BreakerMaxRequests = orDefaultInt(fc.CircuitBreaker.HalfOpenMaxRequests, 1)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, time.Hour)
	cfg.CacheBackend = strings.ToLower(orDefault(fc.Cache.Backend, "in_memory"))
	cfg.CacheSweepInterval = parseDuration(fc.Cache.SweepInterval, 10*time.Minute)
	cfg.CoalesceRequests = fc.Cache.Coalesce
	cfg.MemcachedAddrs = orDefault(fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = orDefaultInt(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.RateLimitMax = orDefaultInt(fc.RateLimit.Max, 100)
	cfg.RateLimitWindow = parseDuration(fc.RateLimit.Window, 15*time.Minute)
	cfg.SearchRateLimitMax = orDefaultInt(fc.RateLimit.SearchMax, 30)
	cfg.SearchRateLimitWindow = parseDuration(fc.RateLimit.SearchWindow, 15*time.Minute)
	cfg.TrustForwardedFor = fc.RateLimit.TrustForwardedFor
	cfg.LimiterEvictInterval = parseDuration(fc.RateLimit.EvictInterval, 5*time.Minute)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Health.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = orDefaultInt(fc.Health.OverloadThresholdPct, 80)
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = orDefaultInt(fc.Health.DegradedErrorPct, 20)
	cfg.DegradedMinRequests = orDefaultInt(fc.Health.DegradedMinRequests, 10)

	cfg.TrackedLocations = fc.Warming.TrackedLocations
	cfg.WarmOnStartup = fc.Warming.OnStartup
	cfg.WarmInterval = parseDurationOrZero(fc.Warming.Interval, 0)
	return cfg
}

func applyEnv(cfg *Config, eo envOverrides) {
	if v := strings.TrimSpace(eo.Port); v != "" {
		cfg.ServerPort = v
	}
	if v := strings.TrimSpace(eo.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(eo.CacheBackend); v != "" {
		cfg.CacheBackend = strings.ToLower(v)
	}
	if eo.CacheTTL > 0 {
		cfg.CacheTTL = eo.CacheTTL
	}
	if v := strings.TrimSpace(eo.MemcachedAddrs); v != "" {
		cfg.MemcachedAddrs = v
	}
	if v := strings.TrimSpace(eo.ForecastProvider); v != "" {
		cfg.ForecastProvider = strings.ToLower(v)
	}
	if v := strings.TrimSpace(eo.ForecastAPIURL); v != "" {
		cfg.ForecastAPIURL = v
	}
	if v := strings.TrimSpace(eo.GeocodingAPIURL); v != "" {
		cfg.GeocodingAPIURL = v
	}
	if v := strings.TrimSpace(eo.MetNoUserAgent); v != "" {
		cfg.MetNoUserAgent = v
	}
}

func orDefault(s, defaultVal string) string {
	if s = strings.TrimSpace(s); s == "" {
		return defaultVal
	}
	return s
}

func orDefaultInt(n, defaultVal int) int {
	if n <= 0 {
		return defaultVal
	}
	return n
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. It fills the provider-specific forecast URL and
// raises RequestTimeout above the slowest upstream timeout.
func validate(cfg *Config) error {
	if cfg.GeocodingTimeout <= 0 {
		return fmt.Errorf("geocoding.timeout must be positive")
	}
	if cfg.ForecastTimeout <= 0 {
		return fmt.Errorf("forecast.timeout must be positive")
	}
	upstream := cfg.ForecastTimeout
	if cfg.GeocodingTimeout > upstream {
		upstream = cfg.GeocodingTimeout
	}
	if cfg.RequestTimeout <= upstream {
		cfg.RequestTimeout = upstream + time.Second
	}

	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}

	switch cfg.ForecastProvider {
	case "open_meteo":
		if cfg.ForecastAPIURL == "" {
			cfg.ForecastAPIURL = defaultOpenMeteoURL
		}
	case "met_no":
		if cfg.ForecastAPIURL == "" {
			cfg.ForecastAPIURL = defaultMetNoURL
		}
		if strings.TrimSpace(cfg.MetNoUserAgent) == "" {
			return fmt.Errorf("forecast.user_agent required for met_no")
		}
	default:
		return fmt.Errorf("forecast.provider must be open_meteo or met_no, got %q", cfg.ForecastProvider)
	}
	if cfg.ForecastDays < 1 || cfg.ForecastDays > 16 {
		return fmt.Errorf("forecast.days must be between 1 and 16, got %d", cfg.ForecastDays)
	}

	if cfg.DefaultLatitude < -90 || cfg.DefaultLatitude > 90 {
		return fmt.Errorf("location.default_latitude out of range: %v", cfg.DefaultLatitude)
	}
	if cfg.DefaultLongitude < -180 || cfg.DefaultLongitude > 180 {
		return fmt.Errorf("location.default_longitude out of range: %v", cfg.DefaultLongitude)
	}
	if cfg.TargetHour < 1 || cfg.TargetHour > 23 {
		return fmt.Errorf("location.target_hour must be between 1 and 23, got %d", cfg.TargetHour)
	}
	if cfg.OverloadThresholdPct > 100 || cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health thresholds are percentages and must not exceed 100")
	}
	for i, loc := range cfg.TrackedLocations {
		name, err := validation.ValidateLocation(loc, 1, validation.MaxLocationLength)
		if err != nil {
			return fmt.Errorf("warming.tracked_locations[%d] %q: %w", i, loc, err)
		}
		cfg.TrackedLocations[i] = name
	}
	return nil
}
