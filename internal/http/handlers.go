package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/afternoon-temperature-service/internal/apperror"
	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
	"github.com/kjstillabower/afternoon-temperature-service/internal/observability"
	"github.com/kjstillabower/afternoon-temperature-service/internal/service"
	"github.com/kjstillabower/afternoon-temperature-service/internal/traffic"
	"github.com/kjstillabower/afternoon-temperature-service/internal/validation"
)

const serviceName = "afternoon-temperature-service"

// Error codes that are not apperror kinds.
const (
	codeRateLimited      = "RATE_LIMITED"
	codeNotFoundRoute    = "NOT_FOUND_ROUTE"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeInternal         = "INTERNAL_ERROR"
)

// TemperatureService is the subset of service.TemperatureService the handlers use.
type TemperatureService interface {
	Resolve(ctx context.Context, in service.LocationInput, forceRefresh bool) (models.Result, error)
	Search(ctx context.Context, query string) ([]models.Location, error)
	DefaultLocation() models.Coordinates
}

// Options configures a Handler and the router built from it.
type Options struct {
	Health         *HealthConfig
	APILimiter     *ClientLimiter // nil disables
	SearchLimiter  *ClientLimiter // nil disables
	RequestTimeout time.Duration
	Version        string
	Clock          clock.Clock
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc    TemperatureService
	logger *zap.Logger
	opts   Options
	health healthState
}

// NewHandler returns a new Handler.
func NewHandler(svc TemperatureService, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Handler{svc: svc, logger: logger, opts: opts}
}

// GetTemperature handles GET /api/temperature?location=&lat=&lon=&refresh=.
func (h *Handler) GetTemperature(w http.ResponseWriter, r *http.Request) {
	params, err := validation.ParseTemperatureQuery(r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	in := service.LocationInput{Name: params.Location, Coordinates: params.Coordinates}
	h.resolve(w, r, in, params.Refresh)
}

// GetDefaultTemperature handles GET /api/belgrade/temperature, the legacy default-location route.
func (h *Handler) GetDefaultTemperature(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, service.LocationInput{}, false)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, in service.LocationInput, refresh bool) {
	result, err := h.svc.Resolve(r.Context(), in, refresh)
	recordOutcome(r.Context(), err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type searchResponse struct {
	Query   string            `json:"query"`
	Results []models.Location `json:"results"`
	Count   int               `json:"count"`
}

// Search handles GET /api/search?q=. Queries under 2 characters are rejected before any lookup.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query, err := validation.ValidateSearchQuery(r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	results, err := h.svc.Search(r.Context(), query)
	recordOutcome(r.Context(), err)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Results: results, Count: len(results)})
}

// GetDocs handles GET /api/docs.
func (h *Handler) GetDocs(w http.ResponseWriter, r *http.Request) {
	def := h.svc.DefaultLocation()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "Afternoon Temperature Service",
		"version": h.opts.Version,
		"endpoints": map[string]string{
			"GET /":                         "Web UI",
			"GET /health":                   "Health check",
			"GET /metrics":                  "Prometheus metrics",
			"GET /api/temperature":          fmt.Sprintf("Daily temperature nearest 14:00 for a location (default: %s)", def.Name),
			"GET /api/belgrade/temperature": "Default location temperature (legacy)",
			"GET /api/search":               "Search locations by name",
			"GET /api/docs":                 "API documentation",
		},
		"parameters": map[string]interface{}{
			"temperature": map[string]string{
				"location": "Location name (string)",
				"lat":      "Latitude (number, with lon)",
				"lon":      "Longitude (number, with lat)",
				"refresh":  "Bypass the cache (boolean)",
			},
			"search": map[string]string{
				"q": fmt.Sprintf("Search query (string, min %d chars)", validation.MinSearchLength),
			},
		},
		"examples": map[string]string{
			"defaultTemperature": "/api/temperature",
			"byName":             "/api/temperature?location=Paris",
			"byCoordinates":      "/api/temperature?lat=48.8566&lon=2.3522",
			"search":             "/api/search?q=New",
		},
		"rateLimit": map[string]string{
			"general": describeLimit(h.opts.APILimiter),
			"search":  describeLimit(h.opts.SearchLimiter),
		},
	})
}

func describeLimit(l *ClientLimiter) string {
	if l == nil {
		return "unlimited"
	}
	return fmt.Sprintf("%d requests per %s", l.Max(), humanizeWindow(l.Window()))
}

func humanizeWindow(d time.Duration) string {
	switch {
	case d%time.Hour == 0 && d > time.Hour:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d == time.Hour:
		return "hour"
	case d%time.Minute == 0 && d > time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	case d == time.Minute:
		return "minute"
	}
	return d.String()
}

// NotFound handles unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, codeNotFoundRoute, "Endpoint not found; see GET /api/docs")
}

// MethodNotAllowed handles known routes called with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method "+r.Method+" not allowed")
}

// recordOutcome feeds the health tracker. Only upstream and internal failures count as errors.
// A request whose own context ended is not recorded at all.
func recordOutcome(ctx context.Context, err error) {
	if err != nil && ctx.Err() != nil {
		return
	}
	switch apperror.KindOf(err) {
	case apperror.InvalidInput, apperror.NotFound:
		traffic.RecordSuccess()
	default:
		if err != nil {
			traffic.RecordError()
			return
		}
		traffic.RecordSuccess()
	}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeServiceError maps an apperror kind to its status code and writes the error body.
// Upstream and internal details are logged, not returned.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)
	kind := apperror.KindOf(err)
	switch kind {
	case apperror.InvalidInput:
		logger.Debug("invalid request", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, string(kind), apperror.MessageOf(err))
	case apperror.NotFound:
		logger.Debug("location not found", zap.Error(err))
		writeError(w, r, http.StatusNotFound, string(kind), apperror.MessageOf(err))
	case apperror.UpstreamFailure:
		logger.Warn("upstream error", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, string(kind), "Unable to fetch temperature data")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeInternal, "Internal server error")
	}
}
