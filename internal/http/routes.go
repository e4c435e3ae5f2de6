package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/afternoon-temperature-service/internal/observability"
)

// NewRouter wires the routes. Every /api route shares the general rate limit and request
// timeout; /api/search additionally has its own stricter limit.
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(h.logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/", h.Index).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(h.opts.APILimiter))
	api.Use(TimeoutMiddleware(h.opts.RequestTimeout))
	api.HandleFunc("/temperature", h.GetTemperature).Methods(http.MethodGet)
	api.HandleFunc("/belgrade/temperature", h.GetDefaultTemperature).Methods(http.MethodGet)
	api.Handle("/search", RateLimitMiddleware(h.opts.SearchLimiter)(http.HandlerFunc(h.Search))).Methods(http.MethodGet)
	api.HandleFunc("/docs", h.GetDocs).Methods(http.MethodGet)

	router.NotFoundHandler = CorrelationIDMiddleware(h.logger)(http.HandlerFunc(h.NotFound))
	router.MethodNotAllowedHandler = CorrelationIDMiddleware(h.logger)(http.HandlerFunc(h.MethodNotAllowed))
	return router
}
