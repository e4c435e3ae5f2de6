package http

import (
	_ "embed"
	"net/http"
)

//go:embed web/index.html
var indexHTML []byte

// Index serves the single-page front end.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexHTML)
}
