//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/kjstillabower/afternoon-temperature-service/internal/clock"
	"github.com/kjstillabower/afternoon-temperature-service/internal/models"
	"github.com/kjstillabower/afternoon-temperature-service/internal/testhelpers"
)

// TestTemperature_Integration exercises the full stack against live providers.
func TestTemperature_Integration(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	svc, _, cleanup := testhelpers.SetupIntegrationService(t, cfg)
	defer cleanup()

	router := NewRouter(NewHandler(svc, zap.NewNop(), Options{Clock: clock.Real{}}))

	w := serve(router, http.MethodGet, "/api/temperature?location=Belgrade")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var res models.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Readings) == 0 {
		t.Fatal("expected at least one daily reading")
	}
	for _, r := range res.Readings {
		if r.Unit != models.Unit || r.Date == "" {
			t.Errorf("reading = %+v", r)
		}
	}

	w = serve(router, http.MethodGet, "/api/temperature?location=Belgrade")
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || !res.FromCache {
		t.Errorf("second request fromCache = %v err = %v", res.FromCache, err)
	}

	w = serve(router, http.MethodGet, "/api/search?q=Belgr")
	if w.Code != http.StatusOK {
		t.Errorf("search status = %d", w.Code)
	}
}
