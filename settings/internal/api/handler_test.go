package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/grindscale/devmock/settings/internal/api"
	"github.com/grindscale/devmock/settings/internal/store"
)

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestSettings_ReturnsStoreInOrder(t *testing.T) {
	st := store.New(store.Defaults())
	st.Set("gain", "7")
	h := api.New(st, nil)

	rr := do(t, h, http.MethodGet, "/api/v1/settings")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	want := `{"read_samples":4,"speed":10,"gain":"7","calibration_factor":-0.015270548,"target_dose_single":9.5,"target_dose_double":18}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Errorf("body:\n got  %s\n want %s", got, want)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type: got %q", ct)
	}
}

func TestHealth(t *testing.T) {
	h := api.New(store.New(store.Defaults()), fixedCount(2))

	rr := do(t, h, http.MethodGet, "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Keys != 6 || resp.Connections != 2 {
		t.Errorf("health: got %+v", resp)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := api.New(store.New(nil), nil)
	for _, path := range []string{"/api/v1/settings", "/api/v1/health"} {
		rr := do(t, h, http.MethodPost, path)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, rr.Code)
		}
		var body map[string]string
		json.NewDecoder(rr.Body).Decode(&body) //nolint:errcheck
		if body["error"] != "method not allowed" {
			t.Errorf("POST %s: error body %v", path, body)
		}
	}
}
