package api

import (
	"encoding/json"
	"net/http"

	"github.com/grindscale/devmock/settings/internal/store"
)

// Counter reports how many WebSocket clients are connected.
type Counter interface {
	Count() int
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Keys        int    `json:"keys"`
	Connections int    `json:"connections"`
}

// Handler serves the /api/v1/* routes.
type Handler struct {
	store *store.Store
	conns Counter
	mux   *http.ServeMux
}

// New creates a Handler over st. conns may be nil.
func New(st *store.Store, conns Counter) http.Handler {
	h := &Handler{store: st, conns: conns, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/settings", h.settings)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := HealthResponse{Status: "ok", Keys: h.store.Len()}
	if h.conns != nil {
		resp.Connections = h.conns.Count()
	}
	jsonResp(w, http.StatusOK, resp)
}

// settings returns GET /api/v1/settings, the same body a "get" command gets.
func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.store)
}

func jsonResp(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, status int, msg string) {
	jsonResp(w, status, map[string]string{"error": msg})
}
