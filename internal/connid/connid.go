package connid

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// New returns a fresh connection identifier.
func New() string {
	return uuid.NewString()
}

// Logger returns slog.Default() annotated with a new connection id and the
// request's remote address.
func Logger(r *http.Request) *slog.Logger {
	return slog.Default().With("conn", New(), "remote", r.RemoteAddr)
}
