// Package api exposes a read-only HTTP view of the settings store, handy for
// curl and for checking what the UI has written.
//
//	GET /api/v1/settings   the store, same body as the "get" reply
//	GET /api/v1/health     {"status":"ok","keys":N,"connections":M}
package api
