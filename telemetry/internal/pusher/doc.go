// Package pusher streams the looping telemetry sequence to WebSocket clients.
//
// New(seq, cadence, mirror, registry) creates a Pusher.
// Pusher.ServeHTTP upgrades the connection and writes one JSON frame per tick,
// starting from frame 0 for every new client:
//
//	{"target_weight":9.5}
//	{"seconds":0,"weight":0}
//	...
//	{"finalize":true}
//
// The pause is Cadence.Frame between frames and Cadence.Wrap after finalize.
// Pusher.Run(ctx) blocks until ctx is cancelled, then closes every connection
// with 1001 (going away). SetCadence may be called at any time.
//
// The upgrader accepts all origins.
package pusher
