// Package sequence holds the fixed grind-graph telemetry that the mock
// replays to every client.
package sequence
