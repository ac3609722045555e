// Package metrics keeps the handful of counters the mocks expose and renders
// them in the Prometheus text exposition format on /metrics.
//
// Values live in sync/atomic words. Registry.Gather converts them into
// client_model MetricFamily values at scrape time, and ServeHTTP encodes those
// with expfmt. Families appear in registration order; a CounterVec with no
// series yet is left out.
package metrics
