// Package prometheus exports leadAuth engine metrics to Prometheus.
//
// [PrometheusExporter.Handler] renders the text exposition format without a
// registry. [PrometheusExporter.Collector] plugs the same series into a
// client_golang registry. Counter names are leadauth_*_total; the single
// histogram is leadauth_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
