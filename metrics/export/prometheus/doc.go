// Package prometheus exposes goCartes client metrics through client_golang.
//
// [Collector] turns each scrape into const metrics built from
// [goCartes.Client.MetricsSnapshot]: one gocartes_*_total counter per client
// counter, the gocartes_request_latency_seconds histogram and
// gocartes_events_dropped_total. [PrometheusExporter] registers it in a private
// registry and serves it with promhttp.
//
// # What this package must NOT do
//
//   - Register anything in the global Prometheus registry.
//   - Mutate client state.
package prometheus
