// Package otel publishes goCartes client metrics as OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] creates one Int64ObservableCounter per client counter, one
// Int64ObservableGauge per latency bucket (cumulative) plus a count gauge, and a
// counter for dropped notifications. A single callback reads
// [goCartes.Client.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate client state.
package otel
