// Package telemetry installs the OpenTelemetry tracer provider used by the
// binaries. The api client creates spans through otelhttp against whatever
// provider is global; this package decides where they go.
package telemetry
