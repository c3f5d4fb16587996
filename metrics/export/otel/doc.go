// Package otel exports leadAuth engine metrics through an OpenTelemetry
// Meter.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter
// and, for the verify latency histogram, one cumulative bucket gauge keyed
// by an le attribute plus a count gauge. A single callback reads
// [leadAuth.Engine.MetricsSnapshot] on each collection cycle. Attributes
// passed to the constructor are attached to every observation.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
