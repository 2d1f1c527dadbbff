// Package otel publishes goGate engine counters and delivery losses through an
// OpenTelemetry Meter.
//
// [New] registers one Int64ObservableCounter per counter and one Int64ObservableGauge
// per histogram bucket. A single callback reads the engine once per collection.
// Callers own the MeterProvider and its readers.
package otel
