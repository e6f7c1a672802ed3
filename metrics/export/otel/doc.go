// Package otel publishes authcore engine metrics as OpenTelemetry
// asynchronous instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per latency bucket. The caller owns the
// MeterProvider and its readers.
package otel
