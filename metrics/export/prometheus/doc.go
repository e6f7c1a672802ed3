// Package prometheus serves authcore engine metrics in the Prometheus text
// exposition format.
//
// Counters are named authcore_*_total. The login latency histogram is
// published only when the engine records latency. Nothing is registered
// globally; callers mount [Exporter.Handler].
package prometheus
