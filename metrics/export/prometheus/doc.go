// Package prometheus renders goGate engine counters and delivery losses in Prometheus
// text exposition format.
//
// [New] wraps an engine and exposes an [http.Handler] for the scrape endpoint. Counter
// names are prefixed gogate_ and end in _total. The session latency histogram is
// gogate_verify_session_latency_seconds and appears only when latency tracking is on.
// Nothing is registered globally.
package prometheus
