// Package sinks implements progress consumers: structured logs, Prometheus
// collectors and run-history persistence.
package sinks
