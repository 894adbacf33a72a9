// Package metrics turns event bus traffic into Prometheus collectors and
// serves them on /metrics.
package metrics
