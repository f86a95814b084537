// Package metric provides the Prometheus-backed metrics registry shared by
// the dispatcher, transport, and worker pool.
package metric
