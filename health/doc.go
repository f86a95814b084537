// Package health tracks the healthy/unhealthy/degraded status of the
// server's components (transport, registry, worker pool) and aggregates
// them into a single system-wide status for the health endpoint.
package health
