package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/toolsforexperiments/instrumentserver/serverr"
)

// Registry manages registration of this process's Prometheus collectors,
// keyed by a "service.metric" name so duplicate registration is caught
// before it reaches the underlying prometheus.Registry.
type Registry struct {
	prom    *prometheus.Registry
	Core    *Metrics
	entries map[string]prometheus.Collector
	mu      sync.RWMutex
}

// NewRegistry creates a registry pre-loaded with process/Go runtime
// collectors and this repo's own Metrics set.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()
	r := &Registry{
		prom:    prom,
		entries: make(map[string]prometheus.Collector),
	}
	r.Core = NewMetrics()
	r.registerCore()
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying registry, for wiring into an HTTP
// /metrics handler.
func (r *Registry) Prometheus() *prometheus.Registry { return r.prom }

func (r *Registry) register(service, name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", service, name)
	if _, exists := r.entries[key]; exists {
		return serverr.Validationf("metric.Registry", "register", "metric %s already registered for service %s", name, service)
	}
	if err := r.prom.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if stderrors.As(err, &already) {
			return serverr.Validationf("metric.Registry", "register", "prometheus conflict for metric %s: %v", name, err)
		}
		return serverr.WrapInternal(err, "metric.Registry", "register")
	}
	r.entries[key] = c
	return nil
}

// RegisterCounter registers a named counter under service.
func (r *Registry) RegisterCounter(service, name string, c prometheus.Counter) error {
	return r.register(service, name, c)
}

// RegisterGauge registers a named gauge under service.
func (r *Registry) RegisterGauge(service, name string, g prometheus.Gauge) error {
	return r.register(service, name, g)
}

// RegisterHistogram registers a named histogram under service.
func (r *Registry) RegisterHistogram(service, name string, h prometheus.Histogram) error {
	return r.register(service, name, h)
}

// RegisterCounterVec registers a named counter vector under service.
func (r *Registry) RegisterCounterVec(service, name string, c *prometheus.CounterVec) error {
	return r.register(service, name, c)
}

// RegisterGaugeVec registers a named gauge vector under service.
func (r *Registry) RegisterGaugeVec(service, name string, g *prometheus.GaugeVec) error {
	return r.register(service, name, g)
}

// RegisterHistogramVec registers a named histogram vector under service.
func (r *Registry) RegisterHistogramVec(service, name string, h *prometheus.HistogramVec) error {
	return r.register(service, name, h)
}

func (r *Registry) registerCore() {
	must := func(service, name string, c prometheus.Collector) {
		var err error
		switch v := c.(type) {
		case prometheus.Counter:
			err = r.RegisterCounter(service, name, v)
		case prometheus.Gauge:
			err = r.RegisterGauge(service, name, v)
		case *prometheus.CounterVec:
			err = r.RegisterCounterVec(service, name, v)
		case *prometheus.GaugeVec:
			err = r.RegisterGaugeVec(service, name, v)
		case *prometheus.HistogramVec:
			err = r.RegisterHistogramVec(service, name, v)
		}
		if err != nil {
			panic(err)
		}
	}

	must("dispatch", "requests_received_total", r.Core.RequestsReceived)
	must("dispatch", "requests_processed_total", r.Core.RequestsProcessed)
	must("dispatch", "processing_duration_seconds", r.Core.ProcessingDuration)
	must("dispatch", "errors_total", r.Core.ErrorsTotal)
	must("dispatch", "lock_wait_duration_seconds", r.Core.LockWaitDuration)
	must("transport", "broadcasts_published_total", r.Core.BroadcastsPublished)
	must("transport", "broadcasts_dropped_total", r.Core.BroadcastsDropped)
	must("transport", "nats_connected", r.Core.NATSConnected)
	must("transport", "nats_reconnects_total", r.Core.NATSReconnects)
	must("transport", "nats_circuit_breaker", r.Core.NATSCircuitBreaker)
}
