package metric

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolsforexperiments/instrumentserver/health"
	"github.com/toolsforexperiments/instrumentserver/serverr"
)

// Server exposes a Registry's collectors at /metrics and a health.Monitor's
// aggregate status at /health over plain HTTP. Grounded on the corpus's
// metric.Server (NewServer(port, path, registry, securityCfg)), trimmed to
// this repo's needs: no TLS (spec.md excludes transport encryption as a
// non-goal) and the health.Monitor this repo actually has, in place of the
// corpus's security.Config dependency.
type Server struct {
	addr     string
	path     string
	registry *Registry
	monitor  *health.Monitor
	logger   *slog.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewServer builds a metrics/health server bound to addr (e.g. ":9090"),
// serving registry's collectors at path (default "/metrics") and monitor's
// aggregate status at "/health". monitor may be nil, in which case /health
// always reports healthy with no sub-statuses.
func NewServer(addr, path string, registry *Registry, monitor *health.Monitor, logger *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, path: path, registry: registry, monitor: monitor, logger: logger}
}

// Start binds addr and serves until Stop is called. It returns once the
// listener is bound; serving happens on its own goroutine, mirroring
// transport.websocketListener.start's shape.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return serverr.Validationf("metric.Server", "Start", "server already running")
	}
	if s.registry == nil {
		return serverr.Validationf("metric.Server", "Start", "no registry provided")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.registry.Prometheus(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return serverr.WrapInternal(err, "metric.Server", "Start")
	}

	s.server = &http.Server{Addr: s.addr, Handler: mux}
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metric: server failed", "error", err)
		}
	}()
	s.logger.Info("metric: server started", "addr", s.addr, "path", s.path)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(health.NewHealthy("instrumentserver", "no components tracked"))
		return
	}

	all := s.monitor.GetAll()
	subs := make([]health.Status, 0, len(all))
	for _, status := range all {
		subs = append(subs, status)
	}
	overall := health.Aggregate("instrumentserver", subs)

	status := http.StatusOK
	if overall.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(overall)
}

// Stop shuts the HTTP server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return serverr.WrapInternal(err, "metric.Server", "Stop")
	}
	return nil
}
