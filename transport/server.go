package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/toolsforexperiments/instrumentserver/health"
	"github.com/toolsforexperiments/instrumentserver/metric"
	"github.com/toolsforexperiments/instrumentserver/serverr"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// Dispatcher is the capability Server needs from dispatch.Dispatcher. Kept
// as a narrow interface here (rather than importing *dispatch.Dispatcher
// directly) so transport can be exercised with a fake in tests without
// spinning up a worker pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, instr wire.Instruction) wire.Response
}

// ServerConfig configures a Server's NATS connection and subject namespace.
// RequestSubject and BroadcastPrefix are independently configurable rather
// than one being derived from the other — this resolves spec.md §9's first
// Open Question (the "router port, publisher at port+1" framing becomes a
// NATS connection URL plus an explicit, separate subject namespace).
type ServerConfig struct {
	URL             string
	RequestSubject  string
	BroadcastPrefix string // prepended to every broadcast topic, e.g. "instrumentserver."
	RequestTimeout  time.Duration

	// ListenAt optionally binds a secondary websocket listener bridging
	// browser/GUI-style clients into the same dispatcher (spec.md §6's
	// -a/--listen_at flag).
	ListenAt string
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.RequestSubject == "" {
		c.RequestSubject = "instrumentserver.rpc"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return c
}

// Server is the process-wide transport: it answers Instructions delivered
// on RequestSubject with Dispatcher-produced Responses, and publishes
// broadcast events under BroadcastPrefix. An optional websocket listener
// bridges non-NATS clients into the same request path.
type Server struct {
	cfg        ServerConfig
	conn       *nats.Conn
	dispatcher Dispatcher
	metrics    *metric.Registry
	monitor    *health.Monitor
	logger     *slog.Logger

	requestSub *nats.Subscription
	ws         *websocketListener
}

// NewServer wires a dispatcher, an optional metric registry, and an
// optional logger into a Server ready for Start.
func NewServer(cfg ServerConfig, dispatcher Dispatcher, metrics *metric.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg.withDefaults(),
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// SetHealthMonitor attaches a health.Monitor whose "transport" component
// tracks this server's NATS connection state. Optional: a Server with no
// monitor attached still connects and serves requests, it just has nothing
// to report. Set after NewServer and before Start, mirroring
// dispatch.Dispatcher.SetPublisher's post-construction wiring.
func (s *Server) SetHealthMonitor(monitor *health.Monitor) {
	s.monitor = monitor
}

// Start connects to NATS, subscribes to the request subject, and (if
// configured) starts the secondary websocket listener.
func (s *Server) Start(ctx context.Context) error {
	conn, err := nats.Connect(s.cfg.URL,
		nats.Name("instrumentserver"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn("transport: NATS disconnected", "error", err)
			s.setConnectedMetric(0)
			if s.monitor != nil {
				s.monitor.UpdateUnhealthy("transport", fmt.Sprintf("NATS disconnected: %v", err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			s.logger.Info("transport: NATS reconnected")
			s.setConnectedMetric(1)
			if s.metrics != nil {
				s.metrics.Core.NATSReconnects.Inc()
			}
			if s.monitor != nil {
				s.monitor.UpdateHealthy("transport", "NATS reconnected")
			}
		}),
	)
	if err != nil {
		return serverr.NewDisconnected("Server", "Start", err)
	}
	s.conn = conn
	s.setConnectedMetric(1)
	if s.monitor != nil {
		s.monitor.UpdateHealthy("transport", "connected")
	}

	sub, err := conn.Subscribe(s.cfg.RequestSubject, func(msg *nats.Msg) {
		go s.handleRequest(msg)
	})
	if err != nil {
		conn.Close()
		return serverr.WrapInternal(err, "Server", "Start")
	}
	s.requestSub = sub

	if s.cfg.ListenAt != "" {
		s.ws = newWebsocketListener(s.cfg.ListenAt, s.dispatcher, s.logger)
		if err := s.ws.start(); err != nil {
			s.requestSub.Unsubscribe()
			conn.Close()
			return err
		}
	}

	s.logger.Info("transport: server started", "url", s.cfg.URL, "subject", s.cfg.RequestSubject)
	return nil
}

// handleRequest decodes the NATS message payload into an Instruction,
// dispatches it, and replies on the message's own reply subject — nats.go's
// request/reply correlation stands in for ROUTER/DEALER's identity-
// preserving framing, per transport/doc.go.
//
// Start launches this on its own goroutine per message rather than calling
// it directly from the subscription callback: the callback runs on nats.go's
// single per-subscription delivery goroutine, and Dispatch blocks until the
// worker pool round-trips the instruction, so a direct call would serialize
// every request through that one goroutine regardless of how many workers
// the dispatcher has. Per-message goroutines let the pool's bounded
// parallelism actually reach the wire.
func (s *Server) handleRequest(msg *nats.Msg) {
	if msg.Reply == "" {
		s.logger.Warn("transport: request with no reply subject, dropping")
		return
	}

	requestID := uuid.NewString()
	ctx := context.Background()

	instr, err := wire.DecodeInstruction(msg.Data)
	if err != nil {
		resp := wire.Fail(serverr.ProtocolError.String(), err.Error())
		s.reply(msg, resp)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	s.logger.Debug("transport: dispatching instruction", "request_id", requestID, "operation", instr.Operation, "target", instr.Target)
	resp := s.dispatcher.Dispatch(reqCtx, instr)
	s.reply(msg, resp)
}

func (s *Server) reply(msg *nats.Msg, resp wire.Response) {
	b, err := wire.EncodeResponse(resp)
	if err != nil {
		s.logger.Error("transport: failed to encode response", "error", err)
		return
	}
	if err := msg.Respond(b); err != nil {
		s.logger.Warn("transport: failed to send reply", "error", err)
	}
}

// Publish implements dispatch.Publisher. It is best-effort and non-
// blocking: spec.md §4.5 says a backpressured publish socket should drop
// the event rather than stall the handler, which is what a connection-
// level Publish error below amounts to here.
func (s *Server) Publish(topic string, event wire.BroadcastEvent) {
	if s.conn == nil {
		return
	}
	body, err := wire.EncodeBroadcast(event)
	if err != nil {
		s.logger.Warn("transport: failed to encode broadcast event", "topic", topic, "error", err)
		s.incBroadcastDropped("encode_failed")
		return
	}
	subject := s.cfg.BroadcastPrefix + topic
	if err := s.conn.Publish(subject, body); err != nil {
		s.logger.Warn("transport: broadcast dropped", "topic", topic, "error", err)
		s.incBroadcastDropped("publish_failed")
	}
}

func (s *Server) incBroadcastDropped(reason string) {
	if s.metrics != nil {
		s.metrics.Core.BroadcastsDropped.WithLabelValues(reason).Inc()
	}
}

func (s *Server) setConnectedMetric(v float64) {
	if s.metrics != nil {
		s.metrics.Core.NATSConnected.Set(v)
	}
}

// Stop unsubscribes, stops the websocket listener, and drains the NATS
// connection.
func (s *Server) Stop(timeout time.Duration) error {
	if s.monitor != nil {
		s.monitor.UpdateDegraded("transport", "shutting down")
	}
	if s.ws != nil {
		s.ws.stop(timeout)
	}
	if s.requestSub != nil {
		if err := s.requestSub.Unsubscribe(); err != nil {
			s.logger.Warn("transport: unsubscribe failed", "error", err)
		}
	}
	if s.conn == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- s.conn.Drain() }()
	select {
	case err := <-done:
		if err != nil {
			return serverr.WrapInternal(err, "Server", "Stop")
		}
	case <-time.After(timeout):
		s.conn.Close()
		return serverr.WrapInternal(fmt.Errorf("drain timeout after %s", timeout), "Server", "Stop")
	}
	return nil
}
