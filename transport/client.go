package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/toolsforexperiments/instrumentserver/metric"
	"github.com/toolsforexperiments/instrumentserver/pkg/retry"
	"github.com/toolsforexperiments/instrumentserver/serverr"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// ConnectionStatus mirrors the corpus natsclient.Client's connection state
// machine, trimmed to the states this client's simpler reconnect policy
// actually produces. StatusCircuitOpen/StatusHalfOpen correspond to the
// circuit breaker states metric.Metrics.NATSCircuitBreaker reports
// (0=closed i.e. Connected/Disconnected/Reconnecting, 1=open, 2=half-open).
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
	StatusHalfOpen
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	case StatusHalfOpen:
		return "half_open"
	default:
		return "disconnected"
	}
}

// ClientConfig configures a Client's connection, request subject, and
// reconnect policy (spec.md §4.1).
type ClientConfig struct {
	URL            string
	RequestSubject string
	Timeout        time.Duration // default 5s, per spec.md §4.1

	// MaxFailures is the number of consecutive send/receive failures after
	// which Ask surfaces a Disconnected error rather than retrying
	// silently (spec.md §4.1: "after three consecutive failures surface a
	// connection error").
	MaxFailures int

	// Retry, if non-zero, applies an exponential-backoff reconnect policy
	// at the Client layer (base 1s, up to Retry.MaxAttempts) rather than
	// inside a single request, per spec.md §4.1.
	Retry serverr.RetryConfig

	// CircuitBreakerCooldown is how long Ask fails fast (without touching
	// the network) once the circuit opens at MaxFailures, before allowing
	// one half-open probe request through. Grounded on the corpus's
	// natsclient.Client circuit breaker, trimmed from its escalating
	// per-failure backoff to a single fixed cooldown.
	CircuitBreakerCooldown time.Duration

	// Metrics, if set, reports circuit state transitions on
	// metric.Metrics.NATSCircuitBreaker. Optional: the CLI clients
	// (param-mgr, listener) that construct a Client have no metrics
	// registry of their own and leave this nil.
	Metrics *metric.Registry
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.RequestSubject == "" {
		c.RequestSubject = "instrumentserver.rpc"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.CircuitBreakerCooldown == 0 {
		c.CircuitBreakerCooldown = 10 * time.Second
	}
	return c
}

// Client is the dealer-side request/reply runtime: it connects once, then
// serializes Ask calls behind a mutex so at most one request is ever
// outstanding against the connection at a time (spec.md §4.1's "the dealer
// must not have more than one outstanding request" ordering rule).
type Client struct {
	cfg     ClientConfig
	status  atomic.Value // ConnectionStatus
	metrics *metric.Metrics

	mu              sync.Mutex // serializes Ask: one outstanding request at a time
	conn            *nats.Conn
	failures        int
	circuitOpenedAt time.Time
}

// NewClient builds a Client. Callers must call Connect before Ask.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	c := &Client{cfg: cfg}
	if cfg.Metrics != nil {
		c.metrics = cfg.Metrics.Core
	}
	c.status.Store(StatusDisconnected)
	c.setCircuitGauge(0)
	return c
}

func (c *Client) setCircuitGauge(v float64) {
	if c.metrics != nil {
		c.metrics.NATSCircuitBreaker.Set(v)
	}
}

// Status returns the client's current connection status.
func (c *Client) Status() ConnectionStatus {
	return c.status.Load().(ConnectionStatus)
}

// Connect opens the underlying NATS connection, applying the configured
// retry policy if Retry.MaxAttempts > 0.
func (c *Client) Connect(ctx context.Context) error {
	connect := func() error {
		conn, err := nats.Connect(c.cfg.URL, nats.Name("instrumentserver-client"), nats.MaxReconnects(-1))
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.conn = conn
		c.failures = 0
		c.mu.Unlock()
		c.status.Store(StatusConnected)
		c.setCircuitGauge(0)
		return nil
	}

	if c.cfg.Retry.MaxAttempts <= 0 {
		if err := connect(); err != nil {
			return serverr.NewDisconnected("Client", "Connect", err)
		}
		return nil
	}

	if err := retry.Do(ctx, c.cfg.Retry.ToRetryConfig(), connect); err != nil {
		return serverr.NewDisconnected("Client", "Connect", err)
	}
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.status.Store(StatusDisconnected)
	if conn == nil {
		return nil
	}
	return conn.Drain()
}

// Ask sends instr and blocks for a reply within the configured timeout.
// On send-failure or receive-timeout, the underlying connection is closed
// and re-opened (spec.md §4.1's reconnect policy); after MaxFailures
// consecutive failures, Ask opens the circuit breaker: further calls fail
// immediately without touching the network until CircuitBreakerCooldown
// elapses, at which point one half-open probe request is let through,
// closing the circuit on success or re-opening it on failure. A reply that
// arrives after the deadline has already passed is discarded by virtue of
// never being read.
func (c *Client) Ask(ctx context.Context, instr wire.Instruction) (wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Status() == StatusCircuitOpen {
		if time.Since(c.circuitOpenedAt) < c.cfg.CircuitBreakerCooldown {
			return wire.Response{}, serverr.NewDisconnected("Client", "Ask", nil)
		}
		if err := c.probeHalfOpen(); err != nil {
			return wire.Response{}, serverr.NewDisconnected("Client", "Ask", err)
		}
	}

	if c.conn == nil {
		return wire.Response{}, serverr.NewDisconnected("Client", "Ask", nil)
	}

	payload, err := wire.Encode(instr)
	if err != nil {
		return wire.Response{}, serverr.Protocolf("Client", "Ask", "encode instruction: %v", err)
	}

	deadline := c.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < deadline {
			deadline = remaining
		}
	}

	msg, err := c.conn.Request(c.cfg.RequestSubject, payload, deadline)
	if err != nil {
		return c.handleAskFailure(err)
	}

	c.failures = 0
	c.status.Store(StatusConnected)
	c.setCircuitGauge(0)

	resp, err := wire.DecodeResponse(msg.Data)
	if err != nil {
		return wire.Response{}, serverr.Protocolf("Client", "Ask", "decode response: %v", err)
	}
	return resp, nil
}

// probeHalfOpen is called with the cooldown already elapsed on an open
// circuit. It attempts one reconnect as the half-open trial; a failure
// re-opens the circuit (resetting the cooldown) rather than falling through
// to the caller's normal retry path, since a probe failure is exactly the
// signal the circuit breaker exists to short-circuit.
func (c *Client) probeHalfOpen() error {
	c.status.Store(StatusHalfOpen)
	c.setCircuitGauge(2)

	conn, err := nats.Connect(c.cfg.URL, nats.Name("instrumentserver-client"), nats.MaxReconnects(-1))
	if err != nil {
		c.circuitOpenedAt = time.Now()
		c.status.Store(StatusCircuitOpen)
		c.setCircuitGauge(1)
		return err
	}
	c.conn = conn
	return nil
}

func (c *Client) handleAskFailure(cause error) (wire.Response, error) {
	c.failures++

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if c.failures >= c.cfg.MaxFailures {
		c.status.Store(StatusCircuitOpen)
		c.circuitOpenedAt = time.Now()
		c.setCircuitGauge(1)
		return wire.Response{}, serverr.NewDisconnected("Client", "Ask", cause)
	}

	c.status.Store(StatusReconnecting)
	conn, err := nats.Connect(c.cfg.URL, nats.Name("instrumentserver-client"), nats.MaxReconnects(-1))
	if err != nil {
		return wire.Response{}, serverr.NewTimeout("Client", "Ask", c.cfg.Timeout)
	}
	c.conn = conn
	return wire.Response{}, serverr.NewTimeout("Client", "Ask", c.cfg.Timeout)
}
