package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/toolsforexperiments/instrumentserver/pkg/retry"
	"github.com/toolsforexperiments/instrumentserver/serverr"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// Callback receives a decoded broadcast event for a topic that matched the
// subscriber's filter.
type Callback func(topic string, event wire.BroadcastEvent)

// SubscriberConfig configures a Subscriber's connection and topic filter.
type SubscriberConfig struct {
	URL             string
	BroadcastPrefix string // must match ServerConfig.BroadcastPrefix
	TopicPrefix     string // "" matches everything; "dmm." matches dmm's own events
}

func (c SubscriberConfig) withDefaults() SubscriberConfig {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	return c
}

// Subscriber encapsulates a subscription to the broadcast namespace, a
// topic filter, and a delivery callback. It runs NATS's own dispatch
// goroutine per subscription rather than a hand-rolled reader loop — the
// dedicated-thread-per-subscription shape spec.md §4.7 describes.
type Subscriber struct {
	cfg      SubscriberConfig
	callback Callback
	logger   *slog.Logger

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription
}

// NewSubscriber builds a Subscriber. Call Start to connect and begin
// delivering events.
func NewSubscriber(cfg SubscriberConfig, callback Callback, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{cfg: cfg.withDefaults(), callback: callback, logger: logger}
}

// natsSubject translates spec.md §4.5's prefix-filter convention ("dmm."
// matches every parameter of dmm") into the NATS core wildcard form.
func natsSubject(broadcastPrefix, topicPrefix string) string {
	if topicPrefix == "" {
		return broadcastPrefix + ">"
	}
	trimmed := strings.TrimSuffix(topicPrefix, ".")
	return broadcastPrefix + trimmed + ".>"
}

// Start connects and subscribes. Each matching message is decoded and
// handed to the callback on NATS's own delivery goroutine.
//
// The initial connect uses retry.Quick(): listener and param-mgr processes
// are commonly started before (or restarted independently of) the
// instrumentserver they watch, so a handful of fast retries absorbs the
// ordinary "server isn't listening yet" race without the caller needing its
// own startup retry loop.
func (s *Subscriber) Start() error {
	var conn *nats.Conn
	connect := func() error {
		c, err := nats.Connect(s.cfg.URL, nats.Name("instrumentserver-subscriber"))
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := retry.Do(context.Background(), retry.Quick(), connect); err != nil {
		return serverr.NewDisconnected("Subscriber", "Start", err)
	}

	subject := natsSubject(s.cfg.BroadcastPrefix, s.cfg.TopicPrefix)
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		topic := strings.TrimPrefix(msg.Subject, s.cfg.BroadcastPrefix)
		event, err := wire.DecodeBroadcast(msg.Data)
		if err != nil {
			s.logger.Warn("transport: dropping malformed broadcast", "topic", topic, "error", err)
			return
		}
		s.callback(topic, event)
	})
	if err != nil {
		conn.Close()
		return serverr.WrapInternal(err, "Subscriber", "Start")
	}

	s.mu.Lock()
	s.conn = conn
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Stop closes the subscription and connection, joining NATS's delivery
// goroutine within the grace period (spec.md §4.7: "stop closes the socket
// and joins the thread within a grace period").
func (s *Subscriber) Stop(grace time.Duration) error {
	s.mu.Lock()
	sub, conn := s.sub, s.conn
	s.sub, s.conn = nil, nil
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("transport: subscriber unsubscribe failed", "error", err)
		}
	}
	if conn == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- conn.Drain() }()
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		conn.Close()
		return serverr.WrapInternal(fmt.Errorf("drain timeout after %s", grace), "Subscriber", "Stop")
	}
}
