//go:build integration

package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toolsforexperiments/instrumentserver/wire"
)

// fakeDispatcher echoes the instruction's target back as a success value,
// so the integration test can assert the round trip without standing up a
// real instrument registry.
type fakeDispatcher struct{}

func (fakeDispatcher) Dispatch(_ context.Context, instr wire.Instruction) wire.Response {
	resp, _ := wire.OK(instr.Target)
	return resp
}

// TestIntegration_ServerClientRoundTrip requires a NATS server reachable at
// nats.DefaultURL (run with -tags integration against `nats-server`).
func TestIntegration_ServerClientRoundTrip(t *testing.T) {
	cfg := ServerConfig{RequestSubject: "instrumentserver.test.rpc", BroadcastPrefix: "instrumentserver.test."}
	server := NewServer(cfg, fakeDispatcher{}, nil, nil)
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop(5 * time.Second)

	client := NewClient(ClientConfig{RequestSubject: cfg.RequestSubject})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	resp, err := client.Ask(context.Background(), wire.Instruction{Operation: wire.OpGet, Target: "dmm"})
	require.NoError(t, err)
	require.True(t, resp.OK)

	var target string
	require.NoError(t, resp.Unmarshal(&target))
	require.Equal(t, "dmm", target)
}

// TestIntegration_SubscriberReceivesPrefixedBroadcast exercises
// spec.md §8 scenario 6: a subscriber with topic filter "dmm." receives
// events published under that prefix and none outside it.
func TestIntegration_SubscriberReceivesPrefixedBroadcast(t *testing.T) {
	cfg := ServerConfig{RequestSubject: "instrumentserver.test2.rpc", BroadcastPrefix: "instrumentserver.test2."}
	server := NewServer(cfg, fakeDispatcher{}, nil, nil)
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop(5 * time.Second)

	var mu sync.Mutex
	var received []string
	sub := NewSubscriber(SubscriberConfig{BroadcastPrefix: cfg.BroadcastPrefix, TopicPrefix: "dmm."}, func(topic string, _ wire.BroadcastEvent) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, topic)
	}, nil)
	require.NoError(t, sub.Start())
	defer sub.Stop(5 * time.Second)

	time.Sleep(100 * time.Millisecond)
	event, err := wire.NewBroadcastEvent(1.25, "V")
	require.NoError(t, err)
	server.Publish("dmm.voltage", event)
	server.Publish("source.voltage", event)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"dmm.voltage"}, received)
}
