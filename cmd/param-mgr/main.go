// Package main implements a standalone parameter-manager client: it
// attaches to (or creates) a named parameter-manager instrument on a
// running instrumentserver, prints its current snapshot, then stays
// attached to the broadcast channel to report live parameter changes.
//
// Grounded on original_source/instrumentserver/apps.py's
// parameterManagerScript, which opens a Client against --port and either
// attaches to an existing --name instrument or creates one — minus the Qt
// GUI, which is out of scope for this headless build.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolsforexperiments/instrumentserver/clientproxy"
	"github.com/toolsforexperiments/instrumentserver/parammanager"
	"github.com/toolsforexperiments/instrumentserver/transport"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

var (
	name string
	port int
)

func main() {
	root := &cobra.Command{
		Use:   "param-mgr",
		Short: "Attach to (or create) a parameter-manager instrument on a running instrumentserver",
		RunE:  runParamMgr,
	}
	root.Flags().StringVar(&name, "name", parammanager.DefaultName, "instrument name")
	root.Flags().IntVar(&port, "port", 5555, "instrumentserver connection port")

	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runParamMgr(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("binary", "param-mgr")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := transport.NewClient(transport.ClientConfig{
		URL: fmt.Sprintf("nats://127.0.0.1:%d", port),
	})
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	runtime := clientproxy.NewRuntime(client)
	proxy, err := runtime.FindOrCreateInstrument(ctx, name, parammanager.ClassPath, nil, nil)
	if err != nil {
		return fmt.Errorf("find or create %q: %w", name, err)
	}

	snapshot, err := proxy.Snapshot(ctx, client)
	if err != nil {
		return fmt.Errorf("snapshot %q: %w", name, err)
	}
	logger.Info("attached to parameter manager", "name", name, "parameters", len(snapshot))
	for path, value := range snapshot {
		logger.Info("parameter", "path", path, "value", value)
	}

	sub := transport.NewSubscriber(transport.SubscriberConfig{
		URL:             fmt.Sprintf("nats://127.0.0.1:%d", port),
		BroadcastPrefix: "instrumentserver.",
		TopicPrefix:     name,
	}, func(topic string, event wire.BroadcastEvent) {
		logger.Info("parameter changed", "topic", topic, "value", event.Value, "unit", event.Unit, "structural", event.Structural)
	}, logger)
	if err := sub.Start(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Stop(5 * time.Second)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
