// Package main implements a headless broadcast listener: it subscribes to
// one or more topic prefixes on a running instrumentserver and prints
// every parameter-change event to the terminal in color, for operators
// watching live instrument state without a full GUI client.
//
// Grounded on original_source/instrumentserver/client/core.py's
// subscriber loop (a dedicated thread per subscription, decoding and
// handing events to a callback) and the corpus's reference for cobra-based
// CLI binaries (sett's cmd/sett).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/toolsforexperiments/instrumentserver/transport"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

var (
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	bold   = color.New(color.Bold)
)

// ListenerConfig describes what a listener process watches: a connection
// URL, the broadcast prefix it shares with the server, and the topic
// prefixes to subscribe to ("" subscribes to everything).
type ListenerConfig struct {
	URL             string   `yaml:"url"`
	BroadcastPrefix string   `yaml:"broadcastPrefix"`
	Topics          []string `yaml:"topics"`
}

func loadListenerConfig(path string) (*ListenerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &ListenerConfig{BroadcastPrefix: "instrumentserver.", URL: "nats://127.0.0.1:5555"}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = []string{""}
	}
	return cfg, nil
}

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "listener",
		Short: "Print live parameter-change broadcasts from a running instrumentserver",
		RunE:  runListener,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "subscriber config path (YAML)")
	_ = root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runListener(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("binary", "listener")
	cfg, err := loadListenerConfig(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var subs []*transport.Subscriber
	for _, topic := range cfg.Topics {
		sub := transport.NewSubscriber(transport.SubscriberConfig{
			URL:             cfg.URL,
			BroadcastPrefix: cfg.BroadcastPrefix,
			TopicPrefix:     topic,
		}, printEvent, logger)
		if err := sub.Start(); err != nil {
			return fmt.Errorf("subscribe to %q: %w", topic, err)
		}
		subs = append(subs, sub)
	}
	cyan.Printf("listening on %s (topics: %v)\n", cfg.URL, cfg.Topics)

	<-ctx.Done()
	for _, sub := range subs {
		_ = sub.Stop(5 * time.Second)
	}
	return nil
}

// printEvent renders a broadcast event the way an operator watching a
// terminal wants to see it: the topic in bold, structural changes
// (add_parameter/remove_parameter) in yellow, ordinary value changes in
// green.
func printEvent(topic string, event wire.BroadcastEvent) {
	label := bold.Sprint(topic)
	if event.Structural {
		yellow.Printf("%s  [structural]  %v %s\n", label, event.Value, event.Unit)
		return
	}
	green.Printf("%s  = %v %s  (%.3f)\n", label, event.Value, event.Unit, event.Timestamp)
}
