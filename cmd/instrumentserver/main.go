// Package main implements the instrumentserver RPC server binary: it loads
// a startup config, instantiates the configured instruments plus the
// virtual parameter manager, and serves requests over NATS (and optionally
// a secondary websocket listener) until it receives a shutdown signal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/toolsforexperiments/instrumentserver/config"
	"github.com/toolsforexperiments/instrumentserver/dispatch"
	"github.com/toolsforexperiments/instrumentserver/drivers"
	"github.com/toolsforexperiments/instrumentserver/health"
	"github.com/toolsforexperiments/instrumentserver/instrument"
	"github.com/toolsforexperiments/instrumentserver/metric"
	"github.com/toolsforexperiments/instrumentserver/parammanager"
	"github.com/toolsforexperiments/instrumentserver/transport"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Exit codes, per spec.md §6: 0 success, 1 configuration error,
// 2 bind failure, 3 fatal runtime error.
const (
	exitOK = iota
	exitConfigError
	exitBindFailure
	exitFatalRuntime
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(exitFatalRuntime)
		}
	}()

	os.Exit(run())
}

func run() int {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	if cliCfg.ShowVersion {
		fmt.Printf("instrumentserver version %s (%s)\n", Version, BuildTime)
		return exitOK
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return exitOK
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting instrumentserver", "version", Version, "config", cliCfg.ConfigPath)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return exitConfigError
	}
	safeCfg := config.NewSafeConfig(cfg)

	registry := instrument.NewRegistry()
	if err := bootstrapRegistry(registry, safeCfg.Get()); err != nil {
		logger.Error("failed to bootstrap instruments", "error", err)
		return exitConfigError
	}

	metrics := metric.NewRegistry()
	monitor := health.NewMonitor()

	dispatcher := dispatch.NewDispatcher(registry, nil, metrics, logger, dispatch.Config{})
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		return exitFatalRuntime
	}

	serverCfg := serverConfigFrom(cliCfg, cfg)
	server := transport.NewServer(serverCfg, dispatcher, metrics, logger)
	server.SetHealthMonitor(monitor)
	dispatcher.SetPublisher(server)
	if err := server.Start(ctx); err != nil {
		logger.Error("failed to start transport", "error", err)
		return exitBindFailure
	}

	var metricsServer *metric.Server
	if cliCfg.MetricsAddr != "" {
		metricsServer = metric.NewServer(cliCfg.MetricsAddr, "/metrics", metrics, monitor, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Error("failed to start metrics server", "error", err)
			return exitBindFailure
		}
	}

	go watchSaturation(ctx, registry, dispatcher, monitor, 5*time.Second)

	if cliCfg.InitScript != "" {
		if err := runInitScript(ctx, dispatcher, cliCfg.InitScript); err != nil {
			logger.Error("init script failed", "error", err, "path", cliCfg.InitScript)
			return exitFatalRuntime
		}
	}

	if cliCfg.GUI {
		logger.Warn("--gui requested but no in-process GUI is built into this binary; ignoring")
	}

	logger.Info("instrumentserver ready", "instruments", registry.List())

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := server.Stop(10 * time.Second); err != nil {
		logger.Error("transport shutdown error", "error", err)
	}
	if err := dispatcher.Stop(10 * time.Second); err != nil {
		logger.Error("dispatcher shutdown error", "error", err)
	}
	if metricsServer != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Stop(stopCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
		stopCancel()
	}
	logger.Info("instrumentserver shutdown complete")
	return exitOK
}

// watchSaturation periodically reports two health.Monitor components that
// have no single event to hang an Update call off of: "registry" (does the
// process have any instruments at all) and "dispatch" (is the worker pool's
// queue backing up). Runs until ctx is cancelled.
func watchSaturation(ctx context.Context, registry *instrument.Registry, dispatcher *dispatch.Dispatcher, monitor *health.Monitor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := len(registry.List()); n == 0 {
				monitor.UpdateDegraded("registry", "no instruments registered")
			} else {
				monitor.UpdateHealthy("registry", fmt.Sprintf("%d instruments registered", n))
			}

			stats := dispatcher.Stats()
			utilization := float64(stats.QueueDepth) / float64(stats.QueueSize)
			switch {
			case utilization >= 0.9:
				monitor.UpdateUnhealthy("dispatch", fmt.Sprintf("worker pool queue %d/%d (%.0f%%)", stats.QueueDepth, stats.QueueSize, utilization*100))
			case utilization >= 0.5:
				monitor.UpdateDegraded("dispatch", fmt.Sprintf("worker pool queue %d/%d (%.0f%%)", stats.QueueDepth, stats.QueueSize, utilization*100))
			default:
				monitor.UpdateHealthy("dispatch", fmt.Sprintf("worker pool queue %d/%d (%.0f%%)", stats.QueueDepth, stats.QueueSize, utilization*100))
			}
		}
	}
}

// bootstrapRegistry wires the built-in driver factories and the parameter
// manager factory, then instantiates every configured instrument whose
// ShouldInitialize() is true (spec.md §6's `initialize` field, defaulting
// true).
func bootstrapRegistry(registry *instrument.Registry, cfg *config.Config) error {
	if err := drivers.Register(registry); err != nil {
		return err
	}
	if err := registry.RegisterFactory(parammanager.ClassPath, parammanager.NewFactory()); err != nil {
		return err
	}
	if _, err := registry.Create(parammanager.DefaultName, parammanager.ClassPath, nil, nil, true); err != nil {
		return err
	}

	for name, ic := range cfg.Instruments {
		if !ic.ShouldInitialize() {
			continue
		}
		kwargs := ic.Init
		if kwargs == nil {
			kwargs = map[string]any{}
		}
		if ic.Address != "" {
			kwargs["address"] = ic.Address
		}
		if _, err := registry.Create(name, ic.Type, nil, kwargs, false); err != nil {
			return fmt.Errorf("create instrument %q: %w", name, err)
		}
	}
	return nil
}

// serverConfigFrom derives the transport layer's connection settings from
// the CLI flags and startup config. The networking.listeningAddress field
// overrides the flag-derived NATS URL when set; broadcastPrefix stays an
// independent setting rather than a derived port+1 (spec.md §9's first Open
// Question, resolved in SPEC_FULL.md §2).
func serverConfigFrom(cliCfg *CLIConfig, cfg *config.Config) transport.ServerConfig {
	url := fmt.Sprintf("nats://127.0.0.1:%d", cliCfg.Port)
	if cfg.Networking.ListeningAddress != "" {
		url = "nats://" + cfg.Networking.ListeningAddress
	}
	return transport.ServerConfig{
		URL:             url,
		RequestSubject:  "instrumentserver.rpc",
		BroadcastPrefix: "instrumentserver.",
		ListenAt:        cliCfg.ListenAt,
	}
}

// runInitScript executes a JSON array of wire.Instruction values against
// the freshly started dispatcher, in order, stopping at the first failure.
// This is the Go realization of spec.md §6's `-i/--init_script`
// "post-startup script" flag: no scripting language is embedded, the
// script is itself a sequence of ordinary instructions.
func runInitScript(ctx context.Context, dispatcher *dispatch.Dispatcher, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var instructions []wire.Instruction
	if err := json.Unmarshal(data, &instructions); err != nil {
		return fmt.Errorf("decode init script: %w", err)
	}
	for i, instr := range instructions {
		resp := dispatcher.Dispatch(ctx, instr)
		if !resp.OK {
			return fmt.Errorf("init script step %d (%s %s): %s", i, instr.Operation, instr.Target, resp.Error.Message)
		}
	}
	return nil
}
