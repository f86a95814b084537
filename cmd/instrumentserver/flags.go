package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// CLIConfig holds the server binary's command-line configuration, per
// spec.md §6's flag table.
type CLIConfig struct {
	Port        int
	GUI         bool
	ListenAt    string
	ConfigPath  string
	InitScript  string
	LogLevel    string
	LogFormat   string
	MetricsAddr string
	ShowVersion bool
	ShowHelp    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.IntVar(&cfg.Port, "port", getEnvInt("INSTRUMENTSERVER_PORT", 5555), "primary NATS connection port (env: INSTRUMENTSERVER_PORT)")
	flag.IntVar(&cfg.Port, "p", getEnvInt("INSTRUMENTSERVER_PORT", 5555), "primary NATS connection port (env: INSTRUMENTSERVER_PORT)")

	flag.BoolVar(&cfg.GUI, "gui", getEnvBool("INSTRUMENTSERVER_GUI", false), "enable GUI (unsupported in this build; logged, not enforced)")

	flag.StringVar(&cfg.ListenAt, "listen_at", getEnv("INSTRUMENTSERVER_LISTEN_AT", ""), "extra bind address for the secondary websocket listener")
	flag.StringVar(&cfg.ListenAt, "a", getEnv("INSTRUMENTSERVER_LISTEN_AT", ""), "extra bind address for the secondary websocket listener")

	flag.StringVar(&cfg.ConfigPath, "config", getEnv("INSTRUMENTSERVER_CONFIG", "config.yaml"), "path to the startup YAML config (env: INSTRUMENTSERVER_CONFIG)")
	flag.StringVar(&cfg.ConfigPath, "c", getEnv("INSTRUMENTSERVER_CONFIG", "config.yaml"), "path to the startup YAML config (env: INSTRUMENTSERVER_CONFIG)")

	flag.StringVar(&cfg.InitScript, "init_script", getEnv("INSTRUMENTSERVER_INIT_SCRIPT", ""), "path to a JSON file of instructions run once after startup")
	flag.StringVar(&cfg.InitScript, "i", getEnv("INSTRUMENTSERVER_INIT_SCRIPT", ""), "path to a JSON file of instructions run once after startup")

	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("INSTRUMENTSERVER_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("INSTRUMENTSERVER_LOG_FORMAT", "json"), "log format: json, text")

	flag.StringVar(&cfg.MetricsAddr, "metrics_addr", getEnv("INSTRUMENTSERVER_METRICS_ADDR", ":9090"), "bind address for the /metrics and /health HTTP endpoints (empty disables both)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "show help information")

	flag.Usage = printDetailedHelp
	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `instrumentserver - instrument RPC server

Usage: %s [options]

Options:
`, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  %s --config=/etc/instrumentserver/config.yaml
  %s --config=config.yaml --listen_at=0.0.0.0:8765
  %s --config=config.yaml --log-level=debug --log-format=text

Version: %s
`, os.Args[0], os.Args[0], os.Args[0], Version)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}
