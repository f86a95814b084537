package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolsforexperiments/instrumentserver/config"
	"github.com/toolsforexperiments/instrumentserver/drivers/dummy"
	"github.com/toolsforexperiments/instrumentserver/instrument"
)

func TestBootstrapRegistry_CreatesDefaultParameterManager(t *testing.T) {
	registry := instrument.NewRegistry()
	require.NoError(t, bootstrapRegistry(registry, &config.Config{Instruments: map[string]config.InstrumentConfig{}}))

	assert.Contains(t, registry.List(), "parameter_manager")
}

func TestBootstrapRegistry_InitializesConfiguredInstruments(t *testing.T) {
	registry := instrument.NewRegistry()
	cfg := &config.Config{Instruments: map[string]config.InstrumentConfig{
		"dmm": {Type: dummy.MultimeterClassPath},
	}}
	require.NoError(t, bootstrapRegistry(registry, cfg))

	assert.Contains(t, registry.List(), "dmm")
}

func TestBootstrapRegistry_SkipsInstrumentsWithInitializeFalse(t *testing.T) {
	registry := instrument.NewRegistry()
	skip := false
	cfg := &config.Config{Instruments: map[string]config.InstrumentConfig{
		"vna": {Type: dummy.VNAClassPath, Initialize: &skip},
	}}
	require.NoError(t, bootstrapRegistry(registry, cfg))

	assert.NotContains(t, registry.List(), "vna")
}

func TestServerConfigFrom_UsesNetworkingOverrideWhenSet(t *testing.T) {
	cliCfg := &CLIConfig{Port: 5555, ListenAt: "0.0.0.0:8765"}
	cfg := &config.Config{Networking: config.NetworkingConfig{ListeningAddress: "10.0.0.5:5556"}}

	serverCfg := serverConfigFrom(cliCfg, cfg)
	assert.Equal(t, "nats://10.0.0.5:5556", serverCfg.URL)
	assert.Equal(t, "0.0.0.0:8765", serverCfg.ListenAt)
}

func TestServerConfigFrom_FallsBackToPortWhenNoNetworkingOverride(t *testing.T) {
	cliCfg := &CLIConfig{Port: 5555}
	cfg := &config.Config{}

	serverCfg := serverConfigFrom(cliCfg, cfg)
	assert.Equal(t, "nats://127.0.0.1:5555", serverCfg.URL)
}

func TestValidateFlags_RejectsBadLogLevel(t *testing.T) {
	cfg := &CLIConfig{ConfigPath: writeTempConfig(t), LogLevel: "verbose", LogFormat: "json", Port: 5555}
	assert.Error(t, validateFlags(cfg))
}

func TestValidateFlags_RejectsBadPort(t *testing.T) {
	cfg := &CLIConfig{ConfigPath: writeTempConfig(t), LogLevel: "info", LogFormat: "json", Port: 70000}
	assert.Error(t, validateFlags(cfg))
}

func writeTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instruments:\n  dmm:\n    type: dummy.Multimeter\n"), 0o644))
	return path
}
