package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/toolsforexperiments/instrumentserver/serverr"
)

// InstrumentConfig describes one instrument preloaded at startup, per
// spec.md §6: `instruments: <name>: {type, initialize, address, init:{...},
// pollingRate:{...}, gui:{...}}`. Grounded on
// original_source/instrumentserver/config.py's per-instrument field split
// (SERVERFIELDS/GUIFIELD/pollingRate), minus the GUI-specific merge logic
// that belongs to the out-of-scope graphical front-end (spec.md §1).
type InstrumentConfig struct {
	Type        string             `yaml:"type" json:"type"`
	Initialize  *bool              `yaml:"initialize,omitempty" json:"initialize,omitempty"`
	Address     string             `yaml:"address,omitempty" json:"address,omitempty"`
	Init        map[string]any     `yaml:"init,omitempty" json:"init,omitempty"`
	PollingRate map[string]float64 `yaml:"pollingRate,omitempty" json:"pollingRate,omitempty"`
	GUI         map[string]any     `yaml:"gui,omitempty" json:"gui,omitempty"`
}

// ShouldInitialize reports whether this instrument is created at startup,
// defaulting to true when unset (original_source's SERVERFIELDS default).
func (c InstrumentConfig) ShouldInitialize() bool {
	if c.Initialize == nil {
		return true
	}
	return *c.Initialize
}

// NetworkingConfig is spec.md §6's top-level `networking:` block.
type NetworkingConfig struct {
	ListeningAddress  string `yaml:"listeningAddress,omitempty" json:"listeningAddress,omitempty"`
	ExternalBroadcast string `yaml:"externalBroadcast,omitempty" json:"externalBroadcast,omitempty"`
}

// Config is the full startup configuration.
type Config struct {
	Instruments map[string]InstrumentConfig `yaml:"instruments" json:"instruments"`
	Networking  NetworkingConfig            `yaml:"networking,omitempty" json:"networking,omitempty"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serverr.WrapInternal(err, "config", "Load")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, serverr.Protocolf("config", "Load", "parse %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the config is well-formed enough to bootstrap a server:
// every instrument names a class path, per spec.md §6's requirement that
// configurations live under `instruments:`.
func (c *Config) Validate() error {
	if c.Instruments == nil {
		return serverr.Protocolf("config", "Validate", "missing required 'instruments' field")
	}
	for name, ic := range c.Instruments {
		if ic.Type == "" {
			return serverr.Protocolf("config", "Validate", "instrument %q: missing required 'type' field", name)
		}
	}
	return nil
}

// Clone returns a deep copy of c via JSON round-trip, matching the corpus's
// config.Config.Clone shape.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{Instruments: map[string]InstrumentConfig{}}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SafeConfig guards a Config behind a RWMutex and always hands callers a
// deep copy, so holding onto a returned *Config never aliases
// concurrently-mutated state. Grounded on the corpus's config.SafeConfig.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg (or an empty Config if nil).
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{Instruments: map[string]InstrumentConfig{}}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update validates and atomically replaces the configuration.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return serverr.Protocolf("config", "Update", "config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
