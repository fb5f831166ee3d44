// Package config loads and validates the relayer's TOML configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/crosschain/relayd/ibc"
)

// Duration is a time.Duration with TOML text (un)marshalling.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// GlobalConfig holds process-wide settings.
type GlobalConfig struct {
	LogLevel string `toml:"log_level"`
}

// TelemetryConfig configures the optional metrics endpoint.
type TelemetryConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// ChainConfig holds the per-chain endpoint settings.
type ChainConfig struct {
	ID           ibc.ChainID `toml:"id"`
	RPCAddr      string      `toml:"rpc_addr"`
	RPCTimeout   Duration    `toml:"rpc_timeout"`
	PollInterval Duration    `toml:"poll_interval"`
}

// Config is the root of the configuration file.
type Config struct {
	Global    GlobalConfig    `toml:"global"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Chains    []ChainConfig   `toml:"chains"`
}

const (
	defaultRPCTimeout   = 10 * time.Second
	defaultPollInterval = time.Second
)

// Load reads, decodes and validates the configuration at path.
func Load(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown field %q", path, undecoded[0].String())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = "info"
	}
	for i := range c.Chains {
		if c.Chains[i].RPCTimeout == 0 {
			c.Chains[i].RPCTimeout = Duration(defaultRPCTimeout)
		}
		if c.Chains[i].PollInterval == 0 {
			c.Chains[i].PollInterval = Duration(defaultPollInterval)
		}
	}
}

// Validate checks chain identifiers and endpoint addresses.
func (c *Config) Validate() error {
	seen := make(map[ibc.ChainID]struct{}, len(c.Chains))
	for _, chain := range c.Chains {
		if err := chain.ID.Validate(); err != nil {
			return fmt.Errorf("chain id: %w", err)
		}
		if _, ok := seen[chain.ID]; ok {
			return fmt.Errorf("duplicate chain id %q", chain.ID)
		}
		seen[chain.ID] = struct{}{}
		if chain.RPCAddr == "" {
			return fmt.Errorf("chain %s: rpc_addr is required", chain.ID)
		}
	}
	return nil
}

// FindChain returns the configuration for the given chain id, or nil when
// the chain is not configured.
func (c *Config) FindChain(id ibc.ChainID) *ChainConfig {
	for i := range c.Chains {
		if c.Chains[i].ID == id {
			return &c.Chains[i]
		}
	}
	return nil
}

// HasChain reports whether the chain id appears in the configuration.
func (c *Config) HasChain(id ibc.ChainID) bool { return c.FindChain(id) != nil }
