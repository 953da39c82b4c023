// Package config ties together the configuration of every component
// into one TOML-backed document.
package config

import (
	"bytes"
	"os"

	"github.com/BurntSushi/toml"

	"code.halcyonprotocol.io/halcyon/core/protocol"
	"code.halcyonprotocol.io/halcyon/metrics"
)

// Config is the root configuration.
type Config struct {
	Protocol protocol.Config `group:"Protocol" namespace:"protocol"`
	Metrics  metrics.Config  `group:"Metrics"  namespace:"metrics"`
}

// NewDefaultConfig returns a root configuration with every component at
// its defaults.
func NewDefaultConfig() Config {
	return Config{
		Protocol: protocol.NewDefaultConfig(),
		Metrics:  metrics.NewDefaultConfig(),
	}
}

// Read loads a root configuration from a TOML file. Fields missing from
// the file keep their default values.
func Read(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := toml.Decode(string(buf), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write serialises a root configuration to a TOML file.
func Write(path string, cfg Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
