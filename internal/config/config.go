// Package config holds the server's two owned resources
// (BinaryMonitorServer, BinaryMonitorServerAddress — spec.md §6.2, §9
// non-goals) plus the optional YAML overlay and address parsing that
// support them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full set of settings the server and its CLI accept.
// Mirrors original_source's resources_int/resources_string tables
// (BinaryMonitorServer, BinaryMonitorServerAddress) plus fields this
// rewrite's CLI/config file layer adds on top (log verbosity, autostart
// defaults).
type Config struct {
	BinaryMonitorServer        bool   `yaml:"binary_monitor_server"`
	BinaryMonitorServerAddress string `yaml:"binary_monitor_server_address"`

	Verbose bool   `yaml:"verbose"`
	Quiet   bool   `yaml:"quiet"`
	LogFile string `yaml:"log_file"`

	AutostartProgram string `yaml:"autostart_program"`
	AutostartRun     bool   `yaml:"autostart_run"`
}

// Default returns the resource defaults from original_source.
func Default() *Config {
	return &Config{
		BinaryMonitorServer:        false,
		BinaryMonitorServerAddress: DefaultAddress,
	}
}

// LoadFile reads a YAML overlay (the optional `--config galago.yaml` CLI
// flag) on top of the defaults. Missing fields in the file simply leave
// the default in place, since yaml.Unmarshal only overwrites keys it
// finds.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Address parses the configured BinaryMonitorServerAddress resource.
func (c *Config) Address() (*Address, error) {
	return ParseAddress(c.BinaryMonitorServerAddress)
}
