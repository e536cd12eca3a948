package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete dashboard configuration
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Ledger  LedgerConfig  `json:"ledger" yaml:"ledger"`
	Desk    DeskConfig    `json:"desk" yaml:"desk"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// StorageConfig selects where API credentials are kept.
type StorageConfig struct {
	Type string `json:"type" yaml:"type"` // "sqlite" or "memory"
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// JournalConfig controls the activity log and its optional durable copy.
type JournalConfig struct {
	MaxEntries int    `json:"max_entries" yaml:"max_entries"`
	Sink       string `json:"sink" yaml:"sink"` // "none", "sqlite" or "csv"
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
}

type LedgerConfig struct {
	MaxOrders int `json:"max_orders" yaml:"max_orders"`
}

// DeskConfig contains the simulated fulfillment parameters
type DeskConfig struct {
	MinLatency  string `json:"min_latency" yaml:"min_latency"` // e.g. "1500ms"
	MaxLatency  string `json:"max_latency" yaml:"max_latency"`
	MaxInFlight int    `json:"max_in_flight" yaml:"max_in_flight"`
}

// Latency parses the latency window.
func (d DeskConfig) Latency() (lo, hi time.Duration, err error) {
	if d.MinLatency != "" {
		if lo, err = time.ParseDuration(d.MinLatency); err != nil {
			return 0, 0, fmt.Errorf("desk.min_latency: %w", err)
		}
	}
	if d.MaxLatency != "" {
		if hi, err = time.ParseDuration(d.MaxLatency); err != nil {
			return 0, 0, fmt.Errorf("desk.max_latency: %w", err)
		}
	}
	return lo, hi, nil
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "text" or "json"
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration as YAML or JSON depending on the extension
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path required for sqlite storage")
		}
	default:
		return fmt.Errorf("storage.type must be 'sqlite' or 'memory'")
	}
	if c.Journal.MaxEntries < 0 {
		return fmt.Errorf("journal.max_entries must not be negative")
	}
	switch c.Journal.Sink {
	case "", "none":
	case "sqlite", "csv":
		if c.Journal.Path == "" {
			return fmt.Errorf("journal.path required for %s sink", c.Journal.Sink)
		}
	default:
		return fmt.Errorf("journal.sink must be 'none', 'sqlite' or 'csv'")
	}
	if c.Ledger.MaxOrders < 0 {
		return fmt.Errorf("ledger.max_orders must not be negative")
	}
	lo, hi, err := c.Desk.Latency()
	if err != nil {
		return err
	}
	if lo < 0 || hi < lo {
		return fmt.Errorf("desk latency window must satisfy 0 <= min_latency <= max_latency")
	}
	if c.Desk.MaxInFlight < 0 {
		return fmt.Errorf("desk.max_in_flight must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Storage: StorageConfig{
			Type: "sqlite",
			Path: "./tradedesk.db",
		},
		Journal: JournalConfig{
			Sink: "none",
		},
		Desk: DeskConfig{
			MinLatency: "1500ms",
			MaxLatency: "2500ms",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
