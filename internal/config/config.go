// Package config handles loading and parsing the application's configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
// Struct tags map both TOML and YAML keys onto the same fields.
type Config struct {
	NodeID          string          `toml:"node_id" yaml:"node_id"` // Unique ID for the node in the cluster
	Host            string          `toml:"host" yaml:"host"`
	Port            int             `toml:"port" yaml:"port"`
	LogLevel        string          `toml:"log_level" yaml:"log_level"`
	ShutdownTimeout time.Duration   `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	Raft            RaftConfig      `toml:"raft" yaml:"raft"`
	RateLimit       RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
}

// RaftConfig controls optional replication of writes.
type RaftConfig struct {
	Enabled      bool          `toml:"enabled" yaml:"enabled"`
	Port         int           `toml:"port" yaml:"port"` // Port for Raft's internal communication
	Bootstrap    bool          `toml:"bootstrap" yaml:"bootstrap"`
	JoinAddr     string        `toml:"join_addr" yaml:"join_addr"` // HTTP address of an existing member
	ApplyTimeout time.Duration `toml:"apply_timeout" yaml:"apply_timeout"`
}

// RateLimitConfig configures the request token bucket. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `toml:"rps" yaml:"rps"`
	Burst int     `toml:"burst" yaml:"burst"`
}

// New returns a new Config with default values.
func New() *Config {
	return &Config{
		NodeID:          "",
		Host:            "127.0.0.1",
		Port:            3000,
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Raft: RaftConfig{
			Port:         9080,
			ApplyTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Burst: 20,
		},
	}
}

// Load reads a configuration file from the given path and populates the Config struct.
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
// MOVIEDB_* environment variables are applied on top of the file.
func (c *Config) Load(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return errors.Wrapf(err, "parse %s", path)
		}
	default:
		if _, err := toml.DecodeFile(path, c); err != nil {
			return errors.Wrapf(err, "parse %s", path)
		}
	}
	return c.ApplyEnv()
}

// ApplyEnv overrides fields from MOVIEDB_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("MOVIEDB_NODE_ID"); v != "" {
		c.NodeID = v
	}
	if v := os.Getenv("MOVIEDB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("MOVIEDB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MOVIEDB_RAFT_JOIN_ADDR"); v != "" {
		c.Raft.JoinAddr = v
	}
	if err := envInt("MOVIEDB_PORT", &c.Port); err != nil {
		return err
	}
	if err := envInt("MOVIEDB_RAFT_PORT", &c.Raft.Port); err != nil {
		return err
	}
	if v := os.Getenv("MOVIEDB_RAFT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "invalid MOVIEDB_RAFT_ENABLED value")
		}
		c.Raft.Enabled = enabled
	}
	return nil
}

// Validate reports the first setting that would prevent the node from starting.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if c.RateLimit.RPS < 0 {
		return errors.New("rate_limit.rps must be >= 0")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return errors.New("rate_limit.burst must be > 0 when rate limiting is enabled")
	}
	if !c.Raft.Enabled {
		return nil
	}
	if c.NodeID == "" {
		return errors.New("node_id is required when raft is enabled")
	}
	if c.Raft.Port <= 0 || c.Raft.Port > 65535 {
		return errors.Errorf("raft.port %d out of range", c.Raft.Port)
	}
	if c.Raft.Port == c.Port {
		return errors.New("raft.port must differ from port")
	}
	if c.Raft.ApplyTimeout <= 0 {
		return errors.New("raft.apply_timeout must be > 0")
	}
	if c.Raft.Bootstrap && c.Raft.JoinAddr != "" {
		return errors.New("raft.bootstrap and raft.join_addr are mutually exclusive")
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s value", key)
	}
	*dst = n
	return nil
}
