// Copyright 2024 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package config loads the daemon's configuration surface:
// a YAML document, overridden by DEBSHREW_-prefixed environment
// variables, overridden in turn by command-line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source holds the upstream metashrew RPC connection parameters.
type Source struct {
	URL            string `yaml:"url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryDelayMS   int    `yaml:"retry_delay_ms"`
}

// Transform points at the guest script implementing process_block/rollback
// and bounds how long a single invocation may run.
type Transform struct {
	Path     string `yaml:"path"`
	BudgetMS int    `yaml:"budget_ms"`
}

// Sink selects and configures the downstream record sink.
type Sink struct {
	Type    string            `yaml:"type"` // "console" or "file"
	Options map[string]string `yaml:"options"`
}

// Log configures the daemon's own structured log output, independent of
// the Sink (which carries CDC records, not log lines).
type Log struct {
	// File is a path to a lumberjack-rotated log file. Empty means log
	// to stderr only.
	File string `yaml:"file"`
}

// Status configures the operational /status and /metrics HTTP surface.
type Status struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the full configuration surface of the daemon.
type Config struct {
	Source         Source    `yaml:"source"`
	Transform      Transform `yaml:"transform"`
	Sink           Sink      `yaml:"sink"`
	Log            Log       `yaml:"log"`
	Status         Status    `yaml:"status"`
	CacheSize      int       `yaml:"cache_size"`
	StartHeight    uint32    `yaml:"start_height"`
	PollIntervalMS int       `yaml:"poll_interval_ms"`
	LogLevel       string    `yaml:"log_level"`
}

// Default returns a Config populated with the daemon's built-in defaults.
func Default() *Config {
	return &Config{
		Source: Source{
			TimeoutSeconds: 30,
			MaxRetries:     3,
			RetryDelayMS:   1000,
		},
		Transform:      Transform{BudgetMS: 5000},
		Sink:           Sink{Type: "console"},
		Status:         Status{ListenAddr: ":6060"},
		CacheSize:      6,
		StartHeight:    0,
		PollIntervalMS: 1000,
		LogLevel:       "info",
	}
}

// Load reads path as YAML on top of Default and applies DEBSHREW_-prefixed
// environment overrides. It does not validate the result; callers run
// Validate once any further overrides are applied. An empty path skips
// the file and starts from defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg, os.Environ())
	return cfg, nil
}

// applyEnvOverrides mutates cfg from DEBSHREW_-prefixed environment
// variables, with "_" marking nested field boundaries, e.g.
// DEBSHREW_SOURCE_URL overrides source.url, DEBSHREW_CACHE_SIZE overrides
// cache_size.
func applyEnvOverrides(cfg *Config, environ []string) {
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, "DEBSHREW_") {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(k, "DEBSHREW_"))
		setByPath(cfg, key, v)
	}
}

func setByPath(cfg *Config, key, v string) {
	switch key {
	case "source_url":
		cfg.Source.URL = v
	case "source_username":
		cfg.Source.Username = v
	case "source_password":
		cfg.Source.Password = v
	case "source_timeout_seconds":
		setInt(&cfg.Source.TimeoutSeconds, v)
	case "source_max_retries":
		setInt(&cfg.Source.MaxRetries, v)
	case "source_retry_delay_ms":
		setInt(&cfg.Source.RetryDelayMS, v)
	case "transform_path":
		cfg.Transform.Path = v
	case "transform_budget_ms":
		setInt(&cfg.Transform.BudgetMS, v)
	case "sink_type":
		cfg.Sink.Type = v
	case "log_file":
		cfg.Log.File = v
	case "status_enabled":
		setBool(&cfg.Status.Enabled, v)
	case "status_listen_addr":
		cfg.Status.ListenAddr = v
	case "cache_size":
		setInt(&cfg.CacheSize, v)
	case "start_height":
		var i int
		setInt(&i, v)
		cfg.StartHeight = uint32(i)
	case "poll_interval_ms":
		setInt(&cfg.PollIntervalMS, v)
	case "log_level":
		cfg.LogLevel = v
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, v string) {
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

// Validate enforces the required-field and range invariants on Config.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("config: source.url is required")
	}
	if c.Transform.Path == "" {
		return fmt.Errorf("config: transform.path is required")
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("config: cache_size must be >= 1, got %d", c.CacheSize)
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: source.timeout_seconds must be > 0, got %d", c.Source.TimeoutSeconds)
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("config: source.max_retries must be >= 0, got %d", c.Source.MaxRetries)
	}
	if c.Transform.BudgetMS < 0 {
		return fmt.Errorf("config: transform.budget_ms must be >= 0, got %d", c.Transform.BudgetMS)
	}
	switch c.Sink.Type {
	case "console", "file":
	default:
		return fmt.Errorf("config: sink.type must be 'console' or 'file', got %q", c.Sink.Type)
	}
	if c.Status.Enabled && c.Status.ListenAddr == "" {
		return fmt.Errorf("config: status.listen_addr is required when status.enabled is true")
	}
	return nil
}

// Timeout returns source.timeout_seconds as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// RetryDelay returns source.retry_delay_ms as a time.Duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Source.RetryDelayMS) * time.Millisecond
}

// TransformBudget returns transform.budget_ms as a time.Duration. Zero
// means no per-invocation time limit.
func (c *Config) TransformBudget() time.Duration {
	return time.Duration(c.Transform.BudgetMS) * time.Millisecond
}

// PollInterval returns poll_interval_ms as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}
