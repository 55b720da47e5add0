// Copyright 2025 The MADSci Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the workcell daemon's YAML configuration, applies
// sensible defaults to a minimal file, overrides from environment
// variables, and validates the result before the daemon wires its
// components together.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the complete workcelld configuration.
type Config struct {
	Log       LogConfig        `yaml:"log"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Engine    EngineConfig     `yaml:"engine"`
	HTTP      HTTPConfig       `yaml:"http"`
	State     StateConfig      `yaml:"state"`
	Node      NodeClientConfig `yaml:"node"`
}

// LogConfig configures the daemon's structured logging.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	// Environment: WORKCELL_LOG_LEVEL
	Level string `yaml:"level"`

	// Format is the output format (json, text).
	// Environment: WORKCELL_LOG_FORMAT
	Format string `yaml:"format"`

	// AddSource adds source file and line information to log records.
	AddSource bool `yaml:"add_source"`
}

// SchedulerConfig configures the tick loop.
type SchedulerConfig struct {
	// TickInterval is how often the scheduler evaluates the queue.
	// Environment: WORKCELL_SCHEDULER_TICK_INTERVAL
	TickInterval time.Duration `yaml:"tick_interval"`
}

// EngineConfig configures step dispatch.
type EngineConfig struct {
	// DefaultStepTimeout applies to any step that doesn't set its own
	// Timeout.
	// Environment: WORKCELL_ENGINE_DEFAULT_TIMEOUT
	DefaultStepTimeout time.Duration `yaml:"default_step_timeout"`
}

// HTTPConfig configures the control-plane listener.
type HTTPConfig struct {
	// Addr is the TCP address to listen on (e.g., ":8080").
	// Environment: WORKCELL_HTTP_ADDR
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StateConfig configures the state handler.
type StateConfig struct {
	// Backend selects the persistence implementation: "memory" is the
	// only one this core ships; other backends are a drop-in behind the
	// same Backend interface.
	Backend string `yaml:"backend"`

	// ArchiveRetention is how long a terminal workflow stays in the
	// active set before Archive moves it out.
	ArchiveRetention time.Duration `yaml:"archive_retention"`

	// ArchiveInterval is how often the archival sweep runs.
	ArchiveInterval time.Duration `yaml:"archive_interval"`

	// SnapshotPath is where the state handler's durable snapshot is
	// written. Empty disables snapshotting; restart recovery then has
	// nothing to replay.
	// Environment: WORKCELL_STATE_SNAPSHOT_PATH
	SnapshotPath string `yaml:"snapshot_path"`

	// SnapshotInterval is how often the snapshot is rewritten.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// NodeClientConfig configures the HTTP node client's retry and poll
// behavior.
type NodeClientConfig struct {
	// MaxRetryAttempts bounds the node client's retry loop (Open Question
	// decision: configuration, not an unbounded loop).
	MaxRetryAttempts int `yaml:"max_retry_attempts"`

	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// BackoffFactor multiplies the delay after each attempt.
	BackoffFactor float64 `yaml:"backoff_factor"`

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// StatusPollInterval is how often the daemon refreshes each
	// registered node's status in the registry. The scheduler's
	// readiness check reads the last polled status.
	// Environment: WORKCELL_NODE_STATUS_POLL_INTERVAL
	StatusPollInterval time.Duration `yaml:"status_poll_interval"`
}

// Default returns a Config with sensible defaults, mirroring what a
// freshly installed workcell would run with no config file at all.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Scheduler: SchedulerConfig{
			TickInterval: time.Second,
		},
		Engine: EngineConfig{
			DefaultStepTimeout: 5 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		State: StateConfig{
			Backend:          "memory",
			ArchiveRetention: 24 * time.Hour,
			ArchiveInterval:  time.Hour,
			SnapshotInterval: 30 * time.Second,
		},
		Node: NodeClientConfig{
			MaxRetryAttempts:   5,
			InitialBackoff:     200 * time.Millisecond,
			BackoffFactor:      2.0,
			MaxBackoff:         10 * time.Second,
			StatusPollInterval: 5 * time.Second,
		},
	}
}

// Load reads configuration from a YAML file at path (when path is
// non-empty; a file that cannot be read is an error), applies defaults to
// any zero-valued fields, overrides from environment variables, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &wcerrors.ConfigError{Key: "config_file", Reason: fmt.Sprintf("failed to load from %s", path), Cause: err}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &wcerrors.ConfigError{Key: "validation", Reason: "configuration validation failed", Cause: err}
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config YAML: %w", err)
	}
	return nil
}

// applyDefaults fills zero-valued fields so a minimal config file (e.g.
// just an http.addr override) still produces a runnable Config.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Scheduler.TickInterval == 0 {
		c.Scheduler.TickInterval = d.Scheduler.TickInterval
	}
	if c.Engine.DefaultStepTimeout == 0 {
		c.Engine.DefaultStepTimeout = d.Engine.DefaultStepTimeout
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = d.HTTP.Addr
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = d.HTTP.ShutdownTimeout
	}
	if c.State.Backend == "" {
		c.State.Backend = d.State.Backend
	}
	if c.State.ArchiveRetention == 0 {
		c.State.ArchiveRetention = d.State.ArchiveRetention
	}
	if c.State.ArchiveInterval == 0 {
		c.State.ArchiveInterval = d.State.ArchiveInterval
	}
	if c.State.SnapshotInterval == 0 {
		c.State.SnapshotInterval = d.State.SnapshotInterval
	}
	if c.Node.MaxRetryAttempts == 0 {
		c.Node.MaxRetryAttempts = d.Node.MaxRetryAttempts
	}
	if c.Node.InitialBackoff == 0 {
		c.Node.InitialBackoff = d.Node.InitialBackoff
	}
	if c.Node.BackoffFactor == 0 {
		c.Node.BackoffFactor = d.Node.BackoffFactor
	}
	if c.Node.MaxBackoff == 0 {
		c.Node.MaxBackoff = d.Node.MaxBackoff
	}
	if c.Node.StatusPollInterval == 0 {
		c.Node.StatusPollInterval = d.Node.StatusPollInterval
	}
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("WORKCELL_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("WORKCELL_LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("WORKCELL_LOG_SOURCE"); v != "" {
		c.Log.AddSource = v == "1" || strings.ToLower(v) == "true"
	}
	if v := os.Getenv("WORKCELL_SCHEDULER_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.TickInterval = d
		}
	}
	if v := os.Getenv("WORKCELL_ENGINE_DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Engine.DefaultStepTimeout = d
		}
	}
	if v := os.Getenv("WORKCELL_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("WORKCELL_STATE_BACKEND"); v != "" {
		c.State.Backend = v
	}
	if v := os.Getenv("WORKCELL_STATE_SNAPSHOT_PATH"); v != "" {
		c.State.SnapshotPath = v
	}
	if v := os.Getenv("WORKCELL_NODE_MAX_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Node.MaxRetryAttempts = n
		}
	}
	if v := os.Getenv("WORKCELL_NODE_STATUS_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Node.StatusPollInterval = d
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}
	if c.Scheduler.TickInterval <= 0 {
		errs = append(errs, "scheduler.tick_interval must be positive")
	}
	if c.Engine.DefaultStepTimeout <= 0 {
		errs = append(errs, "engine.default_step_timeout must be positive")
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, "http.addr must not be empty")
	}
	validBackends := map[string]bool{"memory": true}
	if !validBackends[c.State.Backend] {
		errs = append(errs, fmt.Sprintf("state.backend must be one of [memory], got %q", c.State.Backend))
	}
	if c.Node.MaxRetryAttempts < 0 {
		errs = append(errs, "node.max_retry_attempts must be non-negative")
	}
	if c.Node.BackoffFactor < 1.0 {
		errs = append(errs, "node.backoff_factor must be >= 1.0")
	}
	if c.Node.StatusPollInterval <= 0 {
		errs = append(errs, "node.status_poll_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
