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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log format 'json', got %q", cfg.Log.Format)
	}
	if cfg.Scheduler.TickInterval != time.Second {
		t.Errorf("expected tick interval 1s, got %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Engine.DefaultStepTimeout != 5*time.Minute {
		t.Errorf("expected default step timeout 5m, got %v", cfg.Engine.DefaultStepTimeout)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected http addr ':8080', got %q", cfg.HTTP.Addr)
	}
	if cfg.State.Backend != "memory" {
		t.Errorf("expected state backend 'memory', got %q", cfg.State.Backend)
	}
	if cfg.Node.MaxRetryAttempts != 5 {
		t.Errorf("expected max retry attempts 5, got %d", cfg.Node.MaxRetryAttempts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}, wantErr: false},
		{name: "bad log level", modify: func(c *Config) { c.Log.Level = "verbose" }, wantErr: true},
		{name: "bad log format", modify: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{name: "zero tick interval", modify: func(c *Config) { c.Scheduler.TickInterval = 0 }, wantErr: true},
		{name: "zero step timeout", modify: func(c *Config) { c.Engine.DefaultStepTimeout = 0 }, wantErr: true},
		{name: "empty http addr", modify: func(c *Config) { c.HTTP.Addr = "" }, wantErr: true},
		{name: "unknown state backend", modify: func(c *Config) { c.State.Backend = "postgres" }, wantErr: true},
		{name: "negative retry attempts", modify: func(c *Config) { c.Node.MaxRetryAttempts = -1 }, wantErr: true},
		{name: "backoff factor below 1", modify: func(c *Config) { c.Node.BackoffFactor = 0.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workcell.yaml")
	yamlContent := `
log:
  level: debug
  format: text
http:
  addr: ":9090"
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got %q", cfg.Log.Level)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("expected http addr ':9090', got %q", cfg.HTTP.Addr)
	}
	// Unset fields fall back to defaults.
	if cfg.Scheduler.TickInterval != time.Second {
		t.Errorf("expected default tick interval to survive partial config, got %v", cfg.Scheduler.TickInterval)
	}
	if cfg.State.Backend != "memory" {
		t.Errorf("expected default state backend to survive partial config, got %q", cfg.State.Backend)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected defaults when no path given, got level %q", cfg.Log.Level)
	}
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("WORKCELL_LOG_LEVEL", "error")
	t.Setenv("WORKCELL_HTTP_ADDR", ":7777")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected env override to set log level 'error', got %q", cfg.Log.Level)
	}
	if cfg.HTTP.Addr != ":7777" {
		t.Errorf("expected env override to set http addr ':7777', got %q", cfg.HTTP.Addr)
	}
}
