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

// Package log wraps log/slog with the workcell core's structured field
// conventions: one logger per process, components attach their name and
// entity IDs via With, nothing reaches for a package-level global.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the log output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// LevelTrace is more verbose than Debug: wire-level dumps of node
// request/response bodies.
const LevelTrace = slog.Level(-8)

// Standard field keys, used consistently by the scheduler, engine, node
// client, and control plane so log lines can be correlated by grep/query.
const (
	WorkflowIDKey = "workflow_id"
	StepIDKey     = "step_id"
	NodeKey       = "node"
	ActionKey     = "action"
	ActionIDKey   = "action_id"
	ComponentKey  = "component"
	DurationKey   = "duration_ms"
)

// Config holds logger construction parameters.
type Config struct {
	Level     string
	Format    Format
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns sane production defaults: info level, JSON output.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv overlays WORKCELL_LOG_LEVEL, WORKCELL_LOG_FORMAT, and
// WORKCELL_LOG_SOURCE onto DefaultConfig.
func FromEnv() *Config {
	cfg := DefaultConfig()
	if level := os.Getenv("WORKCELL_LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}
	if format := os.Getenv("WORKCELL_LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}
	if os.Getenv("WORKCELL_LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}
	return cfg
}

// New builds a slog.Logger from cfg, defaulting when cfg is nil.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(cfg.Output, opts)
	default:
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent tags every subsequent log entry with the emitting
// subsystem (e.g. "scheduler", "engine", "nodeclient").
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(ComponentKey, component)
}

// WithWorkflow tags a logger with a workflow's ID.
func WithWorkflow(logger *slog.Logger, workflowID string) *slog.Logger {
	return logger.With(WorkflowIDKey, workflowID)
}

// WithStep tags a logger with a workflow and step ID pair.
func WithStep(logger *slog.Logger, workflowID, stepID string) *slog.Logger {
	return logger.With(WorkflowIDKey, workflowID, StepIDKey, stepID)
}

// WithNode tags a logger with the node a call is directed at.
func WithNode(logger *slog.Logger, node string) *slog.Logger {
	return logger.With(NodeKey, node)
}

// Trace logs at LevelTrace, used for node wire-body dumps that are too
// noisy for Debug.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}
