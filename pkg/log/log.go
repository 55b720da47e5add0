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

// Package log re-exports internal/log's structured logger for node-adapter
// authors outside this module: a node built against pkg/node can log in
// the same shape workcelld itself does (component/workflow/step/node
// tags) without reaching into an internal package.
package log

import (
	"log/slog"

	internallog "github.com/madsci-lab/workcell/internal/log"
)

// Format selects the log encoding (json, text).
type Format = internallog.Format

const (
	FormatJSON Format = internallog.FormatJSON
	FormatText Format = internallog.FormatText
)

// Well-known structured-log attribute keys, shared so a node's logs line
// up with workcelld's own (internal/log.WorkflowIDKey and friends).
const (
	WorkflowIDKey = internallog.WorkflowIDKey
	StepIDKey     = internallog.StepIDKey
	NodeKey       = internallog.NodeKey
	ActionKey     = internallog.ActionKey
	ActionIDKey   = internallog.ActionIDKey
	ComponentKey  = internallog.ComponentKey
)

// Config holds logger construction parameters.
type Config = internallog.Config

// DefaultConfig returns sane production defaults: info level, JSON output.
func DefaultConfig() *Config { return internallog.DefaultConfig() }

// FromEnv overlays WORKCELL_LOG_LEVEL, WORKCELL_LOG_FORMAT, and
// WORKCELL_LOG_SOURCE onto DefaultConfig.
func FromEnv() *Config { return internallog.FromEnv() }

// New builds a slog.Logger from cfg, defaulting when cfg is nil.
func New(cfg *Config) *slog.Logger { return internallog.New(cfg) }

// WithComponent tags every subsequent log entry with the emitting
// component's name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return internallog.WithComponent(logger, component)
}

// WithNode tags every subsequent log entry with the node it concerns.
func WithNode(logger *slog.Logger, node string) *slog.Logger {
	return internallog.WithNode(logger, node)
}
