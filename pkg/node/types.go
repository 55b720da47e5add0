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

// Package node implements the server side of the node runtime contract:
// action registration, the three-phase action lifecycle
// (create, upload, start), admin commands, and the periodic status/state
// refresh tickers every node runs. Node adapters import this package to
// expose a uniform surface the scheduler and engine can dispatch against.
package node

import (
	"time"

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/result"
)

// AdminCommand is one of the fixed vocabulary of operational signals a
// node may support.
type AdminCommand string

const (
	AdminReset      AdminCommand = "reset"
	AdminShutdown   AdminCommand = "shutdown"
	AdminPause      AdminCommand = "pause"
	AdminResume     AdminCommand = "resume"
	AdminCancel     AdminCommand = "cancel"
	AdminLock       AdminCommand = "lock"
	AdminUnlock     AdminCommand = "unlock"
	AdminSafetyStop AdminCommand = "safety_stop"
)

// AllAdminCommands enumerates the full fixed vocabulary, used by the
// control plane to reject unknown admin command names.
var AllAdminCommands = []AdminCommand{
	AdminReset, AdminShutdown, AdminPause, AdminResume,
	AdminCancel, AdminLock, AdminUnlock, AdminSafetyStop,
}

// ArgSpec declares one action argument for wire-level introspection.
// Nothing but this declarative shape crosses the wire; no host-language
// reflection is sent.
type ArgSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// FileSpec declares one file argument an action accepts.
type FileSpec struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// ResultSpec declares one named entry an action's result may contain,
// used by data_labels promotion to know whether a key
// is expected to be a JSON value or a file.
type ResultSpec struct {
	Name        string `json:"name"`
	IsFile      bool   `json:"is_file"`
	Description string `json:"description,omitempty"`
}

// ActionDefinition is the declarative schema for one registered action.
type ActionDefinition struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Args        []ArgSpec    `json:"args,omitempty"`
	Files       []FileSpec   `json:"files,omitempty"`
	Results     []ResultSpec `json:"result_definitions,omitempty"`
	Blocking    bool         `json:"blocking"`
}

func (a *ActionDefinition) arg(name string) (ArgSpec, bool) {
	for _, spec := range a.Args {
		if spec.Name == name {
			return spec, true
		}
	}
	return ArgSpec{}, false
}

func (a *ActionDefinition) file(name string) (FileSpec, bool) {
	for _, spec := range a.Files {
		if spec.Name == name {
			return spec, true
		}
	}
	return FileSpec{}, false
}

// Capabilities advertises which optional node-client operations a node
// supports.
type Capabilities struct {
	GetInfo           bool `json:"get_info"`
	GetStatus         bool `json:"get_status"`
	GetState          bool `json:"get_state"`
	SendAction        bool `json:"send_action"`
	GetActionResult   bool `json:"get_action_result"`
	GetActionHistory  bool `json:"get_action_history"`
	ActionFiles       bool `json:"action_files"`
	SendAdminCommands bool `json:"send_admin_commands"`
	SetConfig         bool `json:"set_config"`
	GetLog            bool `json:"get_log"`
	GetResources      bool `json:"get_resources"`
}

// DefaultCapabilities returns the capability set a three-phase REST node
// implements out of the box.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		GetInfo: true, GetStatus: true, GetState: true,
		SendAction: true, GetActionResult: true, GetActionHistory: true,
		ActionFiles: true, SendAdminCommands: true, SetConfig: true, GetLog: true,
	}
}

// Info identifies a node and declares its capabilities, registered
// actions, and admin commands.
type Info struct {
	NodeName      string                      `json:"node_name"`
	ModuleName    string                      `json:"module_name"`
	ModuleVersion string                      `json:"module_version"`
	Capabilities  Capabilities                `json:"capabilities"`
	Actions       map[string]ActionDefinition `json:"actions"`
	AdminCommands []AdminCommand              `json:"admin_commands"`
	ConfigValues  map[string]any              `json:"config_values,omitempty"`
}

// SupportsAdmin reports whether cmd is in the node's declared admin
// command set.
func (i *Info) SupportsAdmin(cmd AdminCommand) bool {
	for _, c := range i.AdminCommands {
		if c == cmd {
			return true
		}
	}
	return false
}

// Status is the live readiness/health snapshot a node reports.
type Status struct {
	Ready            bool            `json:"ready"`
	Busy             bool            `json:"busy"`
	Initializing     bool            `json:"initializing"`
	Paused           bool            `json:"paused"`
	Locked           bool            `json:"locked"`
	Stopped          bool            `json:"stopped"`
	Errored          bool            `json:"errored"`
	RunningActions   []id.ID         `json:"running_actions"`
	WaitingForConfig []string        `json:"waiting_for_config,omitempty"`
	Errors           []*result.Error `json:"errors,omitempty"`
}

// Description derives a human-readable summary of the dominant status
// flag.
func (s *Status) Description() string {
	switch {
	case s.Errored:
		return "errored"
	case s.Stopped:
		return "stopped"
	case s.Locked:
		return "locked"
	case s.Paused:
		return "paused"
	case s.Initializing:
		return "initializing"
	case s.Busy:
		return "busy"
	case s.Ready:
		return "ready"
	default:
		return "not ready"
	}
}

// Dispatchable reports whether the scheduler may dispatch a new action to
// a node in this state.
func (s *Status) Dispatchable() bool {
	return s.Ready && !s.Busy && !s.Locked && !s.Errored && !s.Stopped
}

// SetConfigResponse is returned by POST /config: per-key accept/reject
// plus whether a reset is required before the change takes effect.
type SetConfigResponse struct {
	Accepted      map[string]bool   `json:"accepted"`
	RejectReasons map[string]string `json:"reject_reasons,omitempty"`
	ResetRequired bool              `json:"reset_required"`
}

// AdminCommandResponse is returned by POST /admin/{command}.
type AdminCommandResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Errors  []*result.Error `json:"errors,omitempty"`
}

// Event is one entry in a node's log, keyed by event ID over GET /log.
type Event struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
}
