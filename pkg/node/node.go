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

package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/result"
)

// pendingAction tracks one in-flight or completed action's lifecycle.
type pendingAction struct {
	actionName string
	args       map[string]any
	files      map[string]string
	started    bool
	result     *result.ActionResult
}

// Node is the server-side runtime every instrument adapter constructs:
// a registry of actions plus the mutable status/state the scheduler and
// engine poll.
type Node struct {
	mu      sync.RWMutex
	clock   id.Clock
	logger  *slog.Logger
	info    Info
	status  Status
	state   map[string]any
	actions map[string]registeredAction

	pending map[id.ID]*pendingAction

	adminHandlers map[AdminCommand]func(ctx context.Context) error

	statusRefresh func(ctx context.Context, current Status) Status
	stateRefresh  func(ctx context.Context, current map[string]any) map[string]any
}

// New constructs a Node identified by nodeName/moduleName/version. clock
// and logger default to production implementations when nil.
func New(nodeName, moduleName, moduleVersion string, clock id.Clock, logger *slog.Logger) *Node {
	if clock == nil {
		clock = id.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		clock:  clock,
		logger: logger,
		info: Info{
			NodeName:      nodeName,
			ModuleName:    moduleName,
			ModuleVersion: moduleVersion,
			Capabilities:  DefaultCapabilities(),
			Actions:       make(map[string]ActionDefinition),
			AdminCommands: nil,
		},
		status:        Status{Initializing: true, RunningActions: []id.ID{}},
		state:         make(map[string]any),
		actions:       make(map[string]registeredAction),
		pending:       make(map[id.ID]*pendingAction),
		adminHandlers: make(map[AdminCommand]func(context.Context) error),
	}
}

// Ready flips the node from initializing to ready for dispatch. Adapters
// call this once their instrument connection is established.
func (n *Node) Ready() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status.Initializing = false
	n.status.Ready = true
}

// SetStatusRefresher installs the periodic status-refresh hook. refresh
// receives the current status and returns the updated one; it must not
// block indefinitely.
func (n *Node) SetStatusRefresher(refresh func(ctx context.Context, current Status) Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusRefresh = refresh
}

// SetStateRefresher installs the periodic state-refresh hook.
func (n *Node) SetStateRefresher(refresh func(ctx context.Context, current map[string]any) map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stateRefresh = refresh
}

// Info returns a copy of the node's declared identity and action schema.
func (n *Node) Info() Info {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.info
}

// Status returns a copy of the node's current status.
func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// State returns a copy of the node's free-form instrument state.
func (n *Node) State() map[string]any {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]any, len(n.state))
	for k, v := range n.state {
		out[k] = v
	}
	return out
}

// SetConfig applies a partial config update, accepting every key.
func (n *Node) SetConfig(values map[string]any) SetConfigResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	resp := SetConfigResponse{Accepted: make(map[string]bool, len(values))}
	if n.info.ConfigValues == nil {
		n.info.ConfigValues = make(map[string]any)
	}
	for k, v := range values {
		n.info.ConfigValues[k] = v
		resp.Accepted[k] = true
	}
	n.status.WaitingForConfig = nil
	return resp
}

// RunAdmin invokes the handler registered for cmd, failing with
// AdminCommandNotImplemented if none was registered or the node doesn't
// declare support for it.
func (n *Node) RunAdmin(ctx context.Context, cmd AdminCommand) AdminCommandResponse {
	n.mu.RLock()
	handler, ok := n.adminHandlers[cmd]
	n.mu.RUnlock()

	if !ok {
		return AdminCommandResponse{
			Success: false,
			Errors: []*result.Error{
				result.NewError("AdminCommandNotImplemented", fmt.Sprintf("node does not implement admin command %q", cmd)),
			},
		}
	}

	if err := handler(ctx); err != nil {
		n.recordError("AdminCommandFailed", err.Error())
		return AdminCommandResponse{
			Success: false,
			Message: err.Error(),
			Errors:  []*result.Error{result.NewError("AdminCommandFailed", err.Error())},
		}
	}
	return AdminCommandResponse{Success: true}
}

// RefreshStatus runs the installed status-refresh hook once, if any.
func (n *Node) RefreshStatus(ctx context.Context) {
	n.mu.Lock()
	refresh := n.statusRefresh
	current := n.status
	n.mu.Unlock()
	if refresh == nil {
		return
	}

	updated := n.safeStatusRefresh(ctx, refresh, current)

	n.mu.Lock()
	updated.RunningActions = n.status.RunningActions
	updated.Errored = updated.Errored || n.status.Errored
	n.status = updated
	n.mu.Unlock()
}

func (n *Node) safeStatusRefresh(ctx context.Context, refresh func(context.Context, Status) Status, current Status) (out Status) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("status refresher panicked", "recover", r)
			out = current
		}
	}()
	return refresh(ctx, current)
}

// RefreshState runs the installed state-refresh hook once, if any.
func (n *Node) RefreshState(ctx context.Context) {
	n.mu.Lock()
	refresh := n.stateRefresh
	current := n.state
	n.mu.Unlock()
	if refresh == nil {
		return
	}

	updated := n.safeStateRefresh(ctx, refresh, current)

	n.mu.Lock()
	n.state = updated
	n.mu.Unlock()
}

func (n *Node) safeStateRefresh(ctx context.Context, refresh func(context.Context, map[string]any) map[string]any, current map[string]any) (out map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("state refresher panicked", "recover", r)
			out = current
		}
	}()
	return refresh(ctx, current)
}

// DefaultRefreshInterval is the tick interval the periodic status/state
// refreshers run at unless the adapter overrides it.
const DefaultRefreshInterval = 5 * time.Second

// RunPeriodicHandlers runs the status and state refresh hooks on a shared
// ticker until ctx is cancelled. Refresher panics are recovered and
// logged; the ticker keeps running. Adapters typically call this on a
// dedicated goroutine right after Ready.
func (n *Node) RunPeriodicHandlers(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.RefreshStatus(ctx)
			n.RefreshState(ctx)
		}
	}
}

func (n *Node) recordError(errType, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status.Errored = true
	n.status.Errors = append(n.status.Errors, result.NewError(errType, message))
}
