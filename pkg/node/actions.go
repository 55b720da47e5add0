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

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/result"
)

// CreateAction validates argument presence and records
// a pending action, returning its ID. It does not run the handler.
func (n *Node) CreateAction(actionName string, args map[string]any) (id.ID, *result.ActionResult) {
	n.mu.Lock()
	defer n.mu.Unlock()

	reg, ok := n.actions[actionName]
	if !ok {
		actionID := id.New(n.clock)
		return actionID, &result.ActionResult{
			ActionID: actionID,
			Status:   result.ActionStatusFailed,
			Errors:   []*result.Error{result.NewError("ActionNotImplemented", fmt.Sprintf("action %q is not registered", actionName))},
		}
	}

	for _, spec := range reg.def.Args {
		if !spec.Required {
			continue
		}
		if _, present := args[spec.Name]; !present {
			actionID := id.New(n.clock)
			return actionID, &result.ActionResult{
				ActionID: actionID,
				Status:   result.ActionStatusFailed,
				Errors:   []*result.Error{result.NewError("ActionMissingArgument", fmt.Sprintf("action %q missing required argument %q", actionName, spec.Name))},
			}
		}
	}

	actionID := id.New(n.clock)
	n.pending[actionID] = &pendingAction{
		actionName: actionName,
		args:       args,
		files:      make(map[string]string),
	}
	return actionID, nil
}

// Upload records the on-disk path of one declared file argument. Callers
// invoke this once per file the action declares.
func (n *Node) Upload(actionID id.ID, fileArg, path string) *result.Error {
	n.mu.Lock()
	defer n.mu.Unlock()

	pending, ok := n.pending[actionID]
	if !ok {
		return result.NewError("ActionNotFound", fmt.Sprintf("no pending action %s", actionID))
	}
	pending.files[fileArg] = path
	return nil
}

// Start runs the action's handler, blocking until it completes.
// Subsequent GetResult calls are idempotent.
func (n *Node) Start(ctx context.Context, actionID id.ID) *result.ActionResult {
	n.mu.Lock()
	pending, ok := n.pending[actionID]
	if !ok {
		n.mu.Unlock()
		return &result.ActionResult{
			ActionID: actionID,
			Status:   result.ActionStatusFailed,
			Errors:   []*result.Error{result.NewError("ActionNotFound", fmt.Sprintf("no pending action %s", actionID))},
		}
	}
	if pending.started {
		n.mu.Unlock()
		if pending.result != nil {
			return pending.result
		}
		return &result.ActionResult{ActionID: actionID, Status: result.ActionStatusRunning}
	}

	reg := n.actions[pending.actionName]

	// Reject new start calls while a blocking action is running: this
	// holds independent of whatever concurrency control a caller (e.g.
	// the engine's per-node semaphore) happens to apply.
	if reg.def.Blocking && n.status.Busy {
		n.mu.Unlock()
		return &result.ActionResult{
			ActionID: actionID,
			Status:   result.ActionStatusFailed,
			Errors:   []*result.Error{result.NewError("NodeBusy", "node is busy running a blocking action")},
		}
	}

	// Missing-file validation happens at start time: uploads may arrive
	// in any order relative to create_action, but all must be present
	// before the handler runs.
	for _, spec := range reg.def.Files {
		if !spec.Required {
			continue
		}
		if _, present := pending.files[spec.Name]; !present {
			n.mu.Unlock()
			failed := &result.ActionResult{
				ActionID: actionID,
				Status:   result.ActionStatusFailed,
				Errors:   []*result.Error{result.NewError("ActionMissingFile", fmt.Sprintf("action %q missing required file %q", pending.actionName, spec.Name))},
			}
			n.mu.Lock()
			pending.started = true
			pending.result = failed
			n.mu.Unlock()
			return failed
		}
	}

	pending.started = true
	if reg.def.Blocking {
		n.status.Busy = true
	}
	n.status.RunningActions = append(n.status.RunningActions, actionID)
	n.mu.Unlock()

	res := n.runHandler(ctx, reg, actionID, pending)

	n.mu.Lock()
	pending.result = res
	if reg.def.Blocking {
		n.status.Busy = false
	}
	n.status.RunningActions = removeID(n.status.RunningActions, actionID)
	if res.Status == result.ActionStatusFailed && hasReason(res, "ActionNotImplemented", "ActionMissingArgument", "ActionMissingFile") {
		// validation failures never mark the node errored.
	} else if res.Status == result.ActionStatusFailed {
		n.status.Errored = true
		n.status.Errors = append(n.status.Errors, res.Errors...)
	}
	n.mu.Unlock()

	return res
}

// runHandler invokes the registered handler, converting a panic into an
// ActionFailed result and setting the node's errored flag.
func (n *Node) runHandler(ctx context.Context, reg registeredAction, actionID id.ID, pending *pendingAction) (res *result.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = &result.ActionResult{
				ActionID: actionID,
				Status:   result.ActionStatusFailed,
				Errors:   []*result.Error{result.NewError("ActionException", fmt.Sprintf("action %q panicked: %v", pending.actionName, r))},
			}
		}
	}()

	req := &ActionRequest{ActionID: actionID, Action: pending.actionName, Args: pending.args, Files: pending.files}
	out, err := reg.handler(ctx, req)
	if err != nil {
		return &result.ActionResult{
			ActionID: actionID,
			Status:   result.ActionStatusFailed,
			Errors:   []*result.Error{result.NewError("ActionException", err.Error())},
		}
	}
	if out == nil {
		out = &result.ActionResult{ActionID: actionID, Status: result.ActionStatusSucceeded}
	}
	if out.ActionID == id.Empty {
		out.ActionID = actionID
	}
	return out
}

// GetResult returns the last recorded result for actionID, idempotently.
// Calling it before Start completes returns a RUNNING placeholder.
func (n *Node) GetResult(actionID id.ID) *result.ActionResult {
	n.mu.RLock()
	defer n.mu.RUnlock()

	pending, ok := n.pending[actionID]
	if !ok {
		return &result.ActionResult{
			ActionID: actionID,
			Status:   result.ActionStatusUnknown,
			Errors:   []*result.Error{result.NewError("ActionNotFound", fmt.Sprintf("no action %s", actionID))},
		}
	}
	if pending.result != nil {
		return pending.result
	}
	return &result.ActionResult{ActionID: actionID, Status: result.ActionStatusRunning}
}

func removeID(ids []id.ID, target id.ID) []id.ID {
	out := ids[:0]
	for _, v := range ids {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func hasReason(res *result.ActionResult, reasons ...string) bool {
	for _, e := range res.Errors {
		for _, r := range reasons {
			if e.ErrorType == r {
				return true
			}
		}
	}
	return false
}
