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

// Package result defines the uniform success/failure carrier every action
// in the workcell produces: a single ActionStatus enum, a wire-friendly
// Error shape, and the ActionResult envelope that the node runtime and
// the node client exchange.
package result

import (
	"fmt"

	"github.com/madsci-lab/workcell/pkg/id"
)

// ActionStatus is the execution status of a single action or step.
type ActionStatus string

// The full set of action/step statuses. Note that the set is shared by
// Step.Status and ActionResult.Status; not every status is reachable from
// every context (e.g. a Step can be NotReady, an ActionResult never is).
const (
	ActionStatusNotStarted ActionStatus = "not_started"
	ActionStatusRunning    ActionStatus = "running"
	ActionStatusSucceeded  ActionStatus = "succeeded"
	ActionStatusFailed     ActionStatus = "failed"
	ActionStatusCancelled  ActionStatus = "cancelled"
	ActionStatusUnknown    ActionStatus = "unknown"
	ActionStatusNotReady   ActionStatus = "not_ready"
	ActionStatusPaused     ActionStatus = "paused"
)

// Terminal reports whether the status represents a finished action: no
// further transitions are expected without operator intervention.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionStatusSucceeded, ActionStatusFailed, ActionStatusCancelled:
		return true
	default:
		return false
	}
}

// Error is the common error envelope carried by ActionResult.Errors and
// surfaced verbatim to callers of the control plane.
type Error struct {
	// Message is the human-readable description.
	Message string `json:"message"`

	// ErrorType is the tagged category (e.g. "ActionMissingArgument",
	// "ActionNotImplemented", "TransportError", "StepTimeout").
	ErrorType string `json:"error_type"`

	// Details carries category-specific structured context (optional).
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface so Error can be used with the
// standard errors package where convenient.
func (e *Error) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
	}
	return e.Message
}

// NewError builds an Error envelope with the given error type and message.
func NewError(errType, message string) *Error {
	return &Error{ErrorType: errType, Message: message}
}

// ActionResult is the outcome of dispatching a single action against a
// node: the uniform success/failure carrier for every action.
type ActionResult struct {
	// ActionID identifies the dispatched action (assigned by the node at
	// create_action time).
	ActionID id.ID `json:"action_id"`

	// Status is the terminal or in-progress status of the action.
	Status ActionStatus `json:"status"`

	// Errors accumulates every failure observed while producing this
	// result (validation, action, and fallback-path errors alike).
	Errors []*Error `json:"errors,omitempty"`

	// Data holds JSON-typed values the action returned directly.
	Data map[string]any `json:"data,omitempty"`

	// Files maps a result key to a filesystem path where the node wrote
	// output (or where the engine staged a downloaded file).
	Files map[string]string `json:"files,omitempty"`

	// Datapoints maps a result key to the datapoint ID it was promoted to,
	// once handle_data_and_files has run.
	Datapoints map[string]string `json:"datapoints,omitempty"`
}

// Succeeded reports whether the result represents a successful action.
func (r *ActionResult) Succeeded() bool {
	return r != nil && r.Status == ActionStatusSucceeded
}

// Failed reports whether the result represents a failed or unknown action.
func (r *ActionResult) Failed() bool {
	return r != nil && (r.Status == ActionStatusFailed || r.Status == ActionStatusUnknown)
}

// AddError appends an error envelope to the result, without disturbing an
// already-terminal success status unless the caller also updates Status.
func (r *ActionResult) AddError(err *Error) {
	r.Errors = append(r.Errors, err)
}

// Unknown builds the synthesized ActionResult the engine records when
// both send_action and the single get_action_result fallback fail.
func Unknown(actionID id.ID, cause error) *ActionResult {
	return &ActionResult{
		ActionID: actionID,
		Status:   ActionStatusUnknown,
		Errors:   []*Error{NewError("DispatchUnknown", cause.Error())},
	}
}
