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

// Package workflow defines the workcell orchestration core's data model:
// workflow definitions, materialized workflows, steps, parameters, and the
// node-registry/location types the scheduler and engine resolve steps
// against. Nothing in this package talks to a node or a store directly;
// it is pure data plus the small amount of derivation logic (status flags,
// invariant checks) that the rest of the core depends on.
package workflow

import (
	"time"

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/result"
)

// Status is the orthogonal set of boolean flags that make up a workflow's
// lifecycle state.
type Status struct {
	Initializing bool `json:"initializing"`
	Queued       bool `json:"queued"`
	Running      bool `json:"running"`
	Paused       bool `json:"paused"`
	Completed    bool `json:"completed"`
	Failed       bool `json:"failed"`
	Cancelled    bool `json:"cancelled"`

	CurrentStepIndex int    `json:"current_step_index"`
	Description      string `json:"description"`
}

// Active reports whether the workflow is queued or running: still making
// forward progress or eligible to.
func (s Status) Active() bool {
	return s.Queued || s.Running
}

// Terminal reports whether the workflow has reached a final state: no
// further mutation is expected.
func (s Status) Terminal() bool {
	return s.Completed || s.Failed || s.Cancelled
}

// Dominant returns the single dominant flag name among
// {active, paused, failed, cancelled, completed}. Active workflows
// (queued or running) report "active"; a workflow with none of these
// flags set reports "initializing".
func (s Status) Dominant() string {
	switch {
	case s.Completed:
		return "completed"
	case s.Failed:
		return "failed"
	case s.Cancelled:
		return "cancelled"
	case s.Paused:
		return "paused"
	case s.Active():
		return "active"
	default:
		return "initializing"
	}
}

// SchedulerMetadata is the scheduler's scratch area on a workflow: its
// readiness decision and rationale.
type SchedulerMetadata struct {
	ReadyToRun bool   `json:"ready_to_run"`
	Priority   int    `json:"priority"`
	Reason     string `json:"reason"`
}

// Ownership attributes a workflow to the external actors and systems that
// requested it.
type Ownership struct {
	UserID       string `json:"user_id,omitempty"`
	ExperimentID string `json:"experiment_id,omitempty"`
	LabID        string `json:"lab_id,omitempty"`
	NodeID       string `json:"node_id,omitempty"`
	ManagerID    string `json:"manager_id,omitempty"`
	WorkcellID   string `json:"workcell_id,omitempty"`
	CampaignID   string `json:"campaign_id,omitempty"`
}

// JSONInput declares one JSON-typed workflow parameter.
type JSONInput struct {
	Key      string `json:"key" yaml:"key"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
	Required bool   `json:"required" yaml:"required"`
}

// FileInput declares one file-typed workflow parameter.
type FileInput struct {
	Key      string `json:"key" yaml:"key"`
	Required bool   `json:"required" yaml:"required"`
}

// FeedForwardDataType selects whether a feed-forward binds a JSON value or
// a file/datapoint ID.
type FeedForwardDataType string

const (
	FeedForwardJSON FeedForwardDataType = "json"
	FeedForwardFile FeedForwardDataType = "file"
)

// FeedForward binds a later step's parameter to an earlier step's
// datapoint output.
type FeedForward struct {
	// Key is the parameter name this feed-forward populates.
	Key string `json:"key" yaml:"key"`

	// Step identifies the upstream step: either its 0-based index
	// (encoded as a JSON number/YAML int) or its string key. StepRef
	// normalizes both.
	Step StepRef `json:"step" yaml:"step"`

	// Label selects which of the upstream step's datapoints to use. If
	// omitted, the step must have produced exactly one datapoint.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// DataType selects json (store the value) or file (store the
	// datapoint ID as a file input).
	DataType FeedForwardDataType `json:"data_type" yaml:"data_type"`
}

// Parameters is a workflow's full parameter specification.
type Parameters struct {
	JSONInputs  []JSONInput   `json:"json_inputs,omitempty" yaml:"json_inputs,omitempty"`
	FileInputs  []FileInput   `json:"file_inputs,omitempty" yaml:"file_inputs,omitempty"`
	FeedForward []FeedForward `json:"feed_forward,omitempty" yaml:"feed_forward,omitempty"`
}

// StepParameters are the placeholders to fill at dispatch time.
type StepParameters struct {
	Args   map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
	Files  map[string]string `json:"files,omitempty" yaml:"files,omitempty"`
	Node   string            `json:"node,omitempty" yaml:"node,omitempty"`
	Action string            `json:"action,omitempty" yaml:"action,omitempty"`
}

// Condition is a guard predicate evaluated before a step dispatches.
// Expression is evaluated by pkg/param against the current parameter
// bindings and prior step results.
type Condition struct {
	Expression string `json:"expression" yaml:"expression"`
}

// Step is one action invocation within a workflow.
type Step struct {
	StepID id.ID  `json:"step_id"`
	Key    string `json:"key,omitempty" yaml:"key,omitempty"`
	Name   string `json:"name" yaml:"name"`

	Node   string `json:"node" yaml:"node"`
	Action string `json:"action" yaml:"action"`

	Args  map[string]any    `json:"args,omitempty" yaml:"args,omitempty"`
	Files map[string]string `json:"files,omitempty" yaml:"files,omitempty"`

	UseParameters StepParameters `json:"use_parameters,omitempty" yaml:"use_parameters,omitempty"`

	// DataLabels maps a node-returned result key to the label its
	// datapoint is promoted under.
	DataLabels map[string]string `json:"data_labels,omitempty" yaml:"data_labels,omitempty"`

	Status result.ActionStatus  `json:"status"`
	Result *result.ActionResult `json:"result,omitempty"`

	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// Locations maps an argument name to a location ID; the location's
	// representation for the step's node becomes that argument's value.
	// The step's node itself comes from Node or UseParameters.Node, not
	// from a location.
	Locations map[string]string `json:"locations,omitempty" yaml:"locations,omitempty"`

	// Timeout overrides the engine's default per-step timeout, in
	// seconds. Zero means use the default.
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Reset restores the step to its pre-execution state, used by
// retry_workflow.
func (s *Step) Reset() {
	s.Status = result.ActionStatusNotStarted
	s.Result = nil
}

// Definition is a stored, reusable workflow template. A Workflow is
// materialized from exactly one Definition plus submission-time inputs.
type Definition struct {
	DefinitionID id.ID          `json:"workflow_definition_id"`
	Name         string         `json:"name" yaml:"name"`
	Version      int            `json:"version"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Parameters   Parameters     `json:"parameters" yaml:"parameters"`
	Steps        []Step         `json:"steps" yaml:"steps"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Workflow is a materialized, executing instance of a Definition.
type Workflow struct {
	WorkflowID           id.ID  `json:"workflow_id"`
	Name                 string `json:"name"`
	WorkflowDefinitionID id.ID  `json:"workflow_definition_id"`

	Parameters      Parameters        `json:"parameters"`
	ParameterValues map[string]any    `json:"parameter_values"`
	FileInputIDs    map[string]string `json:"file_input_ids"`

	Steps  []Step `json:"steps"`
	Status Status `json:"status"`

	SchedulerMetadata SchedulerMetadata `json:"scheduler_metadata"`

	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	SubmittedTime time.Time  `json:"submitted_time"`

	Ownership Ownership `json:"ownership"`
}

// CurrentStep returns a pointer to the step at CurrentStepIndex, or nil if
// every step has been consumed.
func (w *Workflow) CurrentStep() *Step {
	if w.Status.CurrentStepIndex < 0 || w.Status.CurrentStepIndex >= len(w.Steps) {
		return nil
	}
	return &w.Steps[w.Status.CurrentStepIndex]
}

// StepByRef resolves a StepRef against this workflow's steps, matching by
// 0-based index or by Step.Key.
func (w *Workflow) StepByRef(ref StepRef) (int, *Step, bool) {
	if ref.IsIndex {
		if ref.Index < 0 || ref.Index >= len(w.Steps) {
			return 0, nil, false
		}
		return ref.Index, &w.Steps[ref.Index], true
	}
	for i := range w.Steps {
		if w.Steps[i].Key == ref.Key {
			return i, &w.Steps[i], true
		}
	}
	return 0, nil, false
}

// FromDefinition materializes a new Workflow from a stored Definition.
// Steps are copied by value and assigned fresh IDs, so their maps and
// slices are shared with def's steps; status starts
// initializing/not-queued.
func FromDefinition(def *Definition, clock id.Clock) *Workflow {
	steps := make([]Step, len(def.Steps))
	for i, s := range def.Steps {
		steps[i] = s
		steps[i].StepID = id.New(clock)
		steps[i].Status = result.ActionStatusNotStarted
		steps[i].Result = nil
	}

	return &Workflow{
		WorkflowID:           id.New(clock),
		Name:                 def.Name,
		WorkflowDefinitionID: def.DefinitionID,
		Parameters:           def.Parameters,
		ParameterValues:      make(map[string]any),
		FileInputIDs:         make(map[string]string),
		Steps:                steps,
		Status: Status{
			Initializing: true,
		},
		SchedulerMetadata: SchedulerMetadata{},
		SubmittedTime:     clock.Now(),
	}
}

// Submit transitions a freshly materialized workflow to queued.
func (w *Workflow) Submit() {
	w.Status.Initializing = false
	w.Status.Queued = true
}
