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

// Package state is the workcell orchestration core's state handler: the
// single source of truth for active workflows, the FIFO
// workflow queue, the node registry, locations, and stored workflow
// definitions. It is a transactional key-value store with named
// collections. It does not itself understand workflow semantics; the
// scheduler and engine apply that.
//
// The interface is segregated so that
// components that only need to read/write workflows can depend on
// WorkflowStore instead of the full Backend.
package state

import (
	"context"
	"io"
	"time"

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/node"
	"github.com/madsci-lab/workcell/pkg/result"
	"github.com/madsci-lab/workcell/pkg/workflow"
)

// Mutator transforms a workflow under UpdateWorkflow's per-workflow lock.
// Returning an error aborts the write: the stored workflow is left
// unchanged.
type Mutator func(w *workflow.Workflow) error

// WorkflowStore is the core interface for workflow persistence: the
// minimal surface the engine and control plane need to create, read, and
// atomically mutate a workflow.
type WorkflowStore interface {
	// CreateWorkflow stores a freshly materialized workflow and enqueues
	// it.
	CreateWorkflow(ctx context.Context, w *workflow.Workflow) error

	// GetWorkflow returns a snapshot copy of the workflow by ID. Callers
	// must not mutate the returned value and expect it to be persisted;
	// use UpdateWorkflow for that.
	GetWorkflow(ctx context.Context, workflowID id.ID) (*workflow.Workflow, error)

	// UpdateWorkflow reads the workflow under its per-workflow lock,
	// applies mutate, and writes the result back, atomically with
	// respect to every other UpdateWorkflow call for the same ID.
	UpdateWorkflow(ctx context.Context, workflowID id.ID, mutate Mutator) (*workflow.Workflow, error)
}

// WorkflowLister is an optional interface for listing workflows across
// the active/archive/queue collections.
type WorkflowLister interface {
	ListActive(ctx context.Context) ([]*workflow.Workflow, error)
	ListArchived(ctx context.Context, limit int) ([]*workflow.Workflow, error)
	ListQueue(ctx context.Context) ([]id.ID, error)
}

// StepResultStore is the step-history read path: individual step results
// of active or archived workflows, addressable without deserializing the
// whole workflow record.
type StepResultStore interface {
	// GetStepResult returns the recorded result of steps[stepIndex] for
	// workflowID, looking in the active set first and the archive second.
	GetStepResult(ctx context.Context, workflowID id.ID, stepIndex int) (*result.ActionResult, error)
}

// NodeRegistry is the node half of the state handler: registry entries
// keyed by node_name.
type NodeRegistry interface {
	// RegisterNode upserts a registry entry for a node.
	RegisterNode(ctx context.Context, entry *NodeEntry) error

	// GetNode returns the registry entry for name, or ok=false if no
	// such node has ever registered.
	GetNode(ctx context.Context, name string) (*NodeEntry, bool, error)

	// ListNodes returns every registered node.
	ListNodes(ctx context.Context) ([]*NodeEntry, error)

	// UpdateNodeStatus overwrites the last-known status and reachability
	// timestamp for name.
	UpdateNodeStatus(ctx context.Context, name string, status node.Status, observedAt time.Time) error
}

// LocationStore is the read/write half of workflow.LocationResolver.
type LocationStore interface {
	workflow.LocationResolver

	PutLocation(ctx context.Context, loc *workflow.Location) error
	ListLocations(ctx context.Context) ([]*workflow.Location, error)
	DeleteLocation(ctx context.Context, locationID string) error
}

// DefinitionStore stores workflow definitions keyed by ID, with
// name-scoped versioning: resubmitting a definition under the same name
// creates a new version rather than overwriting.
type DefinitionStore interface {
	PutDefinition(ctx context.Context, def *workflow.Definition) error
	GetDefinition(ctx context.Context, definitionID id.ID) (*workflow.Definition, error)
	LatestVersion(ctx context.Context, name string) (int, bool)
}

// WorkcellConfig is the small "(d) the workcell definition" collection:
// static metadata about the workcell the control plane's /state endpoint
// reports alongside live workflow/node/location state.
type WorkcellConfig struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// WorkcellStore holds the single workcell-wide configuration record.
type WorkcellStore interface {
	GetWorkcell(ctx context.Context) (WorkcellConfig, error)
	SetWorkcell(ctx context.Context, cfg WorkcellConfig) error
}

// NodeEntry is a node registry row.
type NodeEntry struct {
	NodeName          string      `json:"node_name"`
	NodeURL           string      `json:"node_url"`
	Info              node.Info   `json:"info"`
	Status            node.Status `json:"status"`
	LastReachableTime time.Time   `json:"last_reachable_time"`
}

// Backend composes every segregated interface into the full state
// handler contract. Memory (memory.go) is the default,
// in-memory implementation; it is what production boots with absent a
// durable store.
type Backend interface {
	WorkflowStore
	WorkflowLister
	StepResultStore
	NodeRegistry
	LocationStore
	DefinitionStore
	WorkcellStore
	io.Closer
}
