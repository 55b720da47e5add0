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

package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/node"
	"github.com/madsci-lab/workcell/pkg/result"
	"github.com/madsci-lab/workcell/pkg/workflow"
)

// Memory is the default, in-memory Backend implementation: mutex-guarded
// maps per collection, no external dependency. Workflows and step results
// crossing its API boundary are JSON round-tripped so callers never alias
// the handler's internal state; node, location and definition records are
// copied as structs, so their maps and slices are shared with the stored
// record.
type Memory struct {
	clock id.Clock

	mu        sync.RWMutex
	active    map[id.ID]*workflow.Workflow
	archive   map[id.ID]*workflow.Workflow
	queue     []id.ID
	queuedSet map[id.ID]bool

	locksMu sync.Mutex
	locks   map[id.ID]*sync.Mutex

	nodesMu sync.RWMutex
	nodes   map[string]*NodeEntry

	locMu     sync.RWMutex
	locations map[string]*workflow.Location

	defMu       sync.RWMutex
	definitions map[id.ID]*workflow.Definition
	versions    map[string]int

	workcellMu sync.RWMutex
	workcell   WorkcellConfig
}

var (
	_ Backend = (*Memory)(nil)
)

// New constructs an empty Memory backend. clock defaults to
// id.SystemClock when nil.
func New(clock id.Clock) *Memory {
	if clock == nil {
		clock = id.SystemClock{}
	}
	return &Memory{
		clock:       clock,
		active:      make(map[id.ID]*workflow.Workflow),
		archive:     make(map[id.ID]*workflow.Workflow),
		queuedSet:   make(map[id.ID]bool),
		locks:       make(map[id.ID]*sync.Mutex),
		nodes:       make(map[string]*NodeEntry),
		locations:   make(map[string]*workflow.Location),
		definitions: make(map[id.ID]*workflow.Definition),
		versions:    make(map[string]int),
	}
}

// Close implements io.Closer; the in-memory backend holds no external
// resources.
func (m *Memory) Close() error { return nil }

func (m *Memory) lockFor(workflowID id.ID) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[workflowID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[workflowID] = l
	}
	return l
}

func deepCopyWorkflow(w *workflow.Workflow) (*workflow.Workflow, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var out workflow.Workflow
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateWorkflow implements WorkflowStore.
func (m *Memory) CreateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	cp, err := deepCopyWorkflow(w)
	if err != nil {
		return wcerrors.Wrap(err, "copying workflow for storage")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[cp.WorkflowID]; exists {
		return &wcerrors.InternalError{Component: "state", Message: fmt.Sprintf("workflow %s already exists", cp.WorkflowID)}
	}
	m.active[cp.WorkflowID] = cp
	m.enqueueLocked(cp.WorkflowID)
	return nil
}

func (m *Memory) enqueueLocked(workflowID id.ID) {
	if m.queuedSet[workflowID] {
		return
	}
	m.queuedSet[workflowID] = true
	m.queue = append(m.queue, workflowID)
}

func (m *Memory) removeFromQueueLocked(workflowID id.ID) {
	if !m.queuedSet[workflowID] {
		return
	}
	delete(m.queuedSet, workflowID)
	for i, id := range m.queue {
		if id == workflowID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
}

// GetWorkflow implements WorkflowStore.
func (m *Memory) GetWorkflow(ctx context.Context, workflowID id.ID) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.active[workflowID]
	if !ok {
		w, ok = m.archive[workflowID]
	}
	if !ok {
		return nil, &wcerrors.NotFoundError{Resource: "workflow", ID: workflowID.String()}
	}
	return deepCopyWorkflow(w)
}

// UpdateWorkflow implements WorkflowStore: the per-workflow mutex
// serializes every mutator for the same ID. The mutator runs against a
// copy that is swapped in only on success, so an erroring mutator leaves
// the stored workflow untouched and readers never observe a half-applied
// mutation.
func (m *Memory) UpdateWorkflow(ctx context.Context, workflowID id.ID, mutate Mutator) (*workflow.Workflow, error) {
	lock := m.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	stored, ok := m.active[workflowID]
	var w *workflow.Workflow
	var copyErr error
	if ok {
		w, copyErr = deepCopyWorkflow(stored)
	}
	m.mu.RUnlock()
	if !ok {
		return nil, &wcerrors.NotFoundError{Resource: "workflow", ID: workflowID.String()}
	}
	if copyErr != nil {
		return nil, wcerrors.Wrap(copyErr, "copying workflow for mutation")
	}
	if err := mutate(w); err != nil {
		return nil, err
	}

	if w.Status.Terminal() && w.EndTime == nil {
		now := m.clock.Now()
		w.EndTime = &now
	}

	m.mu.Lock()
	m.active[workflowID] = w
	if w.Status.Terminal() {
		m.removeFromQueueLocked(workflowID)
	} else if w.Status.Queued {
		// A retried or requeued workflow re-enters the FIFO queue; a
		// workflow already queued keeps its position.
		m.enqueueLocked(workflowID)
	}
	m.mu.Unlock()

	return deepCopyWorkflow(w)
}

// ListActive implements WorkflowLister.
func (m *Memory) ListActive(ctx context.Context) ([]*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*workflow.Workflow, 0, len(m.active))
	for _, w := range m.active {
		cp, err := deepCopyWorkflow(w)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// ListArchived implements WorkflowLister.
func (m *Memory) ListArchived(ctx context.Context, limit int) ([]*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*workflow.Workflow, 0, len(m.archive))
	for _, w := range m.archive {
		cp, err := deepCopyWorkflow(w)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListQueue implements WorkflowLister.
func (m *Memory) ListQueue(ctx context.Context) ([]id.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]id.ID, len(m.queue))
	copy(out, m.queue)
	return out, nil
}

// Archive moves every terminal workflow whose EndTime is older than
// retention from the active collection into the archive, removing it
// from the queue. It returns the number of workflows archived.
func (m *Memory) Archive(ctx context.Context, retention time.Duration, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	moved := 0
	for id, w := range m.active {
		if !w.Status.Terminal() || w.EndTime == nil {
			continue
		}
		if now.Sub(*w.EndTime) < retention {
			continue
		}
		m.archive[id] = w
		delete(m.active, id)
		m.removeFromQueueLocked(id)
		moved++
	}
	return moved
}

// RequeueRunning implements restart recovery: every active workflow left
// Running is reset to Queued with CurrentStepIndex preserved, and its
// current step, whose result is unknown because the process died
// mid-dispatch, is marked UNKNOWN so the scheduler re-attempts it. Call
// this once after restoring a snapshot, before the scheduler loop starts.
func (m *Memory) RequeueRunning(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	requeued := 0
	for id, w := range m.active {
		if !w.Status.Running {
			continue
		}
		w.Status.Running = false
		w.Status.Queued = true
		if step := w.CurrentStep(); step != nil && step.Status == result.ActionStatusRunning {
			step.Status = result.ActionStatusUnknown
			if step.Result == nil {
				step.Result = &result.ActionResult{Status: result.ActionStatusUnknown}
			} else {
				step.Result.Status = result.ActionStatusUnknown
			}
		}
		m.enqueueLocked(id)
		requeued++
	}
	return requeued
}

// Snapshot serializes the workflow collections (active, archive and queue)
// to JSON. Nodes, locations, definitions and the workcell record are not
// included.
func (m *Memory) Snapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type snapshot struct {
		Active  map[id.ID]*workflow.Workflow `json:"workflows:active"`
		Archive map[id.ID]*workflow.Workflow `json:"workflows:archive"`
		Queue   []id.ID                      `json:"workflows:queue"`
	}
	return json.Marshal(snapshot{Active: m.active, Archive: m.archive, Queue: m.queue})
}

// Restore replaces the handler's workflow collections from a prior
// Snapshot. It is the other half of restart recovery: the process
// embedding Memory is responsible for persisting Snapshot's bytes
// somewhere durable and feeding them back in via Restore before calling
// RequeueRunning.
func (m *Memory) Restore(data []byte) error {
	type snapshot struct {
		Active  map[id.ID]*workflow.Workflow `json:"workflows:active"`
		Archive map[id.ID]*workflow.Workflow `json:"workflows:archive"`
		Queue   []id.ID                      `json:"workflows:queue"`
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return wcerrors.Wrap(err, "restoring state snapshot")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = snap.Active
	if m.active == nil {
		m.active = make(map[id.ID]*workflow.Workflow)
	}
	m.archive = snap.Archive
	if m.archive == nil {
		m.archive = make(map[id.ID]*workflow.Workflow)
	}
	m.queue = snap.Queue
	m.queuedSet = make(map[id.ID]bool, len(m.queue))
	for _, id := range m.queue {
		m.queuedSet[id] = true
	}
	return nil
}

// GetStepResult implements StepResultStore.
func (m *Memory) GetStepResult(ctx context.Context, workflowID id.ID, stepIndex int) (*result.ActionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.active[workflowID]
	if !ok {
		w, ok = m.archive[workflowID]
	}
	if !ok {
		return nil, &wcerrors.NotFoundError{Resource: "workflow", ID: workflowID.String()}
	}

	if stepIndex < 0 || stepIndex >= len(w.Steps) {
		return nil, &wcerrors.ValidationError{Field: "step_index", Message: fmt.Sprintf("step index %d out of range for workflow with %d steps", stepIndex, len(w.Steps))}
	}
	res := w.Steps[stepIndex].Result
	if res == nil {
		return nil, &wcerrors.NotFoundError{Resource: "step result", ID: fmt.Sprintf("%s/%d", workflowID, stepIndex)}
	}

	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var cp result.ActionResult
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// RegisterNode implements NodeRegistry.
func (m *Memory) RegisterNode(ctx context.Context, entry *NodeEntry) error {
	if entry.NodeName == "" {
		return &wcerrors.ValidationError{Field: "node_name", Message: "node_name must not be empty"}
	}
	cp := *entry
	m.nodesMu.Lock()
	defer m.nodesMu.Unlock()
	m.nodes[entry.NodeName] = &cp
	return nil
}

// GetNode implements NodeRegistry.
func (m *Memory) GetNode(ctx context.Context, name string) (*NodeEntry, bool, error) {
	m.nodesMu.RLock()
	defer m.nodesMu.RUnlock()
	entry, ok := m.nodes[name]
	if !ok {
		return nil, false, nil
	}
	cp := *entry
	return &cp, true, nil
}

// ListNodes implements NodeRegistry.
func (m *Memory) ListNodes(ctx context.Context) ([]*NodeEntry, error) {
	m.nodesMu.RLock()
	defer m.nodesMu.RUnlock()
	out := make([]*NodeEntry, 0, len(m.nodes))
	for _, entry := range m.nodes {
		cp := *entry
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateNodeStatus implements NodeRegistry.
func (m *Memory) UpdateNodeStatus(ctx context.Context, name string, status node.Status, observedAt time.Time) error {
	m.nodesMu.Lock()
	defer m.nodesMu.Unlock()
	entry, ok := m.nodes[name]
	if !ok {
		return &wcerrors.NotFoundError{Resource: "node", ID: name}
	}
	entry.Status = status
	entry.LastReachableTime = observedAt
	return nil
}

// PutLocation implements LocationStore.
func (m *Memory) PutLocation(ctx context.Context, loc *workflow.Location) error {
	if loc.LocationID == id.Empty {
		loc.LocationID = id.New(m.clock)
	}
	m.locMu.Lock()
	defer m.locMu.Unlock()
	cp := *loc
	m.locations[loc.LocationID.String()] = &cp
	return nil
}

// Location implements workflow.LocationResolver.
func (m *Memory) Location(locationID string) (*workflow.Location, bool) {
	m.locMu.RLock()
	defer m.locMu.RUnlock()
	loc, ok := m.locations[locationID]
	if !ok {
		return nil, false
	}
	cp := *loc
	return &cp, true
}

// ListLocations implements LocationStore.
func (m *Memory) ListLocations(ctx context.Context) ([]*workflow.Location, error) {
	m.locMu.RLock()
	defer m.locMu.RUnlock()
	out := make([]*workflow.Location, 0, len(m.locations))
	for _, loc := range m.locations {
		cp := *loc
		out = append(out, &cp)
	}
	return out, nil
}

// DeleteLocation implements LocationStore.
func (m *Memory) DeleteLocation(ctx context.Context, locationID string) error {
	m.locMu.Lock()
	defer m.locMu.Unlock()
	delete(m.locations, locationID)
	return nil
}

// PutDefinition implements DefinitionStore. Resubmitting a definition
// under a name already in use creates a new version rather than
// overwriting the previous one.
func (m *Memory) PutDefinition(ctx context.Context, def *workflow.Definition) error {
	m.defMu.Lock()
	defer m.defMu.Unlock()

	next := m.versions[def.Name] + 1
	def.Version = next
	if def.DefinitionID == id.Empty {
		def.DefinitionID = id.New(m.clock)
	}
	def.CreatedAt = m.clock.Now()

	cp := *def
	m.definitions[def.DefinitionID] = &cp
	m.versions[def.Name] = next
	return nil
}

// GetDefinition implements DefinitionStore.
func (m *Memory) GetDefinition(ctx context.Context, definitionID id.ID) (*workflow.Definition, error) {
	m.defMu.RLock()
	defer m.defMu.RUnlock()
	def, ok := m.definitions[definitionID]
	if !ok {
		return nil, &wcerrors.NotFoundError{Resource: "workflow_definition", ID: definitionID.String()}
	}
	cp := *def
	return &cp, nil
}

// LatestVersion implements DefinitionStore.
func (m *Memory) LatestVersion(ctx context.Context, name string) (int, bool) {
	m.defMu.RLock()
	defer m.defMu.RUnlock()
	v, ok := m.versions[name]
	return v, ok
}

// GetWorkcell implements WorkcellStore.
func (m *Memory) GetWorkcell(ctx context.Context) (WorkcellConfig, error) {
	m.workcellMu.RLock()
	defer m.workcellMu.RUnlock()
	return m.workcell, nil
}

// SetWorkcell implements WorkcellStore.
func (m *Memory) SetWorkcell(ctx context.Context, cfg WorkcellConfig) error {
	m.workcellMu.Lock()
	defer m.workcellMu.Unlock()
	m.workcell = cfg
	return nil
}
