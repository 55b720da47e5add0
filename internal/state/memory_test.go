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
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/node"
	"github.com/madsci-lab/workcell/pkg/result"
	"github.com/madsci-lab/workcell/pkg/workflow"
	"github.com/stretchr/testify/require"
)

func newTestWorkflow(clock id.Clock) *workflow.Workflow {
	w := workflow.FromDefinition(&workflow.Definition{
		Name:  "test",
		Steps: []workflow.Step{{Name: "step-1"}},
	}, clock)
	w.Submit()
	return w
}

func TestCreateAndGetWorkflow(t *testing.T) {
	m := New(id.SystemClock{})
	w := newTestWorkflow(id.SystemClock{})

	require.NoError(t, m.CreateWorkflow(context.Background(), w))

	got, err := m.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.Equal(t, w.WorkflowID, got.WorkflowID)

	got.Name = "mutated"
	got2, err := m.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.Equal(t, "test", got2.Name, "GetWorkflow must return independent copies")
}

func TestCreateWorkflowEnqueues(t *testing.T) {
	m := New(id.SystemClock{})
	w := newTestWorkflow(id.SystemClock{})
	require.NoError(t, m.CreateWorkflow(context.Background(), w))

	queue, err := m.ListQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, []id.ID{w.WorkflowID}, queue)
}

func TestUpdateWorkflowAppliesMutatorAndPersists(t *testing.T) {
	m := New(id.SystemClock{})
	w := newTestWorkflow(id.SystemClock{})
	require.NoError(t, m.CreateWorkflow(context.Background(), w))

	updated, err := m.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
		w.Status.Queued = false
		w.Status.Running = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, updated.Status.Running)

	got, err := m.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.True(t, got.Status.Running)
}

func TestUpdateWorkflowTerminalRemovesFromQueue(t *testing.T) {
	m := New(id.SystemClock{})
	w := newTestWorkflow(id.SystemClock{})
	require.NoError(t, m.CreateWorkflow(context.Background(), w))

	_, err := m.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
		w.Status.Queued = false
		w.Status.Completed = true
		return nil
	})
	require.NoError(t, err)

	queue, err := m.ListQueue(context.Background())
	require.NoError(t, err)
	require.Empty(t, queue)

	got, err := m.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.NotNil(t, got.EndTime)
}

func TestUpdateWorkflowMutatorErrorLeavesStateUnchanged(t *testing.T) {
	m := New(id.SystemClock{})
	w := newTestWorkflow(id.SystemClock{})
	require.NoError(t, m.CreateWorkflow(context.Background(), w))

	_, err := m.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
		return wcBoom
	})
	require.Error(t, err)

	got, err := m.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.True(t, got.Status.Queued)
}

func TestUpdateWorkflowUnknownIDFails(t *testing.T) {
	m := New(id.SystemClock{})
	_, err := m.UpdateWorkflow(context.Background(), id.New(id.SystemClock{}), func(w *workflow.Workflow) error { return nil })
	require.Error(t, err)
}

func TestUpdateWorkflowSerializesConcurrentMutators(t *testing.T) {
	m := New(id.SystemClock{})
	w := newTestWorkflow(id.SystemClock{})
	require.NoError(t, m.CreateWorkflow(context.Background(), w))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
				w.Status.CurrentStepIndex++
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := m.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.Equal(t, 50, got.Status.CurrentStepIndex)
}

func TestArchiveMovesOldTerminalWorkflows(t *testing.T) {
	m := New(id.SystemClock{})
	w := newTestWorkflow(id.SystemClock{})
	require.NoError(t, m.CreateWorkflow(context.Background(), w))

	past := time.Now().Add(-2 * time.Hour)
	_, err := m.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
		w.Status.Queued = false
		w.Status.Completed = true
		w.EndTime = &past
		return nil
	})
	require.NoError(t, err)

	moved := m.Archive(context.Background(), time.Hour, time.Now())
	require.Equal(t, 1, moved)

	active, err := m.ListActive(context.Background())
	require.NoError(t, err)
	require.Empty(t, active)

	archived, err := m.ListArchived(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, archived, 1)
}

func TestRequeueRunningResetsRunningWorkflows(t *testing.T) {
	m := New(id.SystemClock{})
	w := newTestWorkflow(id.SystemClock{})
	w.Steps[0].Status = result.ActionStatusRunning
	require.NoError(t, m.CreateWorkflow(context.Background(), w))

	_, err := m.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
		w.Status.Queued = false
		w.Status.Running = true
		return nil
	})
	require.NoError(t, err)

	n := m.RequeueRunning(context.Background())
	require.Equal(t, 1, n)

	got, err := m.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.True(t, got.Status.Queued)
	require.False(t, got.Status.Running)
	require.Equal(t, result.ActionStatusUnknown, got.Steps[0].Status)

	queue, err := m.ListQueue(context.Background())
	require.NoError(t, err)
	require.Contains(t, queue, w.WorkflowID)
}

func TestGetStepResult(t *testing.T) {
	m := New(id.SystemClock{})
	w := newTestWorkflow(id.SystemClock{})
	require.NoError(t, m.CreateWorkflow(context.Background(), w))

	_, err := m.GetStepResult(context.Background(), w.WorkflowID, 0)
	require.Error(t, err, "a step that never ran has no result")

	_, err = m.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
		w.Steps[0].Result = &result.ActionResult{Status: result.ActionStatusSucceeded, Data: map[string]any{"volume_read": 42}}
		w.Steps[0].Status = result.ActionStatusSucceeded
		return nil
	})
	require.NoError(t, err)

	res, err := m.GetStepResult(context.Background(), w.WorkflowID, 0)
	require.NoError(t, err)
	require.Equal(t, result.ActionStatusSucceeded, res.Status)

	_, err = m.GetStepResult(context.Background(), w.WorkflowID, 5)
	require.Error(t, err, "out-of-range index is rejected")

	// the read path follows the workflow into the archive
	past := time.Now().Add(-2 * time.Hour)
	_, err = m.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
		w.Status.Queued = false
		w.Status.Completed = true
		w.EndTime = &past
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, m.Archive(context.Background(), time.Hour, time.Now()))

	res, err = m.GetStepResult(context.Background(), w.WorkflowID, 0)
	require.NoError(t, err)
	require.Equal(t, result.ActionStatusSucceeded, res.Status)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := New(id.SystemClock{})
	w := newTestWorkflow(id.SystemClock{})
	require.NoError(t, m.CreateWorkflow(context.Background(), w))

	data, err := m.Snapshot()
	require.NoError(t, err)

	restored := New(id.SystemClock{})
	require.NoError(t, restored.Restore(data))

	got, err := restored.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.Equal(t, w.WorkflowID, got.WorkflowID)
	require.Empty(t, cmp.Diff(w.Steps, got.Steps), "steps must survive the snapshot round trip unchanged")

	queue, err := restored.ListQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, []id.ID{w.WorkflowID}, queue)
}

func TestNodeRegistry(t *testing.T) {
	m := New(id.SystemClock{})
	require.NoError(t, m.RegisterNode(context.Background(), &NodeEntry{NodeName: "liquid-handler-1"}))

	entry, ok, err := m.GetNode(context.Background(), "liquid-handler-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "liquid-handler-1", entry.NodeName)

	now := time.Now()
	require.NoError(t, m.UpdateNodeStatus(context.Background(), "liquid-handler-1", node.Status{Ready: true}, now))

	entry, _, err = m.GetNode(context.Background(), "liquid-handler-1")
	require.NoError(t, err)
	require.True(t, entry.Status.Ready)
	require.WithinDuration(t, now, entry.LastReachableTime, time.Millisecond)

	err = m.UpdateNodeStatus(context.Background(), "no-such-node", node.Status{}, now)
	require.Error(t, err)

	nodes, err := m.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
}

func TestLocationStore(t *testing.T) {
	m := New(id.SystemClock{})
	loc := &workflow.Location{Name: "bench-1"}
	require.NoError(t, m.PutLocation(context.Background(), loc))
	require.NotEmpty(t, loc.LocationID)

	got, ok := m.Location(loc.LocationID.String())
	require.True(t, ok)
	require.Equal(t, "bench-1", got.Name)

	locs, err := m.ListLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 1)

	require.NoError(t, m.DeleteLocation(context.Background(), loc.LocationID.String()))
	_, ok = m.Location(loc.LocationID.String())
	require.False(t, ok)
}

func TestDefinitionVersioning(t *testing.T) {
	m := New(id.SystemClock{})
	def1 := &workflow.Definition{Name: "assay"}
	require.NoError(t, m.PutDefinition(context.Background(), def1))
	require.Equal(t, 1, def1.Version)

	def2 := &workflow.Definition{Name: "assay"}
	require.NoError(t, m.PutDefinition(context.Background(), def2))
	require.Equal(t, 2, def2.Version)

	latest, ok := m.LatestVersion(context.Background(), "assay")
	require.True(t, ok)
	require.Equal(t, 2, latest)

	got, err := m.GetDefinition(context.Background(), def1.DefinitionID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
}

func TestWorkcellConfig(t *testing.T) {
	m := New(id.SystemClock{})
	require.NoError(t, m.SetWorkcell(context.Background(), WorkcellConfig{Name: "bench-a"}))

	cfg, err := m.GetWorkcell(context.Background())
	require.NoError(t, err)
	require.Equal(t, "bench-a", cfg.Name)
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var wcBoom = boomError{}
