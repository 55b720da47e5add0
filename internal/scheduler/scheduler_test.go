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

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/madsci-lab/workcell/internal/state"
	"github.com/madsci-lab/workcell/pkg/datapoint"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/node"
	"github.com/madsci-lab/workcell/pkg/param"
	"github.com/madsci-lab/workcell/pkg/result"
	"github.com/madsci-lab/workcell/pkg/workflow"
	"github.com/stretchr/testify/require"
)

type noopDatapointStore struct{}

func (noopDatapointStore) PutValue(ctx context.Context, label string, value any) (id.ID, error) {
	return id.Empty, nil
}
func (noopDatapointStore) PutFile(ctx context.Context, label, path string) (id.ID, error) {
	return id.Empty, nil
}
func (noopDatapointStore) Get(ctx context.Context, dpID id.ID) (*datapoint.Datapoint, error) {
	return nil, nil
}

type alwaysTrueEval struct{}

func (alwaysTrueEval) Evaluate(expr string, ctx map[string]any) (bool, error) { return true, nil }

func newTestSetup(t *testing.T) (*Scheduler, *state.Memory) {
	backend := state.New(id.SystemClock{})
	resolver := param.New(noopDatapointStore{})
	s := New(backend, resolver, alwaysTrueEval{}, id.SystemClock{})
	return s, backend
}

func submitWorkflow(t *testing.T, backend *state.Memory, nodeName string, priority int) *workflow.Workflow {
	w := workflow.FromDefinition(&workflow.Definition{
		Name:  "assay",
		Steps: []workflow.Step{{Name: "step-1", Node: nodeName}},
	}, id.SystemClock{})
	w.Submit()
	w.SchedulerMetadata.Priority = priority
	require.NoError(t, backend.CreateWorkflow(context.Background(), w))
	return w
}

func TestTick_DispatchesReadyWorkflow(t *testing.T) {
	s, backend := newTestSetup(t)
	require.NoError(t, backend.RegisterNode(context.Background(), &state.NodeEntry{NodeName: "n1"}))
	require.NoError(t, backend.UpdateNodeStatus(context.Background(), "n1", node.Status{Ready: true}, time.Now()))

	w := submitWorkflow(t, backend, "n1", 0)

	require.NoError(t, s.Tick(context.Background()))

	cand, ok := s.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, w.WorkflowID, cand.WorkflowID)
	require.Equal(t, "n1", cand.Node)

	_, ok = s.Next(context.Background())
	require.False(t, ok)
}

func TestTick_UnknownNodeFailsWorkflow(t *testing.T) {
	s, backend := newTestSetup(t)
	w := submitWorkflow(t, backend, "ghost", 0)

	require.NoError(t, s.Tick(context.Background()))

	got, err := backend.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.True(t, got.Status.Failed)
	require.Equal(t, "unknown node", got.SchedulerMetadata.Reason)
}

func TestTick_NotDispatchableNodeSkipped(t *testing.T) {
	s, backend := newTestSetup(t)
	require.NoError(t, backend.RegisterNode(context.Background(), &state.NodeEntry{NodeName: "n1"}))
	require.NoError(t, backend.UpdateNodeStatus(context.Background(), "n1", node.Status{Ready: false}, time.Now()))

	w := submitWorkflow(t, backend, "n1", 0)
	require.NoError(t, s.Tick(context.Background()))

	_, ok := s.Next(context.Background())
	require.False(t, ok)

	got, err := backend.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.False(t, got.SchedulerMetadata.ReadyToRun)
}

func TestTick_OnlyOneCandidatePerNodePerTick(t *testing.T) {
	s, backend := newTestSetup(t)
	require.NoError(t, backend.RegisterNode(context.Background(), &state.NodeEntry{NodeName: "n1"}))
	require.NoError(t, backend.UpdateNodeStatus(context.Background(), "n1", node.Status{Ready: true}, time.Now()))

	submitWorkflow(t, backend, "n1", 0)
	submitWorkflow(t, backend, "n1", 0)

	require.NoError(t, s.Tick(context.Background()))

	_, ok := s.Next(context.Background())
	require.True(t, ok)
	_, ok = s.Next(context.Background())
	require.False(t, ok, "only one workflow may claim a node per tick")
}

func TestTick_SkipsWorkflowWithStepInFlight(t *testing.T) {
	s, backend := newTestSetup(t)
	require.NoError(t, backend.RegisterNode(context.Background(), &state.NodeEntry{NodeName: "n1"}))
	require.NoError(t, backend.UpdateNodeStatus(context.Background(), "n1", node.Status{Ready: true}, time.Now()))

	w := submitWorkflow(t, backend, "n1", 0)
	_, err := backend.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
		w.Status.Queued = false
		w.Status.Running = true
		w.Steps[0].Status = result.ActionStatusRunning
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Tick(context.Background()))

	_, ok := s.Next(context.Background())
	require.False(t, ok, "a step already in flight must not be dispatched again")
}

func TestTick_InFlightWorkflowClaimsItsNode(t *testing.T) {
	s, backend := newTestSetup(t)
	require.NoError(t, backend.RegisterNode(context.Background(), &state.NodeEntry{NodeName: "n1"}))
	require.NoError(t, backend.UpdateNodeStatus(context.Background(), "n1", node.Status{Ready: true}, time.Now()))

	running := submitWorkflow(t, backend, "n1", 10)
	_, err := backend.UpdateWorkflow(context.Background(), running.WorkflowID, func(w *workflow.Workflow) error {
		w.Steps[0].Status = result.ActionStatusRunning
		return nil
	})
	require.NoError(t, err)

	submitWorkflow(t, backend, "n1", 0)

	require.NoError(t, s.Tick(context.Background()))

	_, ok := s.Next(context.Background())
	require.False(t, ok, "a node running a step must not receive another workflow's step")
}

func TestTick_PriorityOrdersCandidates(t *testing.T) {
	s, backend := newTestSetup(t)
	require.NoError(t, backend.RegisterNode(context.Background(), &state.NodeEntry{NodeName: "low"}))
	require.NoError(t, backend.RegisterNode(context.Background(), &state.NodeEntry{NodeName: "high"}))
	require.NoError(t, backend.UpdateNodeStatus(context.Background(), "low", node.Status{Ready: true}, time.Now()))
	require.NoError(t, backend.UpdateNodeStatus(context.Background(), "high", node.Status{Ready: true}, time.Now()))

	submitWorkflow(t, backend, "low", 0)
	high := submitWorkflow(t, backend, "high", 10)

	require.NoError(t, s.Tick(context.Background()))

	cand, ok := s.Next(context.Background())
	require.True(t, ok)
	require.Equal(t, high.WorkflowID, cand.WorkflowID, "higher priority workflow should be the first candidate")
}
