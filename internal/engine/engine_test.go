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

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/madsci-lab/workcell/internal/scheduler"
	"github.com/madsci-lab/workcell/internal/state"
	"github.com/madsci-lab/workcell/pkg/datapoint"
	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/node"
	"github.com/madsci-lab/workcell/pkg/nodeclient"
	"github.com/madsci-lab/workcell/pkg/param"
	"github.com/madsci-lab/workcell/pkg/result"
	"github.com/madsci-lab/workcell/pkg/workflow"
	"github.com/stretchr/testify/require"
)

type memDatapointStore struct {
	values map[id.ID]*datapoint.Datapoint
	clock  id.Clock
}

func newMemStore() *memDatapointStore {
	return &memDatapointStore{values: make(map[id.ID]*datapoint.Datapoint), clock: id.SystemClock{}}
}

func (s *memDatapointStore) PutValue(ctx context.Context, label string, value any) (id.ID, error) {
	dpID := id.New(s.clock)
	s.values[dpID] = &datapoint.Datapoint{ID: dpID, Label: label, Value: value}
	return dpID, nil
}

func (s *memDatapointStore) PutFile(ctx context.Context, label, path string) (id.ID, error) {
	dpID := id.New(s.clock)
	s.values[dpID] = &datapoint.Datapoint{ID: dpID, Label: label, Path: path, IsFile: true}
	return dpID, nil
}

func (s *memDatapointStore) Get(ctx context.Context, dpID id.ID) (*datapoint.Datapoint, error) {
	dp, ok := s.values[dpID]
	if !ok {
		return nil, wcerrors.New("not found")
	}
	return dp, nil
}

type fakeClient struct {
	result *result.ActionResult
	err    error
}

func (f *fakeClient) GetInfo(ctx context.Context) (*node.Info, error)     { return nil, nil }
func (f *fakeClient) GetStatus(ctx context.Context) (*node.Status, error) { return nil, nil }
func (f *fakeClient) GetState(ctx context.Context) (map[string]any, error) {
	return nil, nil
}
func (f *fakeClient) GetLog(ctx context.Context) (map[string]node.Event, error) { return nil, nil }
func (f *fakeClient) SetConfig(ctx context.Context, values map[string]any) (*node.SetConfigResponse, error) {
	return nil, nil
}
func (f *fakeClient) SendAdminCommand(ctx context.Context, cmd node.AdminCommand) (*node.AdminCommandResponse, error) {
	return nil, nil
}
func (f *fakeClient) SendAction(ctx context.Context, actionName string, args map[string]any, files map[string]string) (*result.ActionResult, error) {
	return f.result, f.err
}
func (f *fakeClient) GetActionResult(ctx context.Context, actionID id.ID) (*result.ActionResult, error) {
	return f.result, f.err
}

type fakeSource struct {
	candidates []scheduler.Candidate
}

func (f *fakeSource) Next(ctx context.Context) (scheduler.Candidate, bool) {
	if len(f.candidates) == 0 {
		return scheduler.Candidate{}, false
	}
	c := f.candidates[0]
	f.candidates = f.candidates[1:]
	return c, true
}

type alwaysTrueEval struct{}

func (alwaysTrueEval) Evaluate(expr string, ctx map[string]any) (bool, error) { return true, nil }

func newTestEngine(t *testing.T, client nodeclient.Client) (*Engine, *state.Memory) {
	backend := state.New(id.SystemClock{})
	resolver := param.New(newMemStore())
	factory := func(ctx context.Context, nodeName string) (nodeclient.Client, error) {
		return client, nil
	}
	e := New(backend, resolver, alwaysTrueEval{}, factory, id.SystemClock{})
	return e, backend
}

func submitWorkflow(t *testing.T, backend *state.Memory, step workflow.Step) *workflow.Workflow {
	w := workflow.FromDefinition(&workflow.Definition{Name: "assay", Steps: []workflow.Step{step}}, id.SystemClock{})
	w.Submit()
	require.NoError(t, backend.CreateWorkflow(context.Background(), w))
	return w
}

func TestRunNextStep_NoCandidateReturnsFalse(t *testing.T) {
	e, _ := newTestEngine(t, &fakeClient{})
	ok := e.RunNextStep(context.Background(), &fakeSource{})
	require.False(t, ok)
}

func TestRunStep_SucceededAdvancesAndCompletes(t *testing.T) {
	e, backend := newTestEngine(t, &fakeClient{result: &result.ActionResult{Status: result.ActionStatusSucceeded}})
	w := submitWorkflow(t, backend, workflow.Step{Name: "only-step", Node: "n1", Action: "transfer"})

	src := &fakeSource{candidates: []scheduler.Candidate{{WorkflowID: w.WorkflowID, StepIndex: 0, Node: "n1"}}}
	require.True(t, e.RunNextStep(context.Background(), src))
	e.Wait()

	got, err := backend.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.True(t, got.Status.Completed)
	require.NotNil(t, got.EndTime)
	require.Equal(t, result.ActionStatusSucceeded, got.Steps[0].Status)
}

func TestRunStep_FailurePersistsFailedWorkflow(t *testing.T) {
	e, backend := newTestEngine(t, &fakeClient{result: &result.ActionResult{Status: result.ActionStatusFailed}})
	w := submitWorkflow(t, backend, workflow.Step{Name: "only-step", Node: "n1", Action: "transfer"})

	src := &fakeSource{candidates: []scheduler.Candidate{{WorkflowID: w.WorkflowID, StepIndex: 0, Node: "n1"}}}
	require.True(t, e.RunNextStep(context.Background(), src))
	e.Wait()

	got, err := backend.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.True(t, got.Status.Failed)
}

func TestRunStep_TransportErrorWithoutActionIDSynthesizesUnknown(t *testing.T) {
	e, backend := newTestEngine(t, &fakeClient{err: &wcerrors.TransportError{Node: "n1", Op: "send_action", Message: "connection refused"}})
	w := submitWorkflow(t, backend, workflow.Step{Name: "only-step", Node: "n1", Action: "transfer"})

	src := &fakeSource{candidates: []scheduler.Candidate{{WorkflowID: w.WorkflowID, StepIndex: 0, Node: "n1"}}}
	require.True(t, e.RunNextStep(context.Background(), src))
	e.Wait()

	got, err := backend.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.Equal(t, result.ActionStatusUnknown, got.Steps[0].Status)
	require.True(t, got.Status.Failed)
	require.False(t, got.Status.Running)
	require.NotNil(t, got.EndTime)
}

type fallbackClient struct {
	fakeClient
	actionID id.ID
}

func (f *fallbackClient) SendAction(ctx context.Context, actionName string, args map[string]any, files map[string]string) (*result.ActionResult, error) {
	return nil, &wcerrors.TransportError{Node: "n1", Op: "send_action", Message: "connection reset mid-start", ActionID: f.actionID.String()}
}

func (f *fallbackClient) GetActionResult(ctx context.Context, actionID id.ID) (*result.ActionResult, error) {
	return &result.ActionResult{ActionID: actionID, Status: result.ActionStatusSucceeded}, nil
}

func TestRunStep_TransportErrorWithActionIDFallsBackToResult(t *testing.T) {
	actionID := id.New(id.SystemClock{})
	e, backend := newTestEngine(t, &fallbackClient{actionID: actionID})
	w := submitWorkflow(t, backend, workflow.Step{Name: "only-step", Node: "n1", Action: "transfer"})

	src := &fakeSource{candidates: []scheduler.Candidate{{WorkflowID: w.WorkflowID, StepIndex: 0, Node: "n1"}}}
	require.True(t, e.RunNextStep(context.Background(), src))
	e.Wait()

	got, err := backend.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.True(t, got.Status.Completed, "a successful get_action_result fallback completes the workflow")
	require.Equal(t, result.ActionStatusSucceeded, got.Steps[0].Status)
	require.Equal(t, actionID, got.Steps[0].Result.ActionID)
}

func TestRunStep_DataPromotedToDatapointsAndFedForward(t *testing.T) {
	client := &fakeClient{result: &result.ActionResult{
		Status: result.ActionStatusSucceeded,
		Data:   map[string]any{"volume_read": 42},
	}}
	e, backend := newTestEngine(t, client)

	w := workflow.FromDefinition(&workflow.Definition{
		Name: "assay",
		Parameters: workflow.Parameters{
			FeedForward: []workflow.FeedForward{{Key: "upstream_volume", Step: workflow.StepRef{IsIndex: true, Index: 0}, DataType: workflow.FeedForwardJSON}},
		},
		Steps: []workflow.Step{
			{Name: "read", Node: "n1", Action: "read", DataLabels: map[string]string{"volume_read": "vol"}},
			{Name: "use", Node: "n1", Action: "use"},
		},
	}, id.SystemClock{})
	w.Submit()
	require.NoError(t, backend.CreateWorkflow(context.Background(), w))

	src := &fakeSource{candidates: []scheduler.Candidate{{WorkflowID: w.WorkflowID, StepIndex: 0, Node: "n1"}}}
	require.True(t, e.RunNextStep(context.Background(), src))
	e.Wait()

	got, err := backend.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.NotEmpty(t, got.Steps[0].Result.Datapoints["volume_read"])
	require.Empty(t, got.Steps[0].Result.Data)
	require.EqualValues(t, 42, got.ParameterValues["upstream_volume"])
	require.True(t, got.Status.Running)
	require.Equal(t, 1, got.Status.CurrentStepIndex)
}

type blockingClient struct {
	fakeClient
}

func (b *blockingClient) SendAction(ctx context.Context, actionName string, args map[string]any, files map[string]string) (*result.ActionResult, error) {
	<-ctx.Done()
	return nil, &wcerrors.TransportError{Node: "n1", Op: "send_action", Message: ctx.Err().Error(), Cause: ctx.Err()}
}

func TestRunStep_TimeoutFailsWithStepTimeout(t *testing.T) {
	backend := state.New(id.SystemClock{})
	resolver := param.New(newMemStore())
	factory := func(ctx context.Context, nodeName string) (nodeclient.Client, error) {
		return &blockingClient{}, nil
	}
	e := New(backend, resolver, alwaysTrueEval{}, factory, id.SystemClock{}, WithDefaultTimeout(10*time.Millisecond))
	w := submitWorkflow(t, backend, workflow.Step{Name: "only-step", Node: "n1", Action: "transfer"})

	src := &fakeSource{candidates: []scheduler.Candidate{{WorkflowID: w.WorkflowID, StepIndex: 0, Node: "n1"}}}
	require.True(t, e.RunNextStep(context.Background(), src))
	e.Wait()

	got, err := backend.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.True(t, got.Status.Failed)
	require.Equal(t, result.ActionStatusFailed, got.Steps[0].Status)
	require.Equal(t, "StepTimeout", got.Steps[0].Result.Errors[0].ErrorType)
}

func TestRunStep_CancelledWorkflowFinalizesCancelled(t *testing.T) {
	e, backend := newTestEngine(t, &fakeClient{result: &result.ActionResult{Status: result.ActionStatusSucceeded}})
	w := submitWorkflow(t, backend, workflow.Step{Name: "only-step", Node: "n1", Action: "transfer"})

	_, err := backend.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
		w.Status.Cancelled = true
		return nil
	})
	require.NoError(t, err)

	src := &fakeSource{candidates: []scheduler.Candidate{{WorkflowID: w.WorkflowID, StepIndex: 0, Node: "n1"}}}
	require.True(t, e.RunNextStep(context.Background(), src))
	e.Wait()

	got, err := backend.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.Equal(t, result.ActionStatusCancelled, got.Steps[0].Status)
}

func TestRetryWorkflow_ResetsStepsAndReenqueues(t *testing.T) {
	e, backend := newTestEngine(t, &fakeClient{})
	w := submitWorkflow(t, backend, workflow.Step{Name: "only-step", Node: "n1", Action: "transfer"})

	_, err := backend.UpdateWorkflow(context.Background(), w.WorkflowID, func(w *workflow.Workflow) error {
		w.Status.Queued = false
		w.Status.Failed = true
		w.Steps[0].Status = result.ActionStatusFailed
		w.Steps[0].Result = &result.ActionResult{Status: result.ActionStatusFailed}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.RetryWorkflow(context.Background(), w.WorkflowID, 0))

	got, err := backend.GetWorkflow(context.Background(), w.WorkflowID)
	require.NoError(t, err)
	require.False(t, got.Status.Failed)
	require.True(t, got.Status.Queued)
	require.Equal(t, result.ActionStatusNotStarted, got.Steps[0].Status)
	require.Nil(t, got.Steps[0].Result)

	queue, err := backend.ListQueue(context.Background())
	require.NoError(t, err)
	require.Contains(t, queue, w.WorkflowID)
}
