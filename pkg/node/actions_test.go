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
	"errors"
	"testing"
	"time"

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/result"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n := New("pipette-1", "pipette_module", "1.0.0", testClock(), nil)
	n.Ready()
	return n
}

func TestActionLifecycle_Succeeds(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.RegisterAction("transfer", []ArgSpec{
		{Name: "volume", Type: "number", Required: true},
	}, nil, nil, true, func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error) {
		require.Equal(t, 100.0, req.Args["volume"])
		return &result.ActionResult{Status: result.ActionStatusSucceeded}, nil
	}))

	actionID, failure := n.CreateAction("transfer", map[string]any{"volume": 100.0})
	require.Nil(t, failure)
	require.NotEmpty(t, actionID)

	res := n.Start(context.Background(), actionID)
	require.Equal(t, result.ActionStatusSucceeded, res.Status)
	require.Equal(t, actionID, res.ActionID)

	// idempotent re-read
	again := n.GetResult(actionID)
	require.Equal(t, res, again)
	require.False(t, n.Status().Errored)
}

func TestCreateAction_UnknownActionFails(t *testing.T) {
	n := newTestNode(t)
	actionID, failure := n.CreateAction("nonexistent", nil)
	require.NotNil(t, failure)
	require.Equal(t, result.ActionStatusFailed, failure.Status)
	require.Equal(t, "ActionNotImplemented", failure.Errors[0].ErrorType)
	require.NotEmpty(t, actionID)
}

func TestCreateAction_MissingRequiredArgFails(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.RegisterAction("transfer", []ArgSpec{
		{Name: "volume", Type: "number", Required: true},
	}, nil, nil, false, func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error) {
		return &result.ActionResult{Status: result.ActionStatusSucceeded}, nil
	}))

	_, failure := n.CreateAction("transfer", map[string]any{})
	require.NotNil(t, failure)
	require.Equal(t, "ActionMissingArgument", failure.Errors[0].ErrorType)
	require.False(t, n.Status().Errored, "validation failures must not mark the node errored")
}

func TestStart_MissingRequiredFileFails(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.RegisterAction("run_protocol", nil, []FileSpec{
		{Name: "protocol", Required: true},
	}, nil, false, func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error) {
		return &result.ActionResult{Status: result.ActionStatusSucceeded}, nil
	}))

	actionID, failure := n.CreateAction("run_protocol", nil)
	require.Nil(t, failure)

	res := n.Start(context.Background(), actionID)
	require.Equal(t, result.ActionStatusFailed, res.Status)
	require.Equal(t, "ActionMissingFile", res.Errors[0].ErrorType)
	require.False(t, n.Status().Errored)
}

func TestUpload_ThenStart_Succeeds(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.RegisterAction("run_protocol", nil, []FileSpec{
		{Name: "protocol", Required: true},
	}, nil, false, func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error) {
		require.Equal(t, "/tmp/protocol.json", req.Files["protocol"])
		return &result.ActionResult{Status: result.ActionStatusSucceeded}, nil
	}))

	actionID, failure := n.CreateAction("run_protocol", nil)
	require.Nil(t, failure)

	uploadErr := n.Upload(actionID, "protocol", "/tmp/protocol.json")
	require.Nil(t, uploadErr)

	res := n.Start(context.Background(), actionID)
	require.Equal(t, result.ActionStatusSucceeded, res.Status)
}

func TestUpload_UnknownActionFails(t *testing.T) {
	n := newTestNode(t)
	err := n.Upload(id.New(testClock()), "protocol", "/tmp/x")
	require.NotNil(t, err)
	require.Equal(t, "ActionNotFound", err.ErrorType)
}

func TestStart_HandlerErrorMarksNodeErrored(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.RegisterAction("move", nil, nil, nil, true, func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error) {
		return nil, errors.New("motor stalled")
	}))

	actionID, _ := n.CreateAction("move", nil)
	res := n.Start(context.Background(), actionID)

	require.Equal(t, result.ActionStatusFailed, res.Status)
	require.Equal(t, "ActionException", res.Errors[0].ErrorType)
	require.True(t, n.Status().Errored, "runtime failures must mark the node errored")
}

func TestStart_HandlerPanicRecovered(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.RegisterAction("move", nil, nil, nil, true, func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error) {
		panic("unexpected nil pointer")
	}))

	actionID, _ := n.CreateAction("move", nil)

	var res *result.ActionResult
	require.NotPanics(t, func() {
		res = n.Start(context.Background(), actionID)
	})
	require.Equal(t, result.ActionStatusFailed, res.Status)
	require.Equal(t, "ActionException", res.Errors[0].ErrorType)
}

func TestStart_BlockingActionTogglesBusy(t *testing.T) {
	n := newTestNode(t)
	observedBusy := false
	require.NoError(t, n.RegisterAction("move", nil, nil, nil, true, func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error) {
		observedBusy = n.Status().Busy
		return &result.ActionResult{Status: result.ActionStatusSucceeded}, nil
	}))

	actionID, _ := n.CreateAction("move", nil)
	n.Start(context.Background(), actionID)

	require.True(t, observedBusy)
	require.False(t, n.Status().Busy)
	require.NotContains(t, n.Status().RunningActions, actionID)
}

func TestStart_IsIdempotent(t *testing.T) {
	n := newTestNode(t)
	calls := 0
	require.NoError(t, n.RegisterAction("move", nil, nil, nil, false, func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error) {
		calls++
		return &result.ActionResult{Status: result.ActionStatusSucceeded}, nil
	}))

	actionID, _ := n.CreateAction("move", nil)
	first := n.Start(context.Background(), actionID)
	second := n.Start(context.Background(), actionID)

	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
}

func TestStart_RejectsNewStartWhileBlockingActionBusy(t *testing.T) {
	n := newTestNode(t)
	release := make(chan struct{})
	require.NoError(t, n.RegisterAction("move", nil, nil, nil, true, func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error) {
		<-release
		return &result.ActionResult{Status: result.ActionStatusSucceeded}, nil
	}))

	firstID, _ := n.CreateAction("move", nil)
	done := make(chan *result.ActionResult, 1)
	go func() { done <- n.Start(context.Background(), firstID) }()

	require.Eventually(t, func() bool { return n.Status().Busy }, time.Second, time.Millisecond)

	secondID, _ := n.CreateAction("move", nil)
	res := n.Start(context.Background(), secondID)
	require.Equal(t, result.ActionStatusFailed, res.Status)
	require.Equal(t, "NodeBusy", res.Errors[0].ErrorType)

	close(release)
	first := <-done
	require.Equal(t, result.ActionStatusSucceeded, first.Status)
}

func TestGetResult_UnknownActionIsUnknown(t *testing.T) {
	n := newTestNode(t)
	res := n.GetResult(id.New(testClock()))
	require.Equal(t, result.ActionStatusUnknown, res.Status)
	require.Equal(t, "ActionNotFound", res.Errors[0].ErrorType)
}

func TestGetResult_BeforeStartIsRunning(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.RegisterAction("move", nil, nil, nil, false, func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error) {
		return &result.ActionResult{Status: result.ActionStatusSucceeded}, nil
	}))

	actionID, _ := n.CreateAction("move", nil)
	res := n.GetResult(actionID)
	require.Equal(t, result.ActionStatusRunning, res.Status)
}
