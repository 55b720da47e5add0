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

// Package engine implements the workcell orchestration core's execution
// engine: it pulls ready candidates from the scheduler,
// dispatches each step's action against the resolved node with at most
// one in-flight call per node, promotes result data to the datapoint
// store, applies feed-forward, and persists the outcome through the
// state handler.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/madsci-lab/workcell/internal/log"
	"github.com/madsci-lab/workcell/internal/scheduler"
	"github.com/madsci-lab/workcell/internal/state"
	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/nodeclient"
	"github.com/madsci-lab/workcell/pkg/param"
	"github.com/madsci-lab/workcell/pkg/result"
	"github.com/madsci-lab/workcell/pkg/workflow"
)

// candidateSource is satisfied by *scheduler.Scheduler; declared locally
// so engine tests can supply a fake without constructing a real
// scheduler loop.
type candidateSource interface {
	Next(ctx context.Context) (scheduler.Candidate, bool)
}

// ClientFactory resolves a node name to a live nodeclient.Client.
type ClientFactory func(ctx context.Context, nodeName string) (nodeclient.Client, error)

// conditionEvaluator mirrors pkg/param.conditionEvaluator.
type conditionEvaluator interface {
	Evaluate(expr string, ctx map[string]any) (bool, error)
}

// Metrics receives engine observability signals.
type Metrics interface {
	ObserveStepDuration(node string, d time.Duration)
	IncDispatch(node, status string)
}

// Engine dispatches ready steps against their nodes and drives each
// workflow's status machine from the results.
type Engine struct {
	backend  state.Backend
	resolver *param.Resolver
	eval     conditionEvaluator
	clients  ClientFactory
	clock    id.Clock

	defaultTimeout time.Duration
	concurrency    int

	logger  *slog.Logger
	metrics Metrics

	nodeLocksMu sync.Mutex
	nodeLocks   map[string]chan struct{}

	wg sync.WaitGroup
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithDefaultTimeout overrides the default per-step timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) { e.defaultTimeout = d }
}

// WithMetrics attaches a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an Engine. clients resolves a node name to a live client;
// resolver and eval are the same parameter-resolution and
// condition-evaluation collaborators the scheduler uses.
func New(backend state.Backend, resolver *param.Resolver, eval conditionEvaluator, clients ClientFactory, clock id.Clock, opts ...Option) *Engine {
	e := &Engine{
		backend:        backend,
		resolver:       resolver,
		eval:           eval,
		clients:        clients,
		clock:          clock,
		defaultTimeout: 5 * time.Minute,
		logger:         log.WithComponent(log.New(log.DefaultConfig()), "engine"),
		nodeLocks:      make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Wait blocks until every in-flight runStep goroutine has returned. Used
// during graceful shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) acquireNode(ctx context.Context, nodeName string) (release func(), err error) {
	e.nodeLocksMu.Lock()
	sem, ok := e.nodeLocks[nodeName]
	if !ok {
		sem = make(chan struct{}, 1)
		e.nodeLocks[nodeName] = sem
	}
	e.nodeLocksMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunNextStep is the engine's entry point:
// ask src for a candidate, atomically transition the workflow to
// running, and dispatch run_step on a worker goroutine. Returns false if
// src had no candidate.
func (e *Engine) RunNextStep(ctx context.Context, src candidateSource) bool {
	cand, ok := src.Next(ctx)
	if !ok {
		return false
	}

	_, err := e.backend.UpdateWorkflow(ctx, cand.WorkflowID, func(w *workflow.Workflow) error {
		w.Status.Queued = false
		w.Status.Running = true
		w.SchedulerMetadata.ReadyToRun = false
		if w.StartTime == nil {
			now := e.clock.Now()
			w.StartTime = &now
		}
		// Mark the step in flight so the scheduler won't hand it out
		// again and restart recovery knows its result is indeterminate.
		if step := w.CurrentStep(); step != nil {
			step.Status = result.ActionStatusRunning
		}
		return nil
	})
	if err != nil {
		e.logger.Error("failed to transition workflow to running", "workflow_id", cand.WorkflowID.String(), "error", err)
		return true
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runStep(ctx, cand.WorkflowID)
	}()
	return true
}

// runStep executes one step end to end: resolve parameters, dispatch the
// action, promote outputs, feed results forward, and finalize.
func (e *Engine) runStep(ctx context.Context, workflowID id.ID) {
	w, err := e.backend.GetWorkflow(ctx, workflowID)
	if err != nil {
		e.logger.Error("failed to read workflow for step execution", "workflow_id", workflowID.String(), "error", err)
		return
	}

	idx := w.Status.CurrentStepIndex

	if w.Status.Cancelled {
		e.finalizeStep(ctx, workflowID, idx, &result.ActionResult{Status: result.ActionStatusCancelled})
		return
	}

	step := w.CurrentStep()
	if step == nil {
		return
	}

	resolved, err := e.resolver.Resolve(w, *step)
	if err != nil {
		e.finalizeStep(ctx, workflowID, idx, &result.ActionResult{
			Status: result.ActionStatusFailed,
			Errors: []*result.Error{result.NewError("ParameterResolutionError", err.Error())},
		})
		return
	}

	satisfied, err := param.ConditionsSatisfied(e.eval, w, step)
	if err != nil {
		e.finalizeStep(ctx, workflowID, idx, &result.ActionResult{
			Status: result.ActionStatusNotReady,
			Errors: []*result.Error{result.NewError("ConditionEvaluationError", err.Error())},
		})
		return
	}
	if !satisfied {
		e.finalizeStep(ctx, workflowID, idx, &result.ActionResult{Status: result.ActionStatusNotReady})
		return
	}

	release, err := e.acquireNode(ctx, resolved.Node)
	if err != nil {
		e.finalizeStep(ctx, workflowID, idx, result.Unknown(id.New(e.clock), err))
		return
	}
	defer release()

	client, err := e.clients(ctx, resolved.Node)
	if err != nil {
		e.finalizeStep(ctx, workflowID, idx, result.Unknown(id.New(e.clock), err))
		return
	}

	timeout := time.Duration(step.Timeout) * time.Second
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.clock.Now()
	actionResult, err := client.SendAction(callCtx, resolved.Action, resolved.Args, resolved.Files)
	if e.metrics != nil {
		e.metrics.ObserveStepDuration(resolved.Node, e.clock.Now().Sub(start))
	}

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			actionResult = &result.ActionResult{
				Status: result.ActionStatusFailed,
				Errors: []*result.Error{result.NewError("StepTimeout", fmt.Sprintf("step %q exceeded its %v timeout", step.Name, timeout))},
			}
		} else {
			actionResult = e.fallbackResult(ctx, client, err)
		}
	}
	if e.metrics != nil {
		e.metrics.IncDispatch(resolved.Node, string(actionResult.Status))
	}

	e.handleDataAndFiles(ctx, step, actionResult)

	e.finalizeStep(ctx, workflowID, idx, actionResult)
}

// fallbackResult handles a send_action transport exception: attempt
// exactly one get_action_result fallback when the
// failure carries an action ID the node already accepted; otherwise
// synthesize UNKNOWN directly.
func (e *Engine) fallbackResult(ctx context.Context, client nodeclient.Client, sendErr error) *result.ActionResult {
	var transportErr *wcerrors.TransportError
	if !wcerrors.As(sendErr, &transportErr) || transportErr.ActionID == "" {
		return result.Unknown(id.New(e.clock), sendErr)
	}

	actionID := id.ID(transportErr.ActionID)
	fallback, err := client.GetActionResult(ctx, actionID)
	if err != nil {
		return result.Unknown(actionID, sendErr)
	}
	return fallback
}

// handleDataAndFiles promotes each labeled result entry to the datapoint
// store, rewriting data/files/datapoints in place to reference datapoint
// IDs.
func (e *Engine) handleDataAndFiles(ctx context.Context, step *workflow.Step, res *result.ActionResult) {
	if res == nil || len(step.DataLabels) == 0 {
		return
	}
	if res.Datapoints == nil {
		res.Datapoints = make(map[string]string)
	}

	for key, label := range step.DataLabels {
		if value, ok := res.Data[key]; ok {
			dpID, err := e.resolver.Store.PutValue(ctx, label, value)
			if err != nil {
				e.logger.Error("failed to promote data value to datapoint store", "key", key, "label", label, "error", err)
				continue
			}
			res.Datapoints[key] = dpID.String()
			delete(res.Data, key)
			continue
		}
		if path, ok := res.Files[key]; ok {
			dpID, err := e.resolver.Store.PutFile(ctx, label, path)
			if err != nil {
				e.logger.Error("failed to promote file to datapoint store", "key", key, "label", label, "error", err)
				continue
			}
			res.Datapoints[key] = dpID.String()
			delete(res.Files, key)
		}
	}
}

// finalizeStep persists the updated step, applies feed-forward, and
// advances or terminates the workflow based on the step's outcome status.
func (e *Engine) finalizeStep(ctx context.Context, workflowID id.ID, stepIndex int, res *result.ActionResult) {
	_, err := e.backend.UpdateWorkflow(ctx, workflowID, func(w *workflow.Workflow) error {
		if stepIndex < 0 || stepIndex >= len(w.Steps) {
			return nil
		}
		step := &w.Steps[stepIndex]
		step.Result = res
		step.Status = res.Status

		// Cancellation that arrived while the node call was in flight:
		// record the result but do not advance or complete, so the
		// cancelled flag stays the single terminal outcome.
		if w.Status.Cancelled && res.Status != result.ActionStatusCancelled {
			w.Status.Running = false
			return nil
		}

		if res.Status == result.ActionStatusSucceeded {
			if err := e.resolver.FeedForward(ctx, w, stepIndex); err != nil {
				step.Status = result.ActionStatusFailed
				step.Result.Errors = append(step.Result.Errors, result.NewError("FeedForwardError", err.Error()))
			}
		}

		switch step.Status {
		case result.ActionStatusSucceeded:
			w.Status.CurrentStepIndex++
			if w.Status.CurrentStepIndex >= len(w.Steps) {
				w.Status.Completed = true
				w.Status.Running = false
				now := e.clock.Now()
				w.EndTime = &now
			}
		case result.ActionStatusFailed:
			w.Status.Failed = true
			w.Status.Running = false
			now := e.clock.Now()
			w.EndTime = &now
		case result.ActionStatusCancelled:
			w.Status.Cancelled = true
			w.Status.Running = false
			now := e.clock.Now()
			w.EndTime = &now
		case result.ActionStatusNotReady:
			w.Status.Running = false
			w.Status.Queued = true
			w.SchedulerMetadata.ReadyToRun = false
			w.SchedulerMetadata.Reason = "step not ready"
		default: // UNKNOWN: both the blocking call and the status/result
			// fallback were exhausted; fail the workflow rather
			// than requeue it, or the scheduler would re-dispatch the same
			// step against the same broken node every tick.
			w.Status.Failed = true
			w.Status.Running = false
			now := e.clock.Now()
			w.EndTime = &now
		}
		return nil
	})
	if err != nil {
		e.logger.Error("failed to finalize step", "workflow_id", workflowID.String(), "step_index", stepIndex, "error", err)
	}
}

// RetryWorkflow clears the workflow's terminal flags, rewinds
// current_step_index to index, resets every step from index onward to
// NOT_STARTED, and re-enqueues it.
func (e *Engine) RetryWorkflow(ctx context.Context, workflowID id.ID, index int) error {
	_, err := e.backend.UpdateWorkflow(ctx, workflowID, func(w *workflow.Workflow) error {
		if index < 0 || index > len(w.Steps) {
			return &wcerrors.ValidationError{Field: "index", Message: "retry index out of range"}
		}
		w.Status.Failed = false
		w.Status.Cancelled = false
		w.Status.Completed = false
		w.Status.Queued = true
		w.Status.Running = false
		w.Status.CurrentStepIndex = index
		w.EndTime = nil
		for i := index; i < len(w.Steps); i++ {
			w.Steps[i].Reset()
		}
		return nil
	})
	return err
}
