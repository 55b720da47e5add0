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

// Package scheduler implements the workcell orchestration core's
// scheduler: a single cooperative tick loop that snapshots the workflow
// queue and node registry, picks at most one ready step per workflow per
// tick, and hands ready workflow IDs to the execution engine through Next.
//
// The scheduler is pure with respect to external effects: every state
// change it makes goes through the state handler.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/madsci-lab/workcell/internal/log"
	"github.com/madsci-lab/workcell/internal/state"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/param"
	"github.com/madsci-lab/workcell/pkg/result"
	"github.com/madsci-lab/workcell/pkg/workflow"
)

// Candidate is a workflow the scheduler has determined is ready to
// dispatch its current step, handed off to the engine via Next.
type Candidate struct {
	WorkflowID id.ID
	StepIndex  int
	Node       string
}

// Metrics receives scheduler observability signals (tick latency and
// queue depth gauges). Nil-safe: a nil Metrics is never called.
type Metrics interface {
	ObserveTick(d time.Duration)
	SetQueueDepth(n int)
}

// conditionEvaluator mirrors pkg/param.conditionEvaluator so the
// scheduler doesn't need to import the unexported type.
type conditionEvaluator interface {
	Evaluate(expr string, ctx map[string]any) (bool, error)
}

// Scheduler is the single-threaded cooperative tick loop that decides
// which workflow dispatches next.
type Scheduler struct {
	backend  state.Backend
	resolver *param.Resolver
	eval     conditionEvaluator
	clock    id.Clock
	interval time.Duration
	logger   *slog.Logger
	metrics  Metrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	candMu     sync.Mutex
	candidates []Candidate
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithInterval overrides the default ~1s tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithMetrics attaches a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New builds a Scheduler against backend, using resolver to resolve step
// node placeholders and eval to check step.conditions.
func New(backend state.Backend, resolver *param.Resolver, eval conditionEvaluator, clock id.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		backend:  backend,
		resolver: resolver,
		eval:     eval,
		clock:    clock,
		interval: time.Second,
		logger:   log.WithComponent(log.New(log.DefaultConfig()), "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the tick loop in a background goroutine until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Next pops the oldest pending candidate produced by the most recent
// Tick, or returns ok=false if none is available.
func (s *Scheduler) Next(ctx context.Context) (Candidate, bool) {
	s.candMu.Lock()
	defer s.candMu.Unlock()
	if len(s.candidates) == 0 {
		return Candidate{}, false
	}
	c := s.candidates[0]
	s.candidates = s.candidates[1:]
	return c, true
}

// Tick runs one scheduling pass: snapshot the
// queue, evaluate readiness for each workflow in priority/FIFO order, and
// record at most one dispatch candidate per node.
func (s *Scheduler) Tick(ctx context.Context) error {
	start := s.clock.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveTick(s.clock.Now().Sub(start))
		}
	}()

	queue, err := s.backend.ListQueue(ctx)
	if err != nil {
		return fmt.Errorf("listing queue: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SetQueueDepth(len(queue))
	}

	workflows := make([]*workflow.Workflow, 0, len(queue))
	for _, wfID := range queue {
		w, err := s.backend.GetWorkflow(ctx, wfID)
		if err != nil {
			s.logger.Warn("queued workflow missing from store", "workflow_id", wfID.String(), "error", err)
			continue
		}
		if w.Status.Paused || w.Status.Cancelled || w.Status.Terminal() {
			continue
		}
		workflows = append(workflows, w)
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		pi, pj := workflows[i].SchedulerMetadata.Priority, workflows[j].SchedulerMetadata.Priority
		if pi != pj {
			return pi > pj
		}
		return workflows[i].SubmittedTime.Before(workflows[j].SubmittedTime)
	})

	claimedNodes := make(map[string]bool)
	var ready []Candidate

	for _, w := range workflows {
		step := w.CurrentStep()
		if step == nil {
			continue
		}

		resolved, err := s.resolver.Resolve(w, *step)
		nodeName := step.Node
		if err == nil {
			nodeName = resolved.Node
		}

		// Already handed to the engine, or mid-dispatch: producing a
		// second candidate for the same step would double-dispatch it.
		// The node stays claimed so no other workflow is sent to it
		// this tick.
		if w.SchedulerMetadata.ReadyToRun || step.Status == result.ActionStatusRunning {
			if nodeName != "" {
				claimedNodes[nodeName] = true
			}
			continue
		}

		if nodeName == "" || !s.nodeKnown(ctx, nodeName) {
			if _, ferr := s.backend.UpdateWorkflow(ctx, w.WorkflowID, func(w *workflow.Workflow) error {
				w.Status.Queued = false
				w.Status.Failed = true
				w.SchedulerMetadata.ReadyToRun = false
				w.SchedulerMetadata.Reason = "unknown node"
				return nil
			}); ferr != nil {
				s.logger.Error("failed to mark workflow failed for unknown node", "workflow_id", w.WorkflowID.String(), "error", ferr)
			}
			continue
		}

		if claimedNodes[nodeName] {
			continue
		}

		entry, ok, err := s.backend.GetNode(ctx, nodeName)
		if err != nil || !ok || !entry.Status.Dispatchable() {
			s.markNotReady(ctx, w, "node not dispatchable")
			continue
		}

		satisfied, err := param.ConditionsSatisfied(s.eval, w, step)
		if err != nil {
			s.markNotReady(ctx, w, fmt.Sprintf("condition evaluation error: %v", err))
			continue
		}
		if !satisfied {
			s.markNotReady(ctx, w, "step conditions not satisfied")
			continue
		}

		claimedNodes[nodeName] = true
		ready = append(ready, Candidate{WorkflowID: w.WorkflowID, StepIndex: w.Status.CurrentStepIndex, Node: nodeName})

		if _, err := s.backend.UpdateWorkflow(ctx, w.WorkflowID, func(w *workflow.Workflow) error {
			w.SchedulerMetadata.ReadyToRun = true
			w.SchedulerMetadata.Reason = "dispatched"
			return nil
		}); err != nil {
			s.logger.Error("failed to mark workflow ready", "workflow_id", w.WorkflowID.String(), "error", err)
		}
	}

	s.candMu.Lock()
	s.candidates = append(s.candidates, ready...)
	s.candMu.Unlock()

	return nil
}

func (s *Scheduler) nodeKnown(ctx context.Context, name string) bool {
	_, ok, err := s.backend.GetNode(ctx, name)
	return err == nil && ok
}

func (s *Scheduler) markNotReady(ctx context.Context, w *workflow.Workflow, reason string) {
	if _, err := s.backend.UpdateWorkflow(ctx, w.WorkflowID, func(w *workflow.Workflow) error {
		w.SchedulerMetadata.ReadyToRun = false
		w.SchedulerMetadata.Reason = reason
		return nil
	}); err != nil {
		s.logger.Error("failed to record not-ready reason", "workflow_id", w.WorkflowID.String(), "error", err)
	}
}
