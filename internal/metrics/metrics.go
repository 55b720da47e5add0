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

// Package metrics collects OpenTelemetry metrics for the scheduler and
// execution engine, exported to Prometheus via the otel/exporters/prometheus
// bridge so operators can scrape a standard /metrics endpoint.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Collector implements both internal/scheduler.Metrics and
// internal/engine.Metrics against a single otel Meter, so scheduler and
// engine signals land under one namespace and one Prometheus registry.
type Collector struct {
	tickDuration    metric.Float64Histogram
	stepDuration    metric.Float64Histogram
	dispatchesTotal metric.Int64Counter

	queueDepthMu sync.RWMutex
	queueDepth   int64
}

// New builds a Collector using meterProvider's "workcell" meter.
func New(meterProvider metric.MeterProvider) (*Collector, error) {
	meter := meterProvider.Meter("workcell")
	c := &Collector{}

	var err error
	c.tickDuration, err = meter.Float64Histogram(
		"workcell_scheduler_tick_duration_seconds",
		metric.WithDescription("Scheduler tick evaluation duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	c.stepDuration, err = meter.Float64Histogram(
		"workcell_step_duration_seconds",
		metric.WithDescription("Step dispatch duration by node"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	c.dispatchesTotal, err = meter.Int64Counter(
		"workcell_dispatches_total",
		metric.WithDescription("Total step dispatches by node and terminal status"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"workcell_queue_depth",
		metric.WithDescription("Number of workflows currently queued"),
		metric.WithUnit("{workflow}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			c.queueDepthMu.RLock()
			depth := c.queueDepth
			c.queueDepthMu.RUnlock()
			observer.Observe(depth)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// ObserveTick implements internal/scheduler.Metrics.
func (c *Collector) ObserveTick(d time.Duration) {
	c.tickDuration.Record(context.Background(), d.Seconds())
}

// SetQueueDepth implements internal/scheduler.Metrics.
func (c *Collector) SetQueueDepth(n int) {
	c.queueDepthMu.Lock()
	c.queueDepth = int64(n)
	c.queueDepthMu.Unlock()
}

// ObserveStepDuration implements internal/engine.Metrics.
func (c *Collector) ObserveStepDuration(node string, d time.Duration) {
	c.stepDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(attribute.String("node", node)))
}

// IncDispatch implements internal/engine.Metrics.
func (c *Collector) IncDispatch(node, status string) {
	c.dispatchesTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("node", node),
		attribute.String("status", status),
	))
}
