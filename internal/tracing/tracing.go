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

// Package tracing wires up the OpenTelemetry SDK for the workcell daemon:
// one TracerProvider exporting spans to stdout and one MeterProvider
// bridged to Prometheus. StartTickSpan and StartDispatchSpan build a span
// for one scheduler tick and one step dispatch; the scheduler and engine
// do not call them, so the daemon's spans are the HTTP control plane's
// per-request spans.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps the OpenTelemetry SDK providers the daemon needs: a
// TracerProvider for span-per-tick/span-per-dispatch instrumentation and a
// MeterProvider bridged to Prometheus for internal/metrics.
type Provider struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// New builds a Provider for serviceName/version. Spans are exported to
// stdout; swap in an OTLP exporter
// by adding a trace.SpanExporter built from the daemon's config once a
// collector endpoint is configured.
func New(serviceName, version string) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("building stdout trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("building prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)

	return &Provider{tp: tp, mp: mp}, nil
}

// Tracer returns a tracer for the named instrumentation scope (e.g.
// "scheduler", "engine").
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// MeterProvider exposes the Prometheus-bridged MeterProvider for
// internal/metrics.New.
func (p *Provider) MeterProvider() *sdkmetric.MeterProvider {
	return p.mp
}

// Shutdown flushes and releases both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	return p.mp.Shutdown(ctx)
}

// StartTickSpan starts a span around one scheduler tick evaluation.
func StartTickSpan(ctx context.Context, tracer trace.Tracer) (context.Context, trace.Span) {
	return tracer.Start(ctx, "scheduler.tick", trace.WithSpanKind(trace.SpanKindInternal))
}

// StartDispatchSpan starts a span around one step dispatch,
// tagged with the workflow/step/node identifying the call.
func StartDispatchSpan(ctx context.Context, tracer trace.Tracer, workflowID, node string, stepIndex int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("workcell.workflow_id", workflowID),
			attribute.String("workcell.node", node),
			attribute.Int("workcell.step_index", stepIndex),
		),
	)
}

// EndWithError records err (if any) on the span's status before ending it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
