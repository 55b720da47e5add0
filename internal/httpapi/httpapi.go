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

// Package httpapi is the workcell orchestration core's HTTP control
// plane: workflow submission and retrieval, workflow definition
// storage with name-scoped versioning, the node registry, locations, and
// the admin-command proxy, all layered over a plain net/http.ServeMux.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/madsci-lab/workcell/internal/engine"
	"github.com/madsci-lab/workcell/internal/log"
	"github.com/madsci-lab/workcell/internal/state"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/nodeclient"
	"github.com/madsci-lab/workcell/pkg/param"
)

// headerRequestID is the correlation header accepted on the way in and
// always set on the way out.
const headerRequestID = "X-Request-ID"

// Server is the workcell HTTP control plane. It holds no workflow logic of
// its own: every handler is a thin translation from an HTTP verb to a
// state.Backend/param.Resolver/internal/engine call.
type Server struct {
	mux *http.ServeMux

	backend  state.Backend
	resolver *param.Resolver
	engine   *engine.Engine
	clients  engine.ClientFactory
	clock    id.Clock

	tracer trace.Tracer
	logger *slog.Logger
}

// Option configures optional Server fields.
type Option func(*Server)

// WithTracer attaches a tracer used to wrap incoming requests in spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) { s.tracer = tracer }
}

// WithLogger overrides the server's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer builds the control plane's route table over backend, resolver,
// eng (for retry_workflow), and clients (for node registration and the
// admin-command proxy).
func NewServer(backend state.Backend, resolver *param.Resolver, eng *engine.Engine, clients engine.ClientFactory, clock id.Clock, opts ...Option) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		backend:  backend,
		resolver: resolver,
		engine:   eng,
		clients:  clients,
		clock:    clock,
		logger:   log.WithComponent(log.New(log.DefaultConfig()), "httpapi"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /v1/health", s.handleHealth)

	s.mux.HandleFunc("POST /v1/workflows", s.handleSubmitWorkflow)
	s.mux.HandleFunc("GET /v1/workflows", s.handleListWorkflows)
	s.mux.HandleFunc("GET /v1/workflows/queue", s.handleWorkflowQueue)
	s.mux.HandleFunc("GET /v1/workflows/{id}", s.handleGetWorkflow)
	s.mux.HandleFunc("POST /v1/workflows/{id}/cancel", s.handleCancelWorkflow)
	s.mux.HandleFunc("POST /v1/workflows/{id}/pause", s.handlePauseWorkflow)
	s.mux.HandleFunc("POST /v1/workflows/{id}/resume", s.handleResumeWorkflow)
	s.mux.HandleFunc("POST /v1/workflows/{id}/retry", s.handleRetryWorkflow)
	s.mux.HandleFunc("GET /v1/workflows/{id}/steps/{index}/result", s.handleGetStepResult)

	s.mux.HandleFunc("POST /v1/workflow_definitions", s.handlePutDefinition)
	s.mux.HandleFunc("GET /v1/workflow_definitions/{id}", s.handleGetDefinition)

	s.mux.HandleFunc("POST /v1/nodes", s.handleRegisterNode)
	s.mux.HandleFunc("GET /v1/nodes", s.handleListNodes)
	s.mux.HandleFunc("GET /v1/nodes/{name}", s.handleGetNode)
	s.mux.HandleFunc("POST /v1/nodes/{name}/admin/{command}", s.handleNodeAdmin)

	s.mux.HandleFunc("PUT /v1/locations", s.handlePutLocation)
	s.mux.HandleFunc("GET /v1/locations", s.handleListLocations)
	s.mux.HandleFunc("POST /v1/locations/{id}/attach_resource", s.handleAttachResource)
	s.mux.HandleFunc("DELETE /v1/locations/{id}", s.handleDeleteLocation)

	s.mux.HandleFunc("GET /v1/state", s.handleWorkcellState)

	return s
}

// Handler returns the server's root http.Handler, wrapped, innermost to
// outermost, in a per-request span (when WithTracer attached a tracer),
// logging, and request-ID middleware.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.tracer != nil {
		inner := h
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
			defer span.End()
			inner.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	h = s.loggingMiddleware(h)
	h = s.requestIDMiddleware(h)
	return h
}

// SetMetricsHandler mounts a Prometheus scrape endpoint (e.g. the one
// returned by the OTel Prometheus exporter's registry) at GET /metrics.
func (s *Server) SetMetricsHandler(handler http.Handler) {
	s.mux.Handle("GET /metrics", handler)
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// requestIDMiddleware accepts an inbound X-Request-ID or mints a fresh
// UUID, stashing it in the request context and echoing it on the response.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(headerRequestID, reqID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			s.logger.Info("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", requestIDFromContext(r.Context())),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientFor builds a node client through the configured factory and
// returns the factory's error as it is.
func (s *Server) clientFor(ctx context.Context, nodeName string) (nodeclient.Client, error) {
	return s.clients(ctx, nodeName)
}
