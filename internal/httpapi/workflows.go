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

package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/param"
	"github.com/madsci-lab/workcell/pkg/workflow"
)

const maxSubmitBody = 64 << 20 // 64MiB, enough for typical file_inputs.

// handleSubmitWorkflow handles POST /v1/workflows (multipart: JSON data
// plus file parts): the caller references a
// previously registered definition and supplies submission-time JSON
// inputs plus file uploads as multipart form fields.
func (s *Server) handleSubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxSubmitBody); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}

	defID := r.FormValue("workflow_definition_id")
	if defID == "" {
		writeError(w, http.StatusBadRequest, "workflow_definition_id is required")
		return
	}

	def, err := s.backend.GetDefinition(r.Context(), id.ID(defID))
	if err != nil {
		writeAPIError(w, err)
		return
	}

	values := map[string]any{}
	if raw := r.FormValue("json_inputs"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json_inputs: %v", err))
			return
		}
	}

	files := map[string]string{}
	if r.MultipartForm != nil {
		for key, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			path, err := s.stageUpload(key, headers[0].Filename, r)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to stage file %q: %v", key, err))
				return
			}
			files[key] = path
		}
	}

	wf := workflow.FromDefinition(def, s.clock)

	var ownership workflow.Ownership
	if raw := r.FormValue("ownership"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ownership); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ownership: %v", err))
			return
		}
	}
	wf.Ownership = ownership

	if err := s.resolver.Bind(r.Context(), wf, param.SubmissionInput{Values: values, Files: files}); err != nil {
		writeAPIError(w, err)
		return
	}

	wf.Submit()

	if err := s.backend.CreateWorkflow(r.Context(), wf); err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, wf)
}

// stageUpload copies a multipart file part to a temp file and returns its
// path, matching the staging contract pkg/param.SubmissionInput.Files
// expects: a local path the resolver's datapoint store can read from.
func (s *Server) stageUpload(key, filename string, r *http.Request) (string, error) {
	file, _, err := r.FormFile(key)
	if err != nil {
		return "", err
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "workcell-upload-"+sanitizeFilename(key)+"-*")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, s)
}

// handleGetWorkflow handles GET /v1/workflows/{id}.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.backend.GetWorkflow(r.Context(), id.ID(r.PathValue("id")))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// handleListWorkflows handles GET /v1/workflows. By default it lists the
// active collection: every workflow not yet archived, terminal ones still
// inside the retention window included; ?archived=true lists the archive
// instead, optionally bounded by ?number= (or ?limit=).
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("archived") == "true" {
		limit := 100
		raw := r.URL.Query().Get("number")
		if raw == "" {
			raw = r.URL.Query().Get("limit")
		}
		if raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		workflows, err := s.backend.ListArchived(r.Context(), limit)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows, "count": len(workflows)})
		return
	}

	workflows, err := s.backend.ListActive(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows, "count": len(workflows)})
}

// handleWorkflowQueue handles GET /v1/workflows/queue: the scheduler's
// FIFO queue of workflow IDs, in dispatch order.
func (s *Server) handleWorkflowQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.backend.ListQueue(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": queue, "count": len(queue)})
}

// handleWorkcellState handles GET /v1/state: a composed snapshot of the
// workcell definition, active workflows, registered nodes, and locations.
func (s *Server) handleWorkcellState(w http.ResponseWriter, r *http.Request) {
	workcell, err := s.backend.GetWorkcell(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	workflows, err := s.backend.ListActive(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	nodes, err := s.backend.ListNodes(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	locations, err := s.backend.ListLocations(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workcell":  workcell,
		"workflows": workflows,
		"nodes":     nodes,
		"locations": locations,
	})
}

// handleGetStepResult handles GET /v1/workflows/{id}/steps/{index}/result:
// one step's recorded result, served from the active set or the archive
// without returning the whole workflow record.
func (s *Server) handleGetStepResult(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid step index: %v", err))
		return
	}
	res, err := s.backend.GetStepResult(r.Context(), id.ID(r.PathValue("id")), index)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCancelWorkflow handles POST /v1/workflows/{id}/cancel. It flips the
// Cancelled flag, a terminal state: the scheduler stops dispatching the
// workflow, and a step already in flight has its result recorded without
// advancing the workflow.
func (s *Server) handleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := id.ID(r.PathValue("id"))
	wf, err := s.backend.UpdateWorkflow(r.Context(), workflowID, func(wf *workflow.Workflow) error {
		if wf.Status.Terminal() {
			return &wcerrors.ValidationError{Field: "workflow_id", Message: "workflow has already reached a terminal state"}
		}
		wf.Status.Cancelled = true
		return nil
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// handlePauseWorkflow handles POST /v1/workflows/{id}/pause. It flips the Paused flag under the workflow's lock; the scheduler
// skips paused workflows on its next tick (internal/scheduler/scheduler.go)
// and leaves current_step_index and recorded step results untouched.
func (s *Server) handlePauseWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := id.ID(r.PathValue("id"))
	wf, err := s.backend.UpdateWorkflow(r.Context(), workflowID, func(wf *workflow.Workflow) error {
		if wf.Status.Terminal() {
			return &wcerrors.ValidationError{Field: "workflow_id", Message: "workflow has already reached a terminal state"}
		}
		if wf.Status.Paused {
			return &wcerrors.ValidationError{Field: "workflow_id", Message: "workflow is already paused"}
		}
		wf.Status.Paused = true
		return nil
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// handleResumeWorkflow handles POST /v1/workflows/{id}/resume. It clears the Paused flag; the workflow re-enters scheduling from
// wherever current_step_index left off.
func (s *Server) handleResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := id.ID(r.PathValue("id"))
	wf, err := s.backend.UpdateWorkflow(r.Context(), workflowID, func(wf *workflow.Workflow) error {
		if wf.Status.Terminal() {
			return &wcerrors.ValidationError{Field: "workflow_id", Message: "workflow has already reached a terminal state"}
		}
		if !wf.Status.Paused {
			return &wcerrors.ValidationError{Field: "workflow_id", Message: "workflow is not paused"}
		}
		wf.Status.Paused = false
		return nil
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// retryWorkflowRequest is the body for POST /v1/workflows/{id}/retry.
type retryWorkflowRequest struct {
	StepIndex int `json:"step_index"`
}

// handleRetryWorkflow handles POST /v1/workflows/{id}/retry: resets the workflow from the given step index onward
// and re-enqueues it.
func (s *Server) handleRetryWorkflow(w http.ResponseWriter, r *http.Request) {
	var req retryWorkflowRequest
	if raw := r.URL.Query().Get("index"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid index: %v", err))
			return
		}
		req.StepIndex = n
	} else if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	workflowID := id.ID(r.PathValue("id"))
	if err := s.engine.RetryWorkflow(r.Context(), workflowID, req.StepIndex); err != nil {
		writeAPIError(w, err)
		return
	}

	wf, err := s.backend.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}
