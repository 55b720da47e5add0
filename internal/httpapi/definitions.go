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
	"net/http"

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/workflow"
)

// handlePutDefinition handles POST /v1/workflow_definitions. Resubmitting a definition under a name
// already on file creates a new version rather than overwriting the
// previous one.
func (s *Server) handlePutDefinition(w http.ResponseWriter, r *http.Request) {
	var def workflow.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if def.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(def.Steps) == 0 {
		writeError(w, http.StatusBadRequest, "steps must not be empty")
		return
	}

	// PutDefinition assigns the DefinitionID, CreatedAt, and the next
	// name-scoped version number itself; the handler only validates the
	// request shape.
	if err := s.backend.PutDefinition(r.Context(), &def); err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, def)
}

// handleGetDefinition handles GET /v1/workflow_definitions/{id}.
func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := s.backend.GetDefinition(r.Context(), id.ID(r.PathValue("id")))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}
