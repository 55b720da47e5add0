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

// handlePutLocation handles PUT /v1/locations. A location with no
// LocationID is minted a fresh one; a caller round-tripping an existing
// LocationID updates it in place.
func (s *Server) handlePutLocation(w http.ResponseWriter, r *http.Request) {
	var loc workflow.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if loc.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if loc.LocationID == "" {
		loc.LocationID = id.New(s.clock)
	}

	if err := s.backend.PutLocation(r.Context(), &loc); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// handleListLocations handles GET /v1/locations.
func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.backend.ListLocations(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locations, "count": len(locations)})
}

// attachResourceRequest is the body for POST /v1/locations/{id}/attach_resource.
type attachResourceRequest struct {
	ResourceID string `json:"resource_id"`
}

// handleAttachResource handles POST /v1/locations/{id}/attach_resource:
// binds an external resource/inventory record to the location.
func (s *Server) handleAttachResource(w http.ResponseWriter, r *http.Request) {
	var req attachResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "resource_id is required")
		return
	}

	loc, ok := s.backend.Location(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("location %q not found", r.PathValue("id")))
		return
	}
	loc.ResourceID = req.ResourceID
	if err := s.backend.PutLocation(r.Context(), loc); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// handleDeleteLocation handles DELETE /v1/locations/{id}.
func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteLocation(r.Context(), r.PathValue("id")); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
