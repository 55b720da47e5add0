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

	"github.com/madsci-lab/workcell/internal/state"
	"github.com/madsci-lab/workcell/pkg/node"
)

// registerNodeRequest is the body for POST /v1/nodes.
type registerNodeRequest struct {
	NodeName string `json:"node_name"`
	NodeURL  string `json:"node_url"`
}

// handleRegisterNode handles POST /v1/nodes: it records the name/URL row first so the client factory can
// resolve the node, then reaches out for its declared Info/Status via the
// same factory the engine uses. A node that isn't reachable yet still
// registers; the status poll loop picks up its Info/Status once it comes
// online, and until then the scheduler treats it as not dispatchable.
func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req registerNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.NodeName == "" || req.NodeURL == "" {
		writeError(w, http.StatusBadRequest, "node_name and node_url are required")
		return
	}

	entry := &state.NodeEntry{
		NodeName: req.NodeName,
		NodeURL:  req.NodeURL,
	}
	if err := s.backend.RegisterNode(r.Context(), entry); err != nil {
		writeAPIError(w, err)
		return
	}

	client, err := s.clientFor(r.Context(), req.NodeName)
	if err != nil {
		writeJSON(w, http.StatusCreated, entry)
		return
	}
	if info, err := client.GetInfo(r.Context()); err == nil {
		entry.Info = *info
	} else {
		s.logger.Warn("registered node not reachable for info", "node", req.NodeName, "error", err)
		writeJSON(w, http.StatusCreated, entry)
		return
	}
	if status, err := client.GetStatus(r.Context()); err == nil {
		entry.Status = *status
		entry.LastReachableTime = s.clock.Now()
	}

	if err := s.backend.RegisterNode(r.Context(), entry); err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// handleListNodes handles GET /v1/nodes.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.backend.ListNodes(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "count": len(nodes)})
}

// handleGetNode handles GET /v1/nodes/{name}.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	entry, ok, err := s.backend.GetNode(r.Context(), r.PathValue("name"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("node %q not registered", r.PathValue("name")))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleNodeAdmin handles POST /v1/nodes/{name}/admin/{command}:
// it proxies one of the fixed admin
// vocabulary (reset, pause, resume, ...) straight to the node, the same
// way internal/engine reaches nodes, without going through the scheduler.
func (s *Server) handleNodeAdmin(w http.ResponseWriter, r *http.Request) {
	nodeName := r.PathValue("name")
	cmd := node.AdminCommand(r.PathValue("command"))

	known := false
	for _, c := range node.AllAdminCommands {
		if c == cmd {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown admin command %q", cmd))
		return
	}

	client, err := s.clientFor(r.Context(), nodeName)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	resp, err := client.SendAdminCommand(r.Context(), cmd)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	now := s.clock.Now()
	if status, statusErr := client.GetStatus(r.Context()); statusErr == nil {
		_ = s.backend.UpdateNodeStatus(r.Context(), nodeName, *status, now)
	}

	writeJSON(w, http.StatusOK, resp)
}
