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
	"archive/zip"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/result"
)

// Server exposes a Node over its REST wire contract. A
// node adapter constructs a Node, registers its actions and admin
// handlers, then wraps it in a Server and serves it with net/http.
//
// /start and /action/{id}/result return the JSON envelope unless the
// result carries file outputs, in which case they return the binary
// variant instead: metadata travels in x-madsci-* response headers and
// the body is the single result file, or a zip archive of them when
// there's more than one.
type Server struct {
	node    *Node
	mux     *http.ServeMux
	tempDir string
}

// NewServer builds a Server around node. uploadDir is where uploaded
// action files are staged; an empty string uses os.TempDir.
func NewServer(n *Node, uploadDir string) *Server {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	s := &Server{node: n, mux: http.NewServeMux(), tempDir: uploadDir}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /info", s.handleInfo)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /state", s.handleState)
	s.mux.HandleFunc("GET /log", s.handleLog)
	s.mux.HandleFunc("POST /config", s.handleSetConfig)
	s.mux.HandleFunc("POST /admin/{command}", s.handleAdmin)
	s.mux.HandleFunc("POST /action/{name}", s.handleCreateAction)
	s.mux.HandleFunc("POST /action/{name}/{action_id}/upload/{arg}", s.handleUpload)
	s.mux.HandleFunc("POST /action/{name}/{action_id}/start", s.handleStart)
	s.mux.HandleFunc("GET /action/{id}/status", s.handleActionStatus)
	s.mux.HandleFunc("GET /action/{id}/result", s.handleActionResult)
	s.mux.HandleFunc("GET /action/{name}/{id}/download/{label}", s.handleDownload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeActionResult writes res as a JSON envelope, or, when it carries
// file outputs, as the binary variant: metadata in x-madsci-* headers and
// a raw file or zip archive as the body.
func writeActionResult(w http.ResponseWriter, res *result.ActionResult) {
	if len(res.Files) == 0 {
		writeJSON(w, http.StatusOK, res)
		return
	}

	setHeaderJSON(w, "x-madsci-status", res.Status)
	setHeaderJSON(w, "x-madsci-action-id", res.ActionID)
	setHeaderJSON(w, "x-madsci-errors", res.Errors)
	setHeaderJSON(w, "x-madsci-files", res.Files)
	setHeaderJSON(w, "x-madsci-datapoints", res.Datapoints)
	setHeaderJSON(w, "x-madsci-data", res.Data)

	if len(res.Files) == 1 {
		for label, path := range res.Files {
			f, err := os.Open(path)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			defer f.Close()
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Disposition", `attachment; filename="`+label+filepath.Ext(path)+`"`)
			w.WriteHeader(http.StatusOK)
			_, _ = io.Copy(w, f)
		}
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="result.zip"`)
	w.WriteHeader(http.StatusOK)
	zw := zip.NewWriter(w)
	defer zw.Close()
	for label, path := range res.Files {
		entry, err := zw.Create(label + filepath.Ext(path))
		if err != nil {
			return
		}
		f, err := os.Open(path)
		if err != nil {
			return
		}
		_, _ = io.Copy(entry, f)
		f.Close()
	}
}

func setHeaderJSON(w http.ResponseWriter, header string, v any) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return
	}
	w.Header().Set(header, string(encoded))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Info())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Status())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.State())
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]Event{})
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.node.SetConfig(values))
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	cmd := AdminCommand(r.PathValue("command"))
	writeJSON(w, http.StatusOK, s.node.RunAdmin(r.Context(), cmd))
}

func (s *Server) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var args map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	actionID, failure := s.node.CreateAction(name, args)
	if failure != nil {
		writeJSON(w, http.StatusOK, failure)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action_id": actionID.String()})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	actionID := id.ID(r.PathValue("action_id"))
	arg := r.PathValue("arg")

	file, header, err := r.FormFile(arg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	dest := filepath.Join(s.tempDir, actionID.String()+"-"+arg+"-"+filepath.Base(header.Filename))
	out, err := os.Create(dest)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if failure := s.node.Upload(actionID, arg, dest); failure != nil {
		writeJSON(w, http.StatusNotFound, failure)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	actionID := id.ID(r.PathValue("action_id"))
	writeActionResult(w, s.node.Start(r.Context(), actionID))
}

func (s *Server) handleActionStatus(w http.ResponseWriter, r *http.Request) {
	actionID := id.ID(r.PathValue("id"))
	res := s.node.GetResult(actionID)
	writeJSON(w, http.StatusOK, res.Status)
}

func (s *Server) handleActionResult(w http.ResponseWriter, r *http.Request) {
	actionID := id.ID(r.PathValue("id"))
	writeActionResult(w, s.node.GetResult(actionID))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	actionID := id.ID(r.PathValue("id"))
	label := r.PathValue("label")

	res := s.node.GetResult(actionID)
	path, ok := res.Files[label]
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}
