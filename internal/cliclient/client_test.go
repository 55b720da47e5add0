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

package cliclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/health", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	var out map[string]string
	require.NoError(t, c.Get(context.Background(), "/v1/health", &out))
	require.Equal(t, "ok", out["status"])
}

func TestPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "widget", body["name"])
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "abc"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	var out map[string]string
	require.NoError(t, c.Post(context.Background(), "/v1/things", map[string]any{"name": "widget"}, &out))
	require.Equal(t, "abc", out["id"])
}

func TestPostErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Post(context.Background(), "/v1/things", nil, nil)
	require.Error(t, err)
}

func TestPostMultipart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "def-1", r.FormValue("workflow_definition_id"))
		f, _, err := r.FormFile("plate_map")
		require.NoError(t, err)
		defer f.Close()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"workflow_id": "wf-1"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	form := SubmitForm{
		WorkflowDefinitionID: "def-1",
		JSONInputs:           `{"x":1}`,
		Files:                map[string]string{"plate_map": path},
	}
	var out map[string]string
	require.NoError(t, c.PostMultipart(context.Background(), "/v1/workflows", form, &out))
	require.Equal(t, "wf-1", out["workflow_id"])
}
