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

// Package datapoint declares the small typed interface the orchestration
// core uses to talk to the external datapoint store. Nothing here stores
// anything itself; internal/state's in-memory Store exists only so tests
// and local runs have a default implementation to exercise against.
package datapoint

import (
	"context"

	"github.com/madsci-lab/workcell/pkg/id"
)

// Datapoint is an externally stored value or file produced by an action
// and referenced by ID.
type Datapoint struct {
	ID     id.ID  `json:"datapoint_id"`
	Label  string `json:"label"`
	IsFile bool   `json:"is_file"`
	Value  any    `json:"value,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Store is the client interface the parameter resolver (pkg/param) and
// execution engine (internal/engine) use to promote values and files to
// durable, ID-referenced datapoints.
type Store interface {
	// PutValue promotes a JSON value to a value datapoint, returning its
	// ID.
	PutValue(ctx context.Context, label string, value any) (id.ID, error)

	// PutFile promotes the file at path to a file datapoint.
	PutFile(ctx context.Context, label string, path string) (id.ID, error)

	// Get retrieves a previously promoted datapoint by ID, used by the
	// feed-forward resolver to read back a value datapoint's content.
	Get(ctx context.Context, dpID id.ID) (*Datapoint, error)
}
