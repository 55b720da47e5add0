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

package workflow

import "github.com/madsci-lab/workcell/pkg/id"

// Location is a named physical place with one representation per node
// that can reach it. A step binds an argument to a location; the step's
// node is not resolved through it.
type Location struct {
	LocationID      id.ID          `json:"location_id"`
	Name            string         `json:"name"`
	Representations map[string]any `json:"representations"`
	ResourceID      string         `json:"resource_id,omitempty"`
}

// NodeForLocation returns this location's representation for the named
// node, if the location declares one.
func (l *Location) NodeForLocation(nodeName string) (any, bool) {
	if l == nil || l.Representations == nil {
		return nil, false
	}
	rep, ok := l.Representations[nodeName]
	return rep, ok
}

// LocationResolver is the read-only lookup the parameter resolver uses to
// fetch a location by ID when binding a step's location arguments.
// internal/state implements this against its locations collection.
type LocationResolver interface {
	Location(locationID string) (*Location, bool)
}
