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

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// StepRef identifies an upstream step either by its 0-based index or by
// its string key. Exactly one of the two forms
// is populated, selected by IsIndex.
type StepRef struct {
	IsIndex bool
	Index   int
	Key     string
}

// String renders the ref the way it would appear in a workflow definition.
func (r StepRef) String() string {
	if r.IsIndex {
		return strconv.Itoa(r.Index)
	}
	return r.Key
}

// UnmarshalJSON accepts either a JSON number (step index) or a JSON
// string (step key).
func (r *StepRef) UnmarshalJSON(data []byte) error {
	var asInt int
	if err := json.Unmarshal(data, &asInt); err == nil {
		r.IsIndex = true
		r.Index = asInt
		r.Key = ""
		return nil
	}

	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		r.IsIndex = false
		r.Key = asString
		r.Index = 0
		return nil
	}

	return fmt.Errorf("step ref must be an integer index or a string key, got %q", string(data))
}

// MarshalJSON emits the ref as a bare number or string, matching the wire
// shape FeedForward.step is declared with.
func (r StepRef) MarshalJSON() ([]byte, error) {
	if r.IsIndex {
		return json.Marshal(r.Index)
	}
	return json.Marshal(r.Key)
}

// UnmarshalYAML mirrors UnmarshalJSON for workflow-definition YAML.
func (r *StepRef) UnmarshalYAML(unmarshal func(any) error) error {
	var asInt int
	if err := unmarshal(&asInt); err == nil {
		r.IsIndex = true
		r.Index = asInt
		r.Key = ""
		return nil
	}

	var asString string
	if err := unmarshal(&asString); err != nil {
		return fmt.Errorf("step ref must be an integer index or a string key: %w", err)
	}
	r.IsIndex = false
	r.Key = asString
	r.Index = 0
	return nil
}
