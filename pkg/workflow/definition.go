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
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseDefinition parses a workflow definition from its YAML form:
// top-level name/metadata/parameters/steps. It validates the result
// before returning it.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing workflow definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow definition: %w", err)
	}
	return &def, nil
}

// Validate checks structural invariants a Definition must satisfy before
// it can be materialized into a Workflow: every placeholder referenced by
// a step resolves to a declared input, feed-forward target, or default,
// and feed-forward never references a step at or after its own position.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow definition must have a name")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow definition %q must declare at least one step", d.Name)
	}

	declared := make(map[string]bool, len(d.Parameters.JSONInputs)+len(d.Parameters.FileInputs))
	for _, in := range d.Parameters.JSONInputs {
		if in.Key == "" {
			return fmt.Errorf("workflow %q: json_inputs entry missing key", d.Name)
		}
		declared[in.Key] = true
	}
	for _, in := range d.Parameters.FileInputs {
		if in.Key == "" {
			return fmt.Errorf("workflow %q: file_inputs entry missing key", d.Name)
		}
		declared[in.Key] = true
	}

	stepIndex := make(map[string]int, len(d.Steps))
	for i, s := range d.Steps {
		if s.Key != "" {
			stepIndex[s.Key] = i
		}
		if s.Node == "" && len(s.Locations) == 0 && s.UseParameters.Node == "" {
			return fmt.Errorf("workflow %q: step %d (%s) must name a node, a location, or use_parameters.node", d.Name, i, s.Name)
		}
		if s.Action == "" && s.UseParameters.Action == "" {
			return fmt.Errorf("workflow %q: step %d (%s) must name an action", d.Name, i, s.Name)
		}
	}

	ffUpstream := make(map[string]int, len(d.Parameters.FeedForward))
	for _, ff := range d.Parameters.FeedForward {
		if ff.Key == "" {
			return fmt.Errorf("workflow %q: feed_forward entry missing key", d.Name)
		}
		if declared[ff.Key] {
			return fmt.Errorf("workflow %q: %q is a Feed Forward Value and will be calculated during execution", d.Name, ff.Key)
		}
		declared[ff.Key] = true

		upstream, ok := resolveStepRef(ff.Step, stepIndex, len(d.Steps))
		if !ok {
			return fmt.Errorf("workflow %q: feed_forward %q references unknown step %q", d.Name, ff.Key, ff.Step.String())
		}
		if ff.DataType != FeedForwardJSON && ff.DataType != FeedForwardFile {
			return fmt.Errorf("workflow %q: feed_forward %q has invalid data_type %q", d.Name, ff.Key, ff.DataType)
		}
		ffUpstream[ff.Key] = upstream
	}

	for i, s := range d.Steps {
		for _, p := range stepPlaceholders(s) {
			if !declared[p] {
				return fmt.Errorf("workflow %q: step %d (%s) references undeclared parameter %q", d.Name, i, s.Name, p)
			}
			if upstream, ok := ffUpstream[p]; ok && upstream >= i {
				return fmt.Errorf("workflow %q: step %d (%s) consumes feed-forward %q from step %d, which runs at or after it", d.Name, i, s.Name, p, upstream)
			}
		}
	}

	return nil
}

// stepPlaceholders enumerates every parameter name a step's use_parameters
// will look up at dispatch time.
func stepPlaceholders(s Step) []string {
	out := make([]string, 0, len(s.UseParameters.Args)+len(s.UseParameters.Files)+2)
	for _, p := range s.UseParameters.Args {
		out = append(out, p)
	}
	for _, p := range s.UseParameters.Files {
		out = append(out, p)
	}
	if s.UseParameters.Node != "" {
		out = append(out, s.UseParameters.Node)
	}
	if s.UseParameters.Action != "" {
		out = append(out, s.UseParameters.Action)
	}
	return out
}

func resolveStepRef(ref StepRef, byKey map[string]int, numSteps int) (int, bool) {
	if ref.IsIndex {
		if ref.Index < 0 || ref.Index >= numSteps {
			return 0, false
		}
		return ref.Index, true
	}
	idx, ok := byKey[ref.Key]
	return idx, ok
}
