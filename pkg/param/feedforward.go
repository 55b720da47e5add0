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

package param

import (
	"context"
	"fmt"

	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/workflow"
)

// FeedForward applies every FeedForward entry in w.Parameters that
// targets the just-completed step at stepIndex. It
// mutates w.ParameterValues / w.FileInputIDs in place and returns the
// first error encountered, leaving earlier successful bindings applied
// (the engine treats any error here as a step-level failure; see
// internal/engine's finalizeStep, which marks the step failed with a
// FeedForwardError).
func (r *Resolver) FeedForward(ctx context.Context, w *workflow.Workflow, stepIndex int) error {
	step := &w.Steps[stepIndex]
	if step.Result == nil {
		return nil
	}

	for _, ff := range w.Parameters.FeedForward {
		idx, ok := resolveRef(w, ff.Step)
		if !ok || idx != stepIndex {
			continue
		}

		dpID, err := selectDatapoint(step, ff.Label)
		if err != nil {
			return err
		}

		switch ff.DataType {
		case workflow.FeedForwardFile:
			w.FileInputIDs[ff.Key] = dpID.String()
		default: // workflow.FeedForwardJSON
			dp, err := r.Store.Get(ctx, dpID)
			if err != nil {
				return wcerrors.Wrapf(err, "feed-forward %q: reading datapoint %s", ff.Key, dpID)
			}
			w.ParameterValues[ff.Key] = dp.Value
		}
	}
	return nil
}

// selectDatapoint picks the datapoint ID out of step.Result.Datapoints
// whose spec.DataLabels-derived label matches label.
func selectDatapoint(step *workflow.Step, label string) (id.ID, error) {
	if label != "" {
		for resultKey, dpID := range step.Result.Datapoints {
			if step.DataLabels[resultKey] == label {
				return id.ID(dpID), nil
			}
		}
		return id.Empty, &wcerrors.ValidationError{
			Field:   label,
			Message: fmt.Sprintf("specified label %s not found", label),
		}
	}

	if len(step.Result.Datapoints) == 1 {
		for _, dpID := range step.Result.Datapoints {
			return id.ID(dpID), nil
		}
	}
	if len(step.Result.Datapoints) == 0 {
		return id.Empty, &wcerrors.ValidationError{
			Field:   step.Name,
			Message: fmt.Sprintf("step %q produced no datapoints for feed-forward", step.Name),
		}
	}
	return id.Empty, &wcerrors.ValidationError{
		Field:   step.Name,
		Message: "Ambiguous feed-forward parameter",
	}
}

func resolveRef(w *workflow.Workflow, ref workflow.StepRef) (int, bool) {
	idx, _, ok := w.StepByRef(ref)
	return idx, ok
}
