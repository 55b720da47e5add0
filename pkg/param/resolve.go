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

// Package param implements the workcell parameter resolver:
// submission-time binding of json/file inputs, dispatch-time placeholder
// substitution of Step.use_parameters, feed-forward application once an
// upstream step completes, and Step.conditions guard evaluation.
package param

import (
	"context"
	"fmt"

	"github.com/madsci-lab/workcell/pkg/datapoint"
	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
	"github.com/madsci-lab/workcell/pkg/workflow"
	"github.com/madsci-lab/workcell/pkg/workflow/expression"
)

// SubmissionInput carries the request-time bindings a client attaches to
// a new workflow: the multipart JSON data plus uploaded file paths.
type SubmissionInput struct {
	// Values holds the json_inputs bindings, keyed by input key.
	Values map[string]any
	// Files maps a file_inputs key to the local path of the uploaded
	// bytes, staged by the control plane before Bind runs.
	Files map[string]string
}

// Resolver binds submission-time inputs and resolves dispatch-time
// placeholders. It holds no workflow state of its own: every method takes
// the workflow/step it operates on explicitly, matching the engine's
// "holds no state between dispatches" invariant.
type Resolver struct {
	Store     datapoint.Store
	Locations workflow.LocationResolver
}

// New builds a Resolver backed by store for file-input uploads and
// feed-forward datapoint lookups. Locations may be attached afterward via
// WithLocations for step.locations resolution.
func New(store datapoint.Store) *Resolver {
	return &Resolver{Store: store}
}

// WithLocations attaches a LocationResolver and returns r for chaining.
func (r *Resolver) WithLocations(resolver workflow.LocationResolver) *Resolver {
	r.Locations = resolver
	return r
}

// Bind applies submission-time binding: it
// fills w.ParameterValues from in.Values (defaulting, then erroring if a
// required json input is absent) and w.FileInputIDs by uploading each
// bound file to the datapoint store. Conflicts between a user-supplied
// key and a feed-forward target are rejected here, matching the
// Definition-time check but re-asserted against the actual request.
func (r *Resolver) Bind(ctx context.Context, w *workflow.Workflow, in SubmissionInput) error {
	feedForwardKeys := make(map[string]bool, len(w.Parameters.FeedForward))
	for _, ff := range w.Parameters.FeedForward {
		feedForwardKeys[ff.Key] = true
	}

	for _, spec := range w.Parameters.JSONInputs {
		if feedForwardKeys[spec.Key] {
			if _, given := in.Values[spec.Key]; given {
				return &wcerrors.ValidationError{
					Field:   spec.Key,
					Message: fmt.Sprintf("%q is a Feed Forward Value and will be calculated during execution", spec.Key),
				}
			}
			continue
		}

		if v, ok := in.Values[spec.Key]; ok {
			w.ParameterValues[spec.Key] = v
			continue
		}
		if spec.Default != nil {
			w.ParameterValues[spec.Key] = spec.Default
			continue
		}
		if spec.Required {
			return &wcerrors.ValidationError{
				Field:   spec.Key,
				Message: fmt.Sprintf("Required value %s not provided", spec.Key),
			}
		}
	}

	for _, spec := range w.Parameters.FileInputs {
		if feedForwardKeys[spec.Key] {
			if _, given := in.Files[spec.Key]; given {
				return &wcerrors.ValidationError{
					Field:   spec.Key,
					Message: fmt.Sprintf("%q is a Feed Forward Value and will be calculated during execution", spec.Key),
				}
			}
			continue
		}

		path, ok := in.Files[spec.Key]
		if !ok {
			if spec.Required {
				return &wcerrors.ValidationError{
					Field:   spec.Key,
					Message: fmt.Sprintf("Required value %s not provided", spec.Key),
				}
			}
			continue
		}

		dpID, err := r.Store.PutFile(ctx, spec.Key, path)
		if err != nil {
			return wcerrors.Wrapf(err, "uploading file input %q", spec.Key)
		}
		w.FileInputIDs[spec.Key] = dpID.String()
	}

	return nil
}

// Resolve substitutes step.use_parameters placeholders against w's
// current bindings, returning a copy of the step with Args, Files, Node,
// and Action ready to dispatch. The original step is not mutated.
func (r *Resolver) Resolve(w *workflow.Workflow, step workflow.Step) (workflow.Step, error) {
	resolved := step
	if len(step.Args) > 0 {
		resolved.Args = make(map[string]any, len(step.Args))
		for k, v := range step.Args {
			resolved.Args[k] = v
		}
	}
	if len(step.Files) > 0 {
		resolved.Files = make(map[string]string, len(step.Files))
		for k, v := range step.Files {
			resolved.Files[k] = v
		}
	}

	for argName, placeholder := range step.UseParameters.Args {
		v, ok := w.ParameterValues[placeholder]
		if !ok {
			return step, &wcerrors.ValidationError{
				Field:   placeholder,
				Message: fmt.Sprintf("step %q: no bound value for parameter %q", step.Name, placeholder),
			}
		}
		if resolved.Args == nil {
			resolved.Args = make(map[string]any, len(step.UseParameters.Args))
		}
		resolved.Args[argName] = v
	}

	for fileArg, placeholder := range step.UseParameters.Files {
		dpID, ok := w.FileInputIDs[placeholder]
		if !ok {
			return step, &wcerrors.ValidationError{
				Field:   placeholder,
				Message: fmt.Sprintf("step %q: no bound file for parameter %q", step.Name, placeholder),
			}
		}
		if resolved.Files == nil {
			resolved.Files = make(map[string]string, len(step.UseParameters.Files))
		}
		resolved.Files[fileArg] = dpID
	}

	if step.UseParameters.Node != "" {
		v, ok := w.ParameterValues[step.UseParameters.Node]
		if !ok {
			return step, &wcerrors.ValidationError{
				Field:   step.UseParameters.Node,
				Message: fmt.Sprintf("step %q: no bound value for node parameter %q", step.Name, step.UseParameters.Node),
			}
		}
		node, ok := v.(string)
		if !ok {
			return step, &wcerrors.ValidationError{
				Field:   step.UseParameters.Node,
				Message: fmt.Sprintf("step %q: node parameter %q must resolve to a string, got %T", step.Name, step.UseParameters.Node, v),
			}
		}
		resolved.Node = node
	}

	if len(step.Locations) > 0 {
		if r.Locations == nil {
			return step, &wcerrors.ValidationError{
				Field:   step.Name,
				Message: "step references locations but no location resolver is configured",
			}
		}
		if resolved.Args == nil {
			resolved.Args = make(map[string]any, len(step.Locations))
		}
		targetNode := resolved.Node
		for bindingName, locationID := range step.Locations {
			loc, ok := r.Locations.Location(locationID)
			if !ok {
				return step, &wcerrors.ValidationError{
					Field:   bindingName,
					Message: fmt.Sprintf("step %q: location %q not found", step.Name, locationID),
				}
			}
			rep, ok := loc.NodeForLocation(targetNode)
			if !ok {
				return step, &wcerrors.ValidationError{
					Field:   bindingName,
					Message: fmt.Sprintf("step %q: location %q has no representation for node %q", step.Name, locationID, targetNode),
				}
			}
			resolved.Args[bindingName] = rep
		}
	}

	if step.UseParameters.Action != "" {
		v, ok := w.ParameterValues[step.UseParameters.Action]
		if !ok {
			return step, &wcerrors.ValidationError{
				Field:   step.UseParameters.Action,
				Message: fmt.Sprintf("step %q: no bound value for action parameter %q", step.Name, step.UseParameters.Action),
			}
		}
		action, ok := v.(string)
		if !ok {
			return step, &wcerrors.ValidationError{
				Field:   step.UseParameters.Action,
				Message: fmt.Sprintf("step %q: action parameter %q must resolve to a string, got %T", step.Name, step.UseParameters.Action, v),
			}
		}
		resolved.Action = action
	}

	return resolved, nil
}

// conditionEvaluator is satisfied by expression.Evaluator; declared so
// ConditionsSatisfied can be unit tested against a fake.
type conditionEvaluator interface {
	Evaluate(expr string, ctx map[string]any) (bool, error)
}

type evalAdapter struct{ *expression.Evaluator }

func (e evalAdapter) Evaluate(expr string, ctx map[string]any) (bool, error) {
	return e.Evaluator.Evaluate(expr, ctx)
}

// DefaultEvaluator wraps expression.New for production use.
func DefaultEvaluator() conditionEvaluator {
	return evalAdapter{expression.New()}
}

// ConditionsSatisfied evaluates every one of step's guard predicates
// against w's current bindings, returning false on the first unsatisfied
// condition.
func ConditionsSatisfied(eval conditionEvaluator, w *workflow.Workflow, step *workflow.Step) (bool, error) {
	if len(step.Conditions) == 0 {
		return true, nil
	}

	stepsCtx := make(map[string]any, len(w.Steps))
	for _, s := range w.Steps {
		if s.Result == nil {
			continue
		}
		key := s.Key
		if key == "" {
			key = s.StepID.String()
		}
		stepsCtx[key] = map[string]any{
			"status": string(s.Status),
			"data":   s.Result.Data,
		}
	}

	evalCtx := map[string]any{
		"inputs": w.ParameterValues,
		"steps":  stepsCtx,
	}

	for _, cond := range step.Conditions {
		ok, err := eval.Evaluate(cond.Expression, evalCtx)
		if err != nil {
			return false, wcerrors.Wrapf(err, "evaluating condition %q", cond.Expression)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
