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

package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
)

// Evaluator compiles and runs step guard expressions, caching compiled
// programs so repeated evaluation of the same condition is cheap.
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// New constructs an empty Evaluator.
func New() *Evaluator {
	return &Evaluator{programs: make(map[string]*vm.Program)}
}

// Evaluate runs condition against ctx and returns its boolean result. An
// empty condition is vacuously true. A condition that fails to compile,
// fails at runtime, or yields a non-boolean is a ValidationError.
func (e *Evaluator) Evaluate(condition string, ctx map[string]any) (bool, error) {
	if condition == "" {
		return true, nil
	}

	program, err := e.compile(condition)
	if err != nil {
		return false, &wcerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile %q: %v", condition, err),
			Suggestion: "check the expression syntax",
		}
	}

	env := make(map[string]any, len(ctx)+len(builtins))
	for k, v := range ctx {
		env[k] = v
	}
	for k, v := range builtins {
		env[k] = v
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, &wcerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("evaluating %q: %v", condition, err),
			Suggestion: "verify every referenced input and step exists in the workflow",
		}
	}

	verdict, ok := out.(bool)
	if !ok {
		return false, &wcerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition %q returned %T, want bool", condition, out),
			Suggestion: "use a comparison or boolean operator as the top-level expression",
		}
	}
	return verdict, nil
}

func (e *Evaluator) compile(condition string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[condition]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	env := make(map[string]any, len(builtins))
	for k, v := range builtins {
		env[k] = v
	}

	// Bindings arrive at run time, so unknown identifiers must compile.
	program, err := expr.Compile(condition,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[condition] = program
	e.mu.Unlock()
	return program, nil
}
