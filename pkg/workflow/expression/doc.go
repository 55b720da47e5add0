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

// Package expression evaluates step guard conditions: the boolean
// predicates a step may carry that decide whether it is ready to
// dispatch.
//
// Conditions are expr-lang expressions evaluated against the workflow's
// current bindings and the results of prior steps:
//
//   - inputs.<key>            a bound parameter value
//   - steps.<key>.status      a prior step's status string
//   - steps.<key>.data.<k>    a value from a prior step's result data
//
// Example conditions:
//
//	inputs.volume > 0
//	steps.read_plate.status == "succeeded"
//	has(inputs.reagents, "buffer_a")
//
// Compiled programs are cached per expression, so the scheduler
// re-evaluating the same guard every tick pays compilation once.
//
// expr reserves "contains" as a string operator; use the "in" operator or
// has()/includes() for collection membership.
package expression
