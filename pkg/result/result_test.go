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

package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionStatus_Terminal(t *testing.T) {
	terminal := []ActionStatus{ActionStatusSucceeded, ActionStatusFailed, ActionStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), s)
	}

	nonTerminal := []ActionStatus{ActionStatusNotStarted, ActionStatusRunning, ActionStatusUnknown, ActionStatusNotReady, ActionStatusPaused}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), s)
	}
}

func TestActionResult_SucceededFailed(t *testing.T) {
	ok := &ActionResult{Status: ActionStatusSucceeded}
	assert.True(t, ok.Succeeded())
	assert.False(t, ok.Failed())

	failed := &ActionResult{Status: ActionStatusFailed}
	assert.False(t, failed.Succeeded())
	assert.True(t, failed.Failed())

	unknown := &ActionResult{Status: ActionStatusUnknown}
	assert.True(t, unknown.Failed())
}

func TestUnknown(t *testing.T) {
	r := Unknown("01ARZ3NDEKTSV4RRFFQ69G5FAV", errors.New("dial tcp timeout"))
	assert.Equal(t, ActionStatusUnknown, r.Status)
	assert.Len(t, r.Errors, 1)
	assert.Equal(t, "DispatchUnknown", r.Errors[0].ErrorType)
}

func TestError_Error(t *testing.T) {
	e := &Error{Message: "missing arg: source", ErrorType: "ActionMissingArgument"}
	assert.Equal(t, "ActionMissingArgument: missing arg: source", e.Error())
}
