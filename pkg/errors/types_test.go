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

package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "json_inputs.x", Message: "required value not provided"}
	assert.Equal(t, "validation failed on json_inputs.x: required value not provided", err.Error())
	assert.Equal(t, "ValidationError", err.ErrorType())
	assert.False(t, err.IsRetryable())

	noField := &ValidationError{Message: "bad workflow"}
	assert.Equal(t, "validation failed: bad workflow", noField.Error())
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Resource: "node", ID: "n1"}
	assert.Equal(t, "node not found: n1", err.Error())
	assert.Equal(t, "NotFoundError", err.ErrorType())
}

func TestTransportError_Retryable(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		want       bool
	}{
		{"no response at all", 0, true},
		{"server error", 503, true},
		{"not found", 404, false},
		{"bad request", 400, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := &TransportError{Node: "n1", Op: "send_action", StatusCode: tc.statusCode}
			assert.Equal(t, tc.want, err.IsRetryable())
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &TransportError{Node: "n1", Op: "get_status", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "get_status")
	assert.Contains(t, err.Error(), "n1")
}

func TestActionError(t *testing.T) {
	err := &ActionError{ActionName: "transfer_plate", Reason: "ActionMissingArgument", Message: "missing arg: source"}
	assert.Equal(t, "action transfer_plate failed (ActionMissingArgument): missing arg: source", err.Error())
	assert.False(t, err.IsRetryable())
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Key: "scheduler.tick_interval", Reason: "must be positive"}
	assert.Equal(t, "config error at scheduler.tick_interval: must be positive", err.Error())

	noKey := &ConfigError{Reason: "missing file"}
	assert.Equal(t, "config error: missing file", noKey.Error())
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Operation: "step dispatch", Duration: 30 * time.Second}
	assert.Equal(t, "step dispatch timed out after 30s", err.Error())
	assert.True(t, err.IsRetryable())
}

func TestInternalError(t *testing.T) {
	cause := errors.New("lock held by another writer")
	err := &InternalError{Component: "state", Message: "update_workflow failed", Cause: cause}
	require.ErrorIs(t, err, cause)
	assert.False(t, err.IsRetryable())
}

func TestErrors_ImplementClassifier(t *testing.T) {
	var classified []ErrorClassifier = []ErrorClassifier{
		&ValidationError{},
		&NotFoundError{},
		&TransportError{},
		&ActionError{},
		&ConfigError{},
		&TimeoutError{},
		&InternalError{},
	}
	for _, err := range classified {
		assert.NotEmpty(t, err.ErrorType())
	}
}
