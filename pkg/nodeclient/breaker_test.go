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

package nodeclient

import (
	"context"
	"errors"
	"testing"

	"github.com/madsci-lab/workcell/pkg/node"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	Client
	getStatusErr error
	calls        int
}

func (s *stubClient) GetStatus(ctx context.Context) (*node.Status, error) {
	s.calls++
	if s.getStatusErr != nil {
		return nil, s.getStatusErr
	}
	return &node.Status{Ready: true}, nil
}

func TestBreakerClient_TripsAfterConsecutiveFailures(t *testing.T) {
	stub := &stubClient{getStatusErr: errors.New("connection refused")}
	breaker := NewBreakerClient("node-1", stub)

	for i := 0; i < 3; i++ {
		_, err := breaker.GetStatus(context.Background())
		require.Error(t, err)
	}

	// breaker should now be open and fail fast without calling the stub
	callsBefore := stub.calls
	_, err := breaker.GetStatus(context.Background())
	require.Error(t, err)
	require.Equal(t, callsBefore, stub.calls, "open breaker must not call through")
}

func TestBreakerClient_PassesThroughOnSuccess(t *testing.T) {
	stub := &stubClient{}
	breaker := NewBreakerClient("node-2", stub)

	status, err := breaker.GetStatus(context.Background())
	require.NoError(t, err)
	require.True(t, status.Ready)
	require.Equal(t, 1, stub.calls)
}
