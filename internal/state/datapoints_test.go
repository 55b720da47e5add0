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

package state

import (
	"context"
	"testing"

	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/stretchr/testify/require"
)

func TestDatapointStore_PutValueAndGet(t *testing.T) {
	s := NewDatapointStore(id.SystemClock{})

	dpID, err := s.PutValue(context.Background(), "result", map[string]any{"ok": true})
	require.NoError(t, err)
	require.True(t, id.Valid(string(dpID)))

	dp, err := s.Get(context.Background(), dpID)
	require.NoError(t, err)
	require.Equal(t, "result", dp.Label)
	require.False(t, dp.IsFile)

	dp.Label = "mutated"
	dp2, err := s.Get(context.Background(), dpID)
	require.NoError(t, err)
	require.Equal(t, "result", dp2.Label)
}

func TestDatapointStore_PutFile(t *testing.T) {
	s := NewDatapointStore(id.SystemClock{})

	dpID, err := s.PutFile(context.Background(), "trace", "/tmp/trace.csv")
	require.NoError(t, err)

	dp, err := s.Get(context.Background(), dpID)
	require.NoError(t, err)
	require.True(t, dp.IsFile)
	require.Equal(t, "/tmp/trace.csv", dp.Path)
}

func TestDatapointStore_GetNotFound(t *testing.T) {
	s := NewDatapointStore(id.SystemClock{})

	_, err := s.Get(context.Background(), id.New(id.SystemClock{}))
	require.Error(t, err)
	var nf *wcerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
}
