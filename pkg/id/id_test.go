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

package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsValidULID(t *testing.T) {
	got := New(SystemClock{})
	assert.Len(t, got.String(), 26)
	assert.True(t, Valid(got.String()))
}

func TestNew_SortsByCreationTime(t *testing.T) {
	early := FixedClock{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	late := FixedClock{At: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}

	a := New(early)
	b := New(late)

	assert.Less(t, string(a), string(b))
}

func TestID_Time_RoundTrips(t *testing.T) {
	clock := FixedClock{At: time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC)}
	got := New(clock)

	ts, err := got.Time()
	require.NoError(t, err)
	assert.Equal(t, clock.At.Unix(), ts.Unix())
}

func TestValid_RejectsGarbage(t *testing.T) {
	assert.False(t, Valid("not-a-ulid"))
	assert.False(t, Valid(""))
}
