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

// Package id provides the identifier and clock primitives every workcell
// entity is built on: a 26-char Crockford-base32 ULID, lexicographically
// sortable by creation time, plus a small Clock interface so schedulers and
// engines can be tested against fixed time instead of wall time.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID-backed entity identifier. Every workflow, step, action,
// and node-registry entry is assigned one at construction.
type ID string

// Empty is the zero value, used to detect an unset identifier.
const Empty ID = ""

// New mints a fresh ID using the given clock for its timestamp component.
// IDs minted later by the same clock sort after IDs minted earlier.
func New(clock Clock) ID {
	t := clock.Now()
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// entropy is shared by every New call so that IDs minted within the same
// millisecond still sort in minting order.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// Valid reports whether s parses as a well-formed ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time returns the creation timestamp encoded in the ID.
func (i ID) Time() (time.Time, error) {
	parsed, err := ulid.ParseStrict(string(i))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// String returns the ID's canonical 26-character representation.
func (i ID) String() string {
	return string(i)
}

// Clock abstracts time.Now so components can be driven by fixed or
// simulated time in tests.
type Clock interface {
	// Now returns the current UTC time.
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a Clock that always returns the same instant. Useful in
// tests that assert on exact timestamps or ID ordering.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.At
}
