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
	"sync"

	"github.com/madsci-lab/workcell/pkg/datapoint"
	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
	"github.com/madsci-lab/workcell/pkg/id"
)

// DatapointStore is the default in-memory datapoint.Store, mirroring
// Memory's mutex-guarded-map shape so a local run or test has a working
// store without standing up an external service. File datapoints keep
// only the staged path; nothing here reads the file's contents.
type DatapointStore struct {
	mu    sync.RWMutex
	data  map[id.ID]*datapoint.Datapoint
	clock id.Clock
}

var _ datapoint.Store = (*DatapointStore)(nil)

// NewDatapointStore constructs an empty DatapointStore. clock defaults to
// id.SystemClock when nil.
func NewDatapointStore(clock id.Clock) *DatapointStore {
	if clock == nil {
		clock = id.SystemClock{}
	}
	return &DatapointStore{
		data:  make(map[id.ID]*datapoint.Datapoint),
		clock: clock,
	}
}

// PutValue implements datapoint.Store.
func (s *DatapointStore) PutValue(ctx context.Context, label string, value any) (id.ID, error) {
	dpID := id.New(s.clock)
	s.mu.Lock()
	s.data[dpID] = &datapoint.Datapoint{ID: dpID, Label: label, Value: value}
	s.mu.Unlock()
	return dpID, nil
}

// PutFile implements datapoint.Store.
func (s *DatapointStore) PutFile(ctx context.Context, label string, path string) (id.ID, error) {
	dpID := id.New(s.clock)
	s.mu.Lock()
	s.data[dpID] = &datapoint.Datapoint{ID: dpID, Label: label, IsFile: true, Path: path}
	s.mu.Unlock()
	return dpID, nil
}

// Get implements datapoint.Store.
func (s *DatapointStore) Get(ctx context.Context, dpID id.ID) (*datapoint.Datapoint, error) {
	s.mu.RLock()
	dp, ok := s.data[dpID]
	s.mu.RUnlock()
	if !ok {
		return nil, &wcerrors.NotFoundError{Resource: "datapoint", ID: string(dpID)}
	}
	cp := *dp
	return &cp, nil
}
