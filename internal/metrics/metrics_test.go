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

package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
)

func TestNew(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	c, err := New(provider)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestSetQueueDepth(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	c, err := New(provider)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	c.SetQueueDepth(7)

	c.queueDepthMu.RLock()
	got := c.queueDepth
	c.queueDepthMu.RUnlock()
	if got != 7 {
		t.Errorf("expected queue depth 7, got %d", got)
	}
}

func TestObserveTickAndStepDurationDoNotPanic(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	c, err := New(provider)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	c.ObserveTick(10 * time.Millisecond)
	c.ObserveStepDuration("liquid-handler-1", 250*time.Millisecond)
	c.IncDispatch("liquid-handler-1", "succeeded")
}
