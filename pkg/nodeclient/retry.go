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
	"math/rand"
	"time"

	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
)

// RetryConfig governs how the HTTP transport retries a single call.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig matches the daemon's NodeClientConfig defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}
}

// withRetry runs fn up to cfg.MaxAttempts times, backing off between
// attempts, stopping early on a non-retryable *errors.TransportError or on
// context cancellation.
func withRetry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts < 1 {
		cfg = DefaultRetryConfig()
	}

	var zero T
	var lastErr error
	var lastVal T

	delay := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr, lastVal = err, val

		transportErr, ok := err.(*wcerrors.TransportError)
		if !ok || !transportErr.IsRetryable() || attempt == cfg.MaxAttempts {
			return zero, err
		}

		jitter := time.Duration(rand.Int63n(int64(50 * time.Millisecond)))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return zero, ctx.Err()
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxBackoff > 0 && delay > cfg.MaxBackoff {
			delay = cfg.MaxBackoff
		}
	}

	return lastVal, lastErr
}
