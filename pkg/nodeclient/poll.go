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
	"time"

	"github.com/madsci-lab/workcell/pkg/result"
)

// PollConfig governs how SendAction waits for a non-blocking action to
// reach a terminal status after start returns.
type PollConfig struct {
	// InitialInterval is the delay before the second poll; the first poll
	// is issued as soon as start returns.
	InitialInterval time.Duration
	// Factor multiplies the interval after each poll.
	Factor float64
	// MaxInterval caps the poll interval.
	MaxInterval time.Duration
}

// DefaultPollConfig mirrors the original client's poll cadence: start
// fast, back off toward a one-second ceiling.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: 250 * time.Millisecond,
		Factor:          1.5,
		MaxInterval:     1 * time.Second,
	}
}

// pollUntilTerminal calls fetch repeatedly, backing off per cfg, until it
// returns a terminal ActionResult, ctx is cancelled, or fetch itself
// returns an error.
func pollUntilTerminal(ctx context.Context, cfg PollConfig, fetch func(context.Context) (*result.ActionResult, error)) (*result.ActionResult, error) {
	interval := cfg.InitialInterval
	if interval <= 0 {
		interval = DefaultPollConfig().InitialInterval
	}

	for {
		res, err := fetch(ctx)
		if err != nil {
			return res, err
		}
		if res.Status.Terminal() {
			return res, nil
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return res, ctx.Err()
		}

		interval = time.Duration(float64(interval) * cfg.Factor)
		if cfg.MaxInterval > 0 && interval > cfg.MaxInterval {
			interval = cfg.MaxInterval
		}
	}
}
