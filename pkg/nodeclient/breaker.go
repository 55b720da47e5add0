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

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/node"
	"github.com/madsci-lab/workcell/pkg/result"
	"github.com/sony/gobreaker"
)

// BreakerClient wraps a Client with a circuit breaker per node (a
// supplemented feature: a node repeatedly timing out shouldn't keep the
// scheduler trying it every tick). After 3 consecutive failures the
// breaker fails fast for 30 seconds before letting a single probe call
// through.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps client in a breaker named after nodeName.
func NewBreakerClient(nodeName string, client Client) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        nodeName,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &BreakerClient{inner: client, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func breakerCall[T any](b *BreakerClient, fn func() (T, error)) (T, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if v, ok := out.(T); ok {
			return v, err
		}
		return zero, err
	}
	return out.(T), nil
}

// GetInfo implements Client.
func (b *BreakerClient) GetInfo(ctx context.Context) (*node.Info, error) {
	return breakerCall(b, func() (*node.Info, error) { return b.inner.GetInfo(ctx) })
}

// GetStatus implements Client.
func (b *BreakerClient) GetStatus(ctx context.Context) (*node.Status, error) {
	return breakerCall(b, func() (*node.Status, error) { return b.inner.GetStatus(ctx) })
}

// GetState implements Client.
func (b *BreakerClient) GetState(ctx context.Context) (map[string]any, error) {
	return breakerCall(b, func() (map[string]any, error) { return b.inner.GetState(ctx) })
}

// GetLog implements Client.
func (b *BreakerClient) GetLog(ctx context.Context) (map[string]node.Event, error) {
	return breakerCall(b, func() (map[string]node.Event, error) { return b.inner.GetLog(ctx) })
}

// SetConfig implements Client.
func (b *BreakerClient) SetConfig(ctx context.Context, values map[string]any) (*node.SetConfigResponse, error) {
	return breakerCall(b, func() (*node.SetConfigResponse, error) { return b.inner.SetConfig(ctx, values) })
}

// SendAdminCommand implements Client.
func (b *BreakerClient) SendAdminCommand(ctx context.Context, cmd node.AdminCommand) (*node.AdminCommandResponse, error) {
	return breakerCall(b, func() (*node.AdminCommandResponse, error) { return b.inner.SendAdminCommand(ctx, cmd) })
}

// SendAction implements Client.
func (b *BreakerClient) SendAction(ctx context.Context, actionName string, args map[string]any, files map[string]string) (*result.ActionResult, error) {
	return breakerCall(b, func() (*result.ActionResult, error) { return b.inner.SendAction(ctx, actionName, args, files) })
}

// GetActionResult implements Client.
func (b *BreakerClient) GetActionResult(ctx context.Context, actionID id.ID) (*result.ActionResult, error) {
	return breakerCall(b, func() (*result.ActionResult, error) { return b.inner.GetActionResult(ctx, actionID) })
}
