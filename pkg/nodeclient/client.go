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

// Package nodeclient is the engine- and scheduler-facing view of a node:
// a named action on a named node, rather than the general
// "named operation on a named connector" abstraction it is adapted from.
// Every method is blocking and context-aware; retries and circuit
// breaking are handled internally so callers see only a Client or
// TransportError.
package nodeclient

import (
	"context"

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/node"
	"github.com/madsci-lab/workcell/pkg/result"
)

// Client is the full set of operations the engine and scheduler may issue
// against a single node. Implementations decide how capability
// booleans gate optional calls; callers should consult Info().Capabilities
// before issuing one of the optional operations.
type Client interface {
	// GetInfo fetches the node's identity, action schema, and capabilities.
	GetInfo(ctx context.Context) (*node.Info, error)

	// GetStatus fetches the node's current readiness snapshot.
	GetStatus(ctx context.Context) (*node.Status, error)

	// GetState fetches the node's free-form instrument state.
	GetState(ctx context.Context) (map[string]any, error)

	// GetLog fetches the node's event history, if supported.
	GetLog(ctx context.Context) (map[string]node.Event, error)

	// SetConfig applies a partial config update.
	SetConfig(ctx context.Context, values map[string]any) (*node.SetConfigResponse, error)

	// SendAdminCommand issues one fixed-vocabulary admin command.
	SendAdminCommand(ctx context.Context, cmd node.AdminCommand) (*node.AdminCommandResponse, error)

	// SendAction runs the three-phase lifecycle (create, upload, start) and
	// returns once the node reports a terminal status. files maps a file
	// argument name to the local path uploaded for it.
	SendAction(ctx context.Context, actionName string, args map[string]any, files map[string]string) (*result.ActionResult, error)

	// GetActionResult fetches the result for a previously created action.
	// The engine falls back to it when SendAction's own HTTP round trip
	// fails with a transport error after the node may already have
	// accepted the action.
	GetActionResult(ctx context.Context, actionID id.ID) (*result.ActionResult, error)
}
