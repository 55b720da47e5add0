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

package node

import (
	"context"
	"fmt"

	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/result"
)

// ActionRequest is what a registered Handler receives once argument and
// file presence has already been validated against its ActionDefinition.
type ActionRequest struct {
	ActionID id.ID
	Action   string
	Args     map[string]any
	// Files maps a declared file argument name to the path of the
	// uploaded bytes on local disk.
	Files map[string]string
}

// Handler implements one action's behavior. Node adapters provide this;
// everything about argument/file validation and result bookkeeping is
// handled by Node before and after the call.
type Handler func(ctx context.Context, req *ActionRequest) (*result.ActionResult, error)

type registeredAction struct {
	def     ActionDefinition
	handler Handler
}

// RegisterAction declares one action's schema and behavior.
func (n *Node) RegisterAction(name string, args []ArgSpec, files []FileSpec, results []ResultSpec, blocking bool, handler Handler) error {
	if name == "" {
		return fmt.Errorf("node: action name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("node: action %q: handler must not be nil", name)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	def := ActionDefinition{
		Name:     name,
		Args:     args,
		Files:    files,
		Results:  results,
		Blocking: blocking,
	}
	n.actions[name] = registeredAction{def: def, handler: handler}
	n.info.Actions[name] = def
	return nil
}

// RegisterAdmin wires a handler for one of the fixed admin commands and
// adds it to the node's declared support list. Invoking a command with no
// registered handler fails with AdminCommandNotImplemented.
func (n *Node) RegisterAdmin(cmd AdminCommand, handler func(ctx context.Context) error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.adminHandlers[cmd] = handler

	for _, existing := range n.info.AdminCommands {
		if existing == cmd {
			return
		}
	}
	n.info.AdminCommands = append(n.info.AdminCommands, cmd)
}
