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

// Package node implements the "workcellctl node" command group:
// registering instrument nodes and proxying admin commands to them.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/madsci-lab/workcell/internal/cliapp/shared"
)

// NewCommand creates the "node" command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Register and manage instrument nodes",
	}
	cmd.AddCommand(newRegisterCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newAdminCommand())
	return cmd
}

func newRegisterCommand() *cobra.Command {
	var nodeURL string
	cmd := &cobra.Command{
		Use:   "register <node_name>",
		Short: "Register an instrument node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			body := map[string]string{"node_name": args[0], "node_url": nodeURL}
			var out map[string]any
			if err := shared.Client().Post(ctx, "/v1/nodes", body, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
	cmd.Flags().StringVar(&nodeURL, "url", "", "base URL of the node's REST endpoint")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Get(ctx, "/v1/nodes", &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <node_name>",
		Short: "Show a registered node's last known status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Get(ctx, "/v1/nodes/"+args[0], &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func newAdminCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "admin <node_name> <command>",
		Short: "Send an admin command (reset, pause, resume, ...) to a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			var out map[string]any
			path := fmt.Sprintf("/v1/nodes/%s/admin/%s", args[0], args[1])
			if err := shared.Client().Post(ctx, path, nil, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func printResult(cmd *cobra.Command, out map[string]any) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
