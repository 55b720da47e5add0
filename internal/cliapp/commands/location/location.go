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

// Package location implements the "workcellctl location" command group.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/madsci-lab/workcell/internal/cliapp/shared"
)

// NewCommand creates the "location" command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Manage workcell locations",
	}
	cmd.AddCommand(newPutCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newDeleteCommand())
	return cmd
}

func newPutCommand() *cobra.Command {
	var (
		representations []string
		resourceID      string
	)
	cmd := &cobra.Command{
		Use:   "put <name>",
		Short: "Create or update a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reps := make(map[string]any, len(representations))
			for _, kv := range representations {
				node, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --representation %q, expected node=value", kv)
				}
				reps[node] = value
			}
			body := map[string]any{
				"name":            args[0],
				"representations": reps,
				"resource_id":     resourceID,
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Put(ctx, "/v1/locations", body, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
	cmd.Flags().StringSliceVar(&representations, "representation", nil, "per-node representation in node=value form")
	cmd.Flags().StringVar(&resourceID, "resource-id", "", "resource occupying this location, if any")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Get(ctx, "/v1/locations", &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <location_id>",
		Short: "Delete a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Delete(ctx, "/v1/locations/"+args[0], &out); err != nil {
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
