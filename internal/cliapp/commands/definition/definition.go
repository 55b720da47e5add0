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

// Package definition implements the "workcellctl definition" command
// group: registering and retrieving workflow definitions.
package definition

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/madsci-lab/workcell/internal/cliapp/shared"
	"github.com/madsci-lab/workcell/pkg/workflow"
)

// NewCommand creates the "definition" command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "definition",
		Short: "Register and inspect workflow definitions",
	}
	cmd.AddCommand(newPutCommand())
	cmd.AddCommand(newGetCommand())
	return cmd
}

func newPutCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Register a workflow definition from a YAML or JSON file, creating a new version if the name already exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			var body any
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml":
				def, err := workflow.ParseDefinition(data)
				if err != nil {
					return fmt.Errorf("parsing %s: %w", path, err)
				}
				body = def
			default:
				var def map[string]any
				if err := json.Unmarshal(data, &def); err != nil {
					return fmt.Errorf("parsing %s: %w", path, err)
				}
				body = def
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Post(ctx, "/v1/workflow_definitions", body, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "path to a YAML or JSON workflow definition")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <definition_id>",
		Short: "Show a registered workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Get(ctx, "/v1/workflow_definitions/"+args[0], &out); err != nil {
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
