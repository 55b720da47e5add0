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

// Package workflow implements the "workcellctl workflow" command group:
// submitting, inspecting, cancelling, pausing/resuming, and retrying
// workflows against a running workcelld.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/madsci-lab/workcell/internal/cliapp/shared"
	"github.com/madsci-lab/workcell/internal/cliclient"
)

// NewCommand creates the "workflow" command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Submit and manage workflows",
	}
	cmd.AddCommand(newSubmitCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newCancelCommand())
	cmd.AddCommand(newPauseCommand())
	cmd.AddCommand(newResumeCommand())
	cmd.AddCommand(newRetryCommand())
	return cmd
}

func newSubmitCommand() *cobra.Command {
	var (
		inputs []string
		files  []string
	)
	cmd := &cobra.Command{
		Use:   "submit <workflow_definition_id>",
		Short: "Submit a workflow for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, args[0], inputs, files)
		},
	}
	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "JSON input in key=value format (value parsed as JSON, falling back to string)")
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "File input in key=path format")
	return cmd
}

func runSubmit(cmd *cobra.Command, definitionID string, inputs, files []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	values := make(map[string]any, len(inputs))
	for _, kv := range inputs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --input %q, expected key=value", kv)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			parsed = v
		}
		values[k] = parsed
	}
	jsonInputs, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshaling inputs: %w", err)
	}

	form := cliclient.SubmitForm{
		WorkflowDefinitionID: definitionID,
		JSONInputs:           string(jsonInputs),
		Files:                make(map[string]string, len(files)),
	}
	for _, kv := range files {
		k, path, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --file %q, expected key=path", kv)
		}
		form.Files[k] = path
	}

	var out map[string]any
	if err := shared.Client().PostMultipart(ctx, "/v1/workflows", form, &out); err != nil {
		return err
	}
	return printResult(cmd, out)
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <workflow_id>",
		Short: "Show a workflow's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Get(ctx, "/v1/workflows/"+args[0], &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func newListCommand() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			path := "/v1/workflows"
			switch status {
			case "", "active":
			case "archived":
				path += "?archived=true"
			case "queue":
				path += "/queue"
			default:
				return fmt.Errorf("invalid --status %q, expected active, archived, or queue", status)
			}
			var out map[string]any
			if err := shared.Client().Get(ctx, path, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "list view (active, archived, queue)")
	return cmd
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <workflow_id>",
		Short: "Cancel a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Post(ctx, "/v1/workflows/"+args[0]+"/cancel", nil, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func newPauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <workflow_id>",
		Short: "Pause a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Post(ctx, "/v1/workflows/"+args[0]+"/pause", nil, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <workflow_id>",
		Short: "Resume a paused workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var out map[string]any
			if err := shared.Client().Post(ctx, "/v1/workflows/"+args[0]+"/resume", nil, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func newRetryCommand() *cobra.Command {
	var stepIndex int
	cmd := &cobra.Command{
		Use:   "retry <workflow_id>",
		Short: "Retry a failed or cancelled workflow from a given step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			body := map[string]int{"step_index": stepIndex}
			var out map[string]any
			if err := shared.Client().Post(ctx, "/v1/workflows/"+args[0]+"/retry", body, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
	cmd.Flags().IntVar(&stepIndex, "step", 0, "step index to resume from")
	return cmd
}

func printResult(cmd *cobra.Command, out map[string]any) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
