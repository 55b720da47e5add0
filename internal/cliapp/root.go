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

// Package cliapp assembles the workcellctl root command.
package cliapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/madsci-lab/workcell/internal/cliapp/shared"
	"github.com/madsci-lab/workcell/internal/cliclient"
)

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for workcellctl.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workcellctl",
		Short: "workcellctl - workcell orchestration control plane client",
		Long: `workcellctl is a command-line client for the workcell control plane.
It submits workflows, inspects their progress, registers instrument
nodes, and manages the location table a running workcelld serves over
its HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Accept snake_case flag spellings for the dash-separated flags.
	cmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	addr, jsonOut := shared.RegisterFlagPointers()
	cmd.PersistentFlags().StringVar(addr, "addr", "", "workcelld address (default: $WORKCELL_ADDR or http://localhost:8080)")
	cmd.PersistentFlags().BoolVar(jsonOut, "json", false, "output in JSON format")

	return cmd
}

// HandleExitError prints err to stderr and exits with the matching code:
// 2 for a validation failure, 130 when interrupted, 1 otherwise. A nil
// err is a no-op.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)

	var apiErr *cliclient.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest:
		os.Exit(2)
	case errors.Is(err, context.Canceled):
		os.Exit(130)
	default:
		os.Exit(1)
	}
}
