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

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/madsci-lab/workcell/internal/cliapp"
	"github.com/madsci-lab/workcell/internal/cliapp/commands/definition"
	"github.com/madsci-lab/workcell/internal/cliapp/commands/location"
	"github.com/madsci-lab/workcell/internal/cliapp/commands/node"
	"github.com/madsci-lab/workcell/internal/cliapp/commands/version"
	"github.com/madsci-lab/workcell/internal/cliapp/commands/workflow"
)

// Version information (injected via ldflags at build time).
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

func main() {
	cliapp.SetVersion(buildVersion, buildCommit, buildDate)

	rootCmd := cliapp.NewRootCommand()

	rootCmd.AddCommand(workflow.NewCommand())
	rootCmd.AddCommand(definition.NewCommand())
	rootCmd.AddCommand(node.NewCommand())
	rootCmd.AddCommand(location.NewCommand())
	rootCmd.AddCommand(version.NewCommand())
	rootCmd.AddCommand(version.NewHealthCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cliapp.HandleExitError(err)
	}
}
