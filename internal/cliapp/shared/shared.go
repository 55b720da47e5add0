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

// Package shared holds workcellctl's global flag values and version
// metadata, set once by the root command and read by every subcommand
// package.
package shared

import (
	"os"

	"github.com/madsci-lab/workcell/internal/cliclient"
)

var (
	addrFlag string
	jsonFlag bool

	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to flag variables for binding by
// the root command's persistent flags.
func RegisterFlagPointers() (*string, *bool) {
	return &addrFlag, &jsonFlag
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns the version information.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// GetJSON returns the JSON output flag value.
func GetJSON() bool {
	return jsonFlag
}

// Addr returns the configured workcelld address, falling back to the
// WORKCELL_ADDR environment variable and then to a local default.
func Addr() string {
	if addrFlag != "" {
		return addrFlag
	}
	if v := os.Getenv("WORKCELL_ADDR"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// Client builds a cliclient.Client pointed at Addr().
func Client() *cliclient.Client {
	return cliclient.New(Addr())
}
