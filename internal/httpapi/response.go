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

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAPIError classifies err against the pkg/errors tagged categories,
// seeing through Wrap annotations, and writes the matching status code.
// Untagged errors surface as 500.
func writeAPIError(w http.ResponseWriter, err error) {
	var status int
	switch wcerrors.TypeOf(err) {
	case "ValidationError":
		status = http.StatusBadRequest
	case "NotFoundError":
		status = http.StatusNotFound
	case "TransportError":
		status = http.StatusBadGateway
	case "ActionError":
		status = http.StatusUnprocessableEntity
	case "TimeoutError":
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusInternalServerError
	}
	writeError(w, status, err.Error())
}
