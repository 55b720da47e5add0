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

package nodeclient

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	wcerrors "github.com/madsci-lab/workcell/pkg/errors"
	"github.com/madsci-lab/workcell/pkg/id"
	"github.com/madsci-lab/workcell/pkg/node"
	"github.com/madsci-lab/workcell/pkg/result"
)

// HTTPClient is the production Client implementation: one instance talks
// to a single node's REST wire contract over HTTP.
type HTTPClient struct {
	NodeName string
	BaseURL  string
	HTTP     *http.Client
	Retry    RetryConfig
	Poll     PollConfig
}

// NewHTTPClient builds a client for the node named name at baseURL (e.g.
// "http://liquid-handler-1.cell.local:8000").
func NewHTTPClient(name, baseURL string) *HTTPClient {
	return &HTTPClient{
		NodeName: name,
		BaseURL:  baseURL,
		HTTP:     &http.Client{},
		Retry:    DefaultRetryConfig(),
		Poll:     DefaultPollConfig(),
	}
}

func (c *HTTPClient) url(format string, args ...any) string {
	return c.BaseURL + fmt.Sprintf(format, args...)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body io.Reader, out any) error {
	_, err := withRetry(ctx, c.Retry, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, path, body)
		if err != nil {
			return struct{}{}, &wcerrors.TransportError{Node: c.NodeName, Op: op, Message: err.Error(), Cause: err}
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return struct{}{}, &wcerrors.TransportError{Node: c.NodeName, Op: op, Message: err.Error(), Cause: err}
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 {
			return struct{}{}, &wcerrors.TransportError{
				Node: c.NodeName, Op: op, StatusCode: resp.StatusCode,
				Message: string(data),
			}
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return struct{}{}, &wcerrors.TransportError{Node: c.NodeName, Op: op, Message: err.Error(), Cause: err}
			}
		}
		return struct{}{}, nil
	})
	return err
}

// GetInfo implements Client.
func (c *HTTPClient) GetInfo(ctx context.Context) (*node.Info, error) {
	var info node.Info
	if err := c.do(ctx, "get_info", http.MethodGet, c.url("/info"), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetStatus implements Client.
func (c *HTTPClient) GetStatus(ctx context.Context) (*node.Status, error) {
	var status node.Status
	if err := c.do(ctx, "get_status", http.MethodGet, c.url("/status"), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetState implements Client.
func (c *HTTPClient) GetState(ctx context.Context) (map[string]any, error) {
	state := make(map[string]any)
	if err := c.do(ctx, "get_state", http.MethodGet, c.url("/state"), nil, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// GetLog implements Client.
func (c *HTTPClient) GetLog(ctx context.Context) (map[string]node.Event, error) {
	log := make(map[string]node.Event)
	if err := c.do(ctx, "get_log", http.MethodGet, c.url("/log"), nil, &log); err != nil {
		return nil, err
	}
	return log, nil
}

// SetConfig implements Client.
func (c *HTTPClient) SetConfig(ctx context.Context, values map[string]any) (*node.SetConfigResponse, error) {
	payload, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	var resp node.SetConfigResponse
	if err := c.do(ctx, "set_config", http.MethodPost, c.url("/config"), bytes.NewReader(payload), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendAdminCommand implements Client.
func (c *HTTPClient) SendAdminCommand(ctx context.Context, cmd node.AdminCommand) (*node.AdminCommandResponse, error) {
	var resp node.AdminCommandResponse
	path := c.url("/admin/%s", url.PathEscape(string(cmd)))
	if err := c.do(ctx, "send_admin_command", http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendAction implements Client: create_action, upload each file, start,
// then poll get_action_result until terminal.
func (c *HTTPClient) SendAction(ctx context.Context, actionName string, args map[string]any, files map[string]string) (*result.ActionResult, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	var created struct {
		ActionID id.ID `json:"action_id"`
	}
	createPath := c.url("/action/%s", url.PathEscape(actionName))
	if err := c.do(ctx, "send_action", http.MethodPost, createPath, bytes.NewReader(payload), &created); err != nil {
		return nil, err
	}

	for arg, path := range files {
		if err := c.uploadFile(ctx, actionName, created.ActionID, arg, path); err != nil {
			return nil, withActionID(err, created.ActionID)
		}
	}

	startPath := c.url("/action/%s/%s/start", url.PathEscape(actionName), created.ActionID)
	res, err := c.doActionResult(ctx, "send_action", http.MethodPost, startPath)
	if err != nil {
		return nil, withActionID(err, created.ActionID)
	}

	if res.Status.Terminal() {
		return res, nil
	}
	return pollUntilTerminal(ctx, c.Poll, func(ctx context.Context) (*result.ActionResult, error) {
		return c.GetActionResult(ctx, created.ActionID)
	})
}

// withActionID tags a transport error with the action ID the node had
// already accepted when the failure occurred, so callers can distinguish
// "never created" from "created, then lost contact".
func withActionID(err error, actionID id.ID) error {
	var transportErr *wcerrors.TransportError
	if wcerrors.As(err, &transportErr) {
		transportErr.ActionID = actionID.String()
	}
	return err
}

func (c *HTTPClient) uploadFile(ctx context.Context, actionName string, actionID id.ID, arg, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(arg, arg)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	uploadPath := c.url("/action/%s/%s/upload/%s", url.PathEscape(actionName), actionID, url.PathEscape(arg))
	_, err = withRetry(ctx, c.Retry, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadPath, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return struct{}{}, &wcerrors.TransportError{Node: c.NodeName, Op: "upload", Message: err.Error(), Cause: err}
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return struct{}{}, &wcerrors.TransportError{Node: c.NodeName, Op: "upload", Message: err.Error(), Cause: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(resp.Body)
			return struct{}{}, &wcerrors.TransportError{Node: c.NodeName, Op: "upload", StatusCode: resp.StatusCode, Message: string(data)}
		}
		return struct{}{}, nil
	})
	return err
}

// GetActionResult implements Client.
func (c *HTTPClient) GetActionResult(ctx context.Context, actionID id.ID) (*result.ActionResult, error) {
	path := c.url("/action/%s/result", actionID)
	return c.doActionResult(ctx, "get_action_result", http.MethodGet, path)
}

// doActionResult issues a request that may come back either as the JSON
// envelope or, when the result carries file outputs, as the binary
// variant (metadata in x-madsci-* headers, body a raw file or zip
// archive).
func (c *HTTPClient) doActionResult(ctx context.Context, op, method, path string) (*result.ActionResult, error) {
	return withRetry(ctx, c.Retry, func(ctx context.Context) (*result.ActionResult, error) {
		req, err := http.NewRequestWithContext(ctx, method, path, nil)
		if err != nil {
			return nil, &wcerrors.TransportError{Node: c.NodeName, Op: op, Message: err.Error(), Cause: err}
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, &wcerrors.TransportError{Node: c.NodeName, Op: op, Message: err.Error(), Cause: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(resp.Body)
			return nil, &wcerrors.TransportError{Node: c.NodeName, Op: op, StatusCode: resp.StatusCode, Message: string(data)}
		}

		if resp.Header.Get("x-madsci-status") != "" {
			res, err := parseBinaryActionResult(resp)
			if err != nil {
				return nil, &wcerrors.TransportError{Node: c.NodeName, Op: op, Message: err.Error(), Cause: err}
			}
			return res, nil
		}

		var res result.ActionResult
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &wcerrors.TransportError{Node: c.NodeName, Op: op, Message: err.Error(), Cause: err}
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &res); err != nil {
				return nil, &wcerrors.TransportError{Node: c.NodeName, Op: op, Message: err.Error(), Cause: err}
			}
		}
		return &res, nil
	})
}

// parseBinaryActionResult reconstructs an ActionResult from the
// x-madsci-* headers and downloads the body (a single file or a zip of
// labeled files) into local temp files, populating res.Files the same
// way the JSON-envelope variant's Files map does.
func parseBinaryActionResult(resp *http.Response) (*result.ActionResult, error) {
	var res result.ActionResult
	for header, dst := range map[string]any{
		"x-madsci-status":     &res.Status,
		"x-madsci-action-id":  &res.ActionID,
		"x-madsci-errors":     &res.Errors,
		"x-madsci-datapoints": &res.Datapoints,
		"x-madsci-data":       &res.Data,
	} {
		if v := resp.Header.Get(header); v != "" {
			if err := json.Unmarshal([]byte(v), dst); err != nil {
				return nil, fmt.Errorf("decoding %s header: %w", header, err)
			}
		}
	}

	var labels map[string]string
	if v := resp.Header.Get("x-madsci-files"); v != "" {
		if err := json.Unmarshal([]byte(v), &labels); err != nil {
			return nil, fmt.Errorf("decoding x-madsci-files header: %w", err)
		}
	}
	res.Files = make(map[string]string, len(labels))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.Header.Get("Content-Type") == "application/zip" {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, err
		}
		for _, entry := range zr.File {
			label := entry.Name[:len(entry.Name)-len(filepath.Ext(entry.Name))]
			path, err := saveToTempFile(entry.Name, func(w io.Writer) error {
				rc, err := entry.Open()
				if err != nil {
					return err
				}
				defer rc.Close()
				_, err = io.Copy(w, rc)
				return err
			})
			if err != nil {
				return nil, err
			}
			res.Files[label] = path
		}
		return &res, nil
	}

	var name string
	for label := range labels {
		name = label
		break
	}
	path, err := saveToTempFile(name, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	if name != "" {
		res.Files[name] = path
	}
	return &res, nil
}

func saveToTempFile(name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp("", "workcell-result-*-"+filepath.Base(name))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return "", err
	}
	return f.Name(), nil
}
