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

package errors

import (
	"errors"
	"fmt"
)

// wrapped annotates an error with call-site context while keeping the
// cause's classification intact: wrapping adds to the message, never
// changes the category or retryability the control plane and the node
// client's retry loop act on. An untagged cause classifies as an
// InternalError.
type wrapped struct {
	msg   string
	cause error
}

// Error implements the error interface.
func (e *wrapped) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
}

// Unwrap exposes the cause so errors.Is/As see through the annotation.
func (e *wrapped) Unwrap() error { return e.cause }

// ErrorType delegates to the cause's category.
func (e *wrapped) ErrorType() string { return TypeOf(e.cause) }

// IsRetryable delegates to the cause.
func (e *wrapped) IsRetryable() bool { return Retryable(e.cause) }

// Wrap annotates err with call-site context, preserving its tagged
// category through the ErrorClassifier interface. A nil err returns nil.
//
//	if err := store.PutFile(ctx, key, path); err != nil {
//	    return errors.Wrap(err, "uploading file input")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrapped{msg: message, cause: err}
}

// Wrapf is Wrap with a formatted message.
//
//	return errors.Wrapf(err, "feed-forward %q: reading datapoint %s", key, dpID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{msg: fmt.Sprintf(format, args...), cause: err}
}

// TypeOf walks err's chain for the first ErrorClassifier and returns its
// category. Untagged errors report "InternalError", matching how the
// control plane surfaces them (HTTP 500, workflow left in its last
// persisted state).
func TypeOf(err error) string {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorType()
	}
	return "InternalError"
}

// Retryable walks err's chain for the first ErrorClassifier and reports
// its retryability. Untagged errors are not retryable.
func Retryable(err error) bool {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.IsRetryable()
	}
	return false
}

// Is reports whether any error in err's chain matches target, seeing
// through Wrap annotations.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type, seeing
// through Wrap annotations.
//
//	var transportErr *errors.TransportError
//	if errors.As(err, &transportErr) && transportErr.ActionID != "" { ... }
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New builds an untagged error from a bare message, for failures that
// don't fit one of the package's categories.
func New(message string) error {
	return errors.New(message)
}
