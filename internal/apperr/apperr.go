// Copyright (c) 2026 John Earle
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

// Package apperr defines the structured errors surfaced to callers of the
// ingestion service. Each carries a machine-readable code and an HTTP status.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeMissingField     = "MISSING_FIELD"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeLoopDetected     = "LOOP_DETECTED"
	CodeNoRetry          = "NO_RETRY"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Error is a structured application error.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a diagnostic value.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// MissingField reports a required input that was absent. The token names the
// field, e.g. MISSING_SESSION_ID.
func MissingField(token, message string) *Error {
	return &Error{
		Code:    CodeMissingField,
		Message: message,
		Status:  http.StatusBadRequest,
		Details: map[string]any{"token": token},
	}
}

// ValidationFailed reports a malformed input.
func ValidationFailed(token, message string) *Error {
	return &Error{
		Code:    CodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
		Details: map[string]any{"token": token},
	}
}

// LoopDetected reports that an identical request exceeded its repeat budget.
func LoopDetected(count int, checksum string) *Error {
	return &Error{
		Code:    CodeLoopDetected,
		Message: "request loop detected",
		Status:  http.StatusTooManyRequests,
		Details: map[string]any{"count": count, "checksum": checksum},
	}
}

// NoRetry marks a failure that will not succeed on redelivery.
func NoRetry(message string) *Error {
	return &Error{
		Code:    CodeNoRetry,
		Message: message,
		Status:  http.StatusUnprocessableEntity,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// IsNoRetry reports whether err should be dropped rather than redelivered.
// Validation failures are never retried either.
func IsNoRetry(err error) bool {
	switch CodeOf(err) {
	case CodeNoRetry, CodeMissingField, CodeValidationFailed:
		return true
	}
	return false
}

// IsLoopDetected reports whether err is a loop-detected rejection.
func IsLoopDetected(err error) bool {
	return CodeOf(err) == CodeLoopDetected
}

// Write renders err as a JSON body with its status. Errors that are not an
// *Error are reported as a generic internal error.
func Write(w http.ResponseWriter, err error) {
	var ae *Error
	if !errors.As(err, &ae) {
		ae = &Error{Code: CodeInternalError, Message: "internal error"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusOf(err))
	_ = json.NewEncoder(w).Encode(ae)
}
