// Copyright 2026 The Dott Authors
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

package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced by backend calls. They are part of the gateway's
// stable error taxonomy; the UI maps each code to a human-readable message.
const (
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeRateLimit    = "rate_limit"
	CodeServerError  = "server_error"
	CodeMaintenance  = "maintenance"
	CodeTimeout      = "timeout"
	CodeUnreachable  = "backend_unreachable"
	CodeUnknown      = "unknown_error"
)

// Error is a classified backend call failure.
type Error struct {
	Code       string
	Status     int    // HTTP status, 0 for transport-level failures
	Message    string
	DNSFailure bool // name resolution failed; expected to self-heal
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backend error: %s (status %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("backend error: %s: %s", e.Code, e.Message)
}

// Classify maps an HTTP status code onto the error taxonomy. It is a pure
// function: the same status always yields the same code.
func Classify(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusTooManyRequests:
		return CodeRateLimit
	case http.StatusInternalServerError:
		return CodeServerError
	case http.StatusServiceUnavailable:
		return CodeMaintenance
	default:
		return CodeUnknown
	}
}

// IsRetryable reports whether a failed attempt may be retried. Only
// transport-level failures, timeouts, and 5xx responses are transient;
// client errors are not.
func IsRetryable(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return true // unclassified transport error
	}
	switch apiErr.Code {
	case CodeTimeout, CodeUnreachable:
		return true
	}
	return apiErr.Status >= 500
}

// CodeOf extracts the taxonomy code from an error, falling back to
// unknown_error for anything unclassified.
func CodeOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return CodeUnknown
}
