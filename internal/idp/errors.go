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

package idp

import "errors"

// Domain errors. All of them are fatal to the current login attempt: the
// exchange is never retried because authorization codes are single-use, so
// the caller must restart the redirect flow instead.
var (
	ErrMissingCode         = errors.New("missing authorization code")
	ErrStateMismatch       = errors.New("state parameter does not match a registered login")
	ErrInvalidGrant        = errors.New("authorization code rejected by provider")
	ErrProviderUnreachable = errors.New("identity provider unreachable")
	ErrMalformedResponse   = errors.New("malformed token response from provider")
)

// Error codes for the sign-in redirect query string.
const (
	CodeMissingCode         = "missing_code"
	CodeStateMismatch       = "state_mismatch"
	CodeInvalidGrant        = "invalid_grant"
	CodeProviderUnreachable = "provider_unreachable"
)

// ErrorCode maps an exchange error onto its taxonomy code. Unknown errors
// map to invalid_grant so the UI shows the generic restart-login message.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingCode):
		return CodeMissingCode
	case errors.Is(err, ErrStateMismatch):
		return CodeStateMismatch
	case errors.Is(err, ErrProviderUnreachable):
		return CodeProviderUnreachable
	default:
		return CodeInvalidGrant
	}
}
