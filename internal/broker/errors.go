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

package broker

import "errors"

// Domain errors
var (
	// ErrNonJSONResponse means the backend answered with a success status
	// but a non-JSON body (typically an HTML error page from the CDN or a
	// crashed worker). It must never be parsed as session data.
	ErrNonJSONResponse = errors.New("backend returned a non-JSON response")

	// ErrNoSessionToken means the backend reported success without issuing
	// a session token. Fatal: proceeding would leave the browser with a
	// half-established login.
	ErrNoSessionToken = errors.New("backend response missing session token")

	// ErrMissingCredentials means the credential bundle carried neither
	// identity claims nor an email/password pair.
	ErrMissingCredentials = errors.New("credential bundle is empty")
)

// Error codes for the broker's slice of the taxonomy.
const (
	CodeNonJSONResponse = "non_json_response"
	CodeNoSessionToken  = "no_session_token"
	CodeBackendError    = "backend_error"
)
