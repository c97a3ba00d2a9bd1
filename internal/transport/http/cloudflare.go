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

package http

import (
	"errors"
	"net/http"

	"github.com/dottapps/auth-gateway/internal/apiclient"
	"github.com/dottapps/auth-gateway/internal/broker"
)

// ExtractEdge resolves the true client identity from Cloudflare edge
// headers, falling back to the usual proxy headers and RemoteAddr when the
// request did not arrive via the CDN.
func ExtractEdge(r *http.Request) broker.EdgeMetadata {
	ip := r.Header.Get("CF-Connecting-IP")
	if ip == "" {
		ip = r.Header.Get("X-Forwarded-For")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}

	return broker.EdgeMetadata{
		ClientIP: ip,
		Ray:      r.Header.Get("CF-Ray"),
		Country:  r.Header.Get("CF-IPCountry"),
	}
}

// EdgeMiddleware resolves edge metadata once per request and stores it in
// the context for handlers to forward on backend calls.
func EdgeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := withEdge(r.Context(), ExtractEdge(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CORSEcho handles CORS for the auth endpoints. Credentialed requests
// cannot use a wildcard origin, so the request Origin is echoed back
// together with Access-Control-Allow-Credentials.
func CORSEcho(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// respondBackendError writes a backend call failure with its taxonomy code.
// DNS resolution failures get a dedicated 503: they are expected to
// self-heal, and a generic 500 would make the UI show a dead-end error.
func respondBackendError(w http.ResponseWriter, err error) {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.DNSFailure {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   apiErr.Code,
			"message": "backend unavailable, likely transient DNS",
		})
		return
	}

	code := backendErrorCode(err)
	respondJSON(w, statusForCode(code), map[string]string{"error": code})
}

// backendErrorCode maps broker and apiclient failures to taxonomy codes.
func backendErrorCode(err error) string {
	switch {
	case errors.Is(err, broker.ErrNonJSONResponse):
		return broker.CodeNonJSONResponse
	case errors.Is(err, broker.ErrNoSessionToken):
		return broker.CodeNoSessionToken
	default:
		return apiclient.CodeOf(err)
	}
}

// statusForCode picks the response status for a taxonomy code.
func statusForCode(code string) int {
	switch code {
	case apiclient.CodeUnauthorized:
		return http.StatusUnauthorized
	case apiclient.CodeForbidden:
		return http.StatusForbidden
	case apiclient.CodeNotFound:
		return http.StatusNotFound
	case apiclient.CodeRateLimit:
		return http.StatusTooManyRequests
	case apiclient.CodeUnreachable, apiclient.CodeMaintenance, apiclient.CodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
