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
	"net/http"

	"github.com/dottapps/auth-gateway/internal/session"
)

// CookieConfig holds session cookie configuration
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

// setSessionCookies establishes the session cookie pair and invalidates
// every superseded cookie in the same response. After this call exactly one
// valid bearer value exists in the browser: `sid` and `session_token` carry
// the new token, and the legacy names are deleted.
//
// Cookies are httpOnly always and Secure in production. SameSite defaults
// to Lax for compatibility with the top-level redirect flow through the CDN.
func (h *Handler) setSessionCookies(w http.ResponseWriter, token string) {
	for _, name := range []string{session.CookieSID, session.CookieToken} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    token,
			Path:     h.cookieCfg.Path,
			Domain:   h.cookieCfg.Domain,
			Secure:   h.cookieCfg.Secure,
			HttpOnly: true,
			SameSite: h.cookieCfg.SameSite,
			MaxAge:   h.cookieCfg.MaxAge,
		})
	}
	h.deleteLegacyCookies(w)
}

// clearSessionCookies removes the session pair and the legacy names.
func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{session.CookieSID, session.CookieToken} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     h.cookieCfg.Path,
			Domain:   h.cookieCfg.Domain,
			HttpOnly: true,
			MaxAge:   -1,
		})
	}
	h.deleteLegacyCookies(w)
}

func (h *Handler) deleteLegacyCookies(w http.ResponseWriter) {
	for _, name := range session.LegacyCookieNames {
		http.SetCookie(w, &http.Cookie{
			Name:   name,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}
}

// ParseSameSite maps the configured SameSite string onto the http constant.
// Lax is the default: Strict breaks the top-level redirect back from the
// provider, and None requires Secure everywhere.
func ParseSameSite(s string) http.SameSite {
	switch s {
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
