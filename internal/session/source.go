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

package session

import "net/http"

// Cookie names. CookieSID and CookieToken always carry the same value; the
// legacy names are actively deleted whenever a new session is established.
const (
	CookieSID   = "sid"
	CookieToken = "session_token"

	CookieLegacyAuth    = "dott_auth_session"
	CookieLegacyApp     = "appSession"
	CookieLegacyPending = "session_pending"
)

// LegacyCookieNames lists every superseded cookie name, in deletion order.
var LegacyCookieNames = []string{CookieLegacyAuth, CookieLegacyApp, CookieLegacyPending}

// SourceKind identifies which cookie generation a request carries.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceLegacy
	SourceV2
)

func (k SourceKind) String() string {
	switch k {
	case SourceLegacy:
		return "legacy"
	case SourceV2:
		return "v2"
	default:
		return "none"
	}
}

// Source is the outcome of resolving a request's session cookies.
type Source struct {
	Kind  SourceKind
	Token string
}

// ResolveSource inspects the request cookies once and decides which session
// source the request carries. This is the only place that knows about the
// legacy/new cookie split; everything downstream works with the Source.
//
// Precedence: the v2 pair wins over any legacy cookie, and within the v2
// pair `sid` wins over `session_token` (they should be identical; if they
// diverge the older `session_token` is the one a stale CDN cache would
// have kept).
func ResolveSource(r *http.Request) Source {
	if c, err := r.Cookie(CookieSID); err == nil && c.Value != "" {
		return Source{Kind: SourceV2, Token: c.Value}
	}
	if c, err := r.Cookie(CookieToken); err == nil && c.Value != "" {
		return Source{Kind: SourceV2, Token: c.Value}
	}
	if c, err := r.Cookie(CookieLegacyAuth); err == nil && c.Value != "" {
		return Source{Kind: SourceLegacy, Token: c.Value}
	}
	return Source{Kind: SourceNone}
}
