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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeLoginStarted      = "login_started"
	TypeLoginSuccess      = "login_success"
	TypeLoginFailed       = "login_failed"
	TypeExchangeFailed    = "exchange_failed"
	TypeSessionCreated    = "session_created"
	TypeSessionUpdated    = "session_updated"
	TypeSessionSyncFailed = "session_sync_failed"
	TypeSessionSuperseded = "session_superseded"
	TypeLogout            = "logout"
)

// Event represents an auditable action
type Event struct {
	Type      string
	TenantID  string
	Subject   string // identity provider subject id
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
	IPAddress string
	UserAgent string
	CFRay     string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("tenant_id", event.TenantID),
		slog.String("subject", event.Subject),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.CFRay != "" {
		attrs = append(attrs, slog.String("cf_ray", event.CFRay))
	}

	// Flatten metadata
	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			// Redact secrets, truncate bearer material
			if isSecret(k) {
				v = "[REDACTED]"
			} else if isToken(k) {
				if s, ok := v.(string); ok && len(s) > 8 {
					v = s[:8] + "..."
				}
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	secrets := []string{"password", "secret", "client_secret", "authorization", "code"}
	for _, s := range secrets {
		if key == s {
			return true
		}
	}
	return false
}

// isToken checks if a key holds bearer material that must only be previewed
func isToken(key string) bool {
	return strings.Contains(key, "token") || key == "sid"
}
