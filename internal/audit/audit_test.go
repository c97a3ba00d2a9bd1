package audit

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// capture routes the default slog output into a buffer for the test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestSlogLogger_Log(t *testing.T) {
	buf := capture(t)

	NewSlogLogger().Log(context.Background(), Event{
		Type:      TypeLoginSuccess,
		TenantID:  "t-1",
		Subject:   "auth0|u1",
		Resource:  "session",
		IPAddress: "203.0.113.7",
		CFRay:     "8f2c1a-AMS",
	})

	out := buf.String()
	assert.Contains(t, out, "AUDIT_EVENT")
	assert.Contains(t, out, TypeLoginSuccess)
	assert.Contains(t, out, "auth0|u1")
	assert.Contains(t, out, "8f2c1a-AMS")
}

func TestSlogLogger_RedactsSecrets(t *testing.T) {
	buf := capture(t)

	NewSlogLogger().Log(context.Background(), Event{
		Type:     TypeLoginFailed,
		Resource: "login",
		Metadata: map[string]any{
			"password": "hunter2",
			"code":     "auth-code-abc",
		},
	})

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "auth-code-abc")
	assert.Contains(t, out, "[REDACTED]")
}

func TestSlogLogger_TruncatesTokens(t *testing.T) {
	buf := capture(t)

	NewSlogLogger().Log(context.Background(), Event{
		Type:     TypeSessionCreated,
		Resource: "session",
		Metadata: map[string]any{
			"session_token": "abcdefghijklmnopqrstuvwxyz",
		},
	})

	out := buf.String()
	assert.NotContains(t, out, "abcdefghijklmnopqrstuvwxyz")
	assert.Contains(t, out, "abcdefgh...")
}
