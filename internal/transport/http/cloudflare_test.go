package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dottapps/auth-gateway/internal/apiclient"
	"github.com/dottapps/auth-gateway/internal/broker"
)

func TestExtractEdge(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    broker.EdgeMetadata
	}{
		{
			name: "cloudflare headers win",
			headers: map[string]string{
				"CF-Connecting-IP": "203.0.113.7",
				"X-Forwarded-For":  "10.0.0.1",
				"CF-Ray":           "8f2c1a-AMS",
				"CF-IPCountry":     "NL",
			},
			want: broker.EdgeMetadata{ClientIP: "203.0.113.7", Ray: "8f2c1a-AMS", Country: "NL"},
		},
		{
			name:    "x-forwarded-for fallback",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.1"},
			want:    broker.EdgeMetadata{ClientIP: "10.0.0.1"},
		},
		{
			name: "remote addr fallback",
			want: broker.EdgeMetadata{ClientIP: "192.0.2.1:1234"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ExtractEdge(r))
		})
	}
}

func TestCORSEcho_EchoesOrigin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	r.Header.Set("Origin", "https://app.dott.test")
	w := httptest.NewRecorder()
	CORSEcho(next).ServeHTTP(w, r)

	assert.Equal(t, "https://app.dott.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Values("Vary"), "Origin")
}

func TestCORSEcho_NoOriginNoHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	r := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	w := httptest.NewRecorder()
	CORSEcho(next).ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSEcho_Preflight(t *testing.T) {
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})

	r := httptest.NewRequest(http.MethodOptions, "/api/auth/session", nil)
	r.Header.Set("Origin", "https://app.dott.test")
	w := httptest.NewRecorder()
	CORSEcho(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, nextCalled)
	assert.Equal(t, "https://app.dott.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRespondBackendError_DNSFailure(t *testing.T) {
	w := httptest.NewRecorder()
	respondBackendError(w, &apiclient.Error{
		Code:       apiclient.CodeUnreachable,
		Message:    "no such host",
		DNSFailure: true,
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "transient DNS")
	assert.Contains(t, w.Body.String(), apiclient.CodeUnreachable)
}

func TestBackendErrorCode(t *testing.T) {
	assert.Equal(t, broker.CodeNonJSONResponse, backendErrorCode(broker.ErrNonJSONResponse))
	assert.Equal(t, broker.CodeNoSessionToken, backendErrorCode(broker.ErrNoSessionToken))
	assert.Equal(t, apiclient.CodeTimeout, backendErrorCode(&apiclient.Error{Code: apiclient.CodeTimeout}))
	assert.Equal(t, apiclient.CodeUnknown, backendErrorCode(assert.AnError))
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{apiclient.CodeUnauthorized, http.StatusUnauthorized},
		{apiclient.CodeForbidden, http.StatusForbidden},
		{apiclient.CodeNotFound, http.StatusNotFound},
		{apiclient.CodeRateLimit, http.StatusTooManyRequests},
		{apiclient.CodeTimeout, http.StatusServiceUnavailable},
		{apiclient.CodeMaintenance, http.StatusServiceUnavailable},
		{apiclient.CodeUnreachable, http.StatusServiceUnavailable},
		{apiclient.CodeServerError, http.StatusBadGateway},
		{broker.CodeNonJSONResponse, http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForCode(tt.code), "code %s", tt.code)
	}
}
