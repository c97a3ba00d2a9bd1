package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dottapps/auth-gateway/internal/apiclient"
	"github.com/dottapps/auth-gateway/internal/session"
)

func newTestBroker(srv *httptest.Server) *Broker {
	return New(apiclient.New(apiclient.Config{
		BaseURL:        srv.URL,
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    1,
	}))
}

func identityCredentials() Credentials {
	return Credentials{
		Auth0Token: "at-1",
		Auth0Sub:   "auth0|u1",
		User:       &session.User{Sub: "auth0|u1", Email: "owner@example.com"},
	}
}

func sessionJSON(token string) string {
	return `{
		"session_token": "` + token + `",
		"authenticated": true,
		"user": {"sub": "auth0|u1", "email": "owner@example.com"},
		"tenant": {"id": "t-1", "name": "Acme", "status": "active"},
		"needs_onboarding": false,
		"onboarding_completed": true,
		"current_step": ""
	}`
}

func TestCredentials_Kind(t *testing.T) {
	assert.Equal(t, "identity_claims", identityCredentials().Kind())
	assert.Equal(t, "password", Credentials{Email: "a@b.c", Password: "secret"}.Kind())
	assert.Equal(t, "", Credentials{}.Kind())
	assert.Equal(t, "", Credentials{Email: "a@b.c"}.Kind(), "email alone is not a credential")
}

func TestCreateSession(t *testing.T) {
	var received Credentials
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/create/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sessionJSON("tok-new")))
	}))
	defer srv.Close()

	s, err := newTestBroker(srv).CreateSession(context.Background(), identityCredentials(), EdgeMetadata{})
	require.NoError(t, err)

	assert.Equal(t, "tok-new", s.Token)
	assert.True(t, s.Authenticated)
	assert.Equal(t, "t-1", s.TenantID())
	assert.Equal(t, "auth0|u1", received.Auth0Sub)
}

func TestCreateSession_IdentityClaimsSuppressPassword(t *testing.T) {
	var received Credentials
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sessionJSON("tok-new")))
	}))
	defer srv.Close()

	creds := identityCredentials()
	creds.Email = "owner@example.com"
	creds.Password = "hunter2"

	_, err := newTestBroker(srv).CreateSession(context.Background(), creds, EdgeMetadata{})
	require.NoError(t, err)
	assert.Empty(t, received.Password, "password must not reach the backend alongside identity claims")
}

func TestCreateSession_MissingCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called without credentials")
	}))
	defer srv.Close()

	_, err := newTestBroker(srv).CreateSession(context.Background(), Credentials{}, EdgeMetadata{})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestCreateSession_HTMLBodyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Internal Server Error</h1></body></html>`))
	}))
	defer srv.Close()

	_, err := newTestBroker(srv).CreateSession(context.Background(), identityCredentials(), EdgeMetadata{})
	assert.ErrorIs(t, err, ErrNonJSONResponse)
}

func TestCreateSession_MissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"authenticated": true}`))
	}))
	defer srv.Close()

	_, err := newTestBroker(srv).CreateSession(context.Background(), identityCredentials(), EdgeMetadata{})
	assert.ErrorIs(t, err, ErrNoSessionToken)
}

func TestCreateSession_ForwardsEdgeMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "203.0.113.7", r.Header.Get("CF-Connecting-IP"))
		assert.Equal(t, "8f2c1a-AMS", r.Header.Get("CF-Ray"))
		assert.Equal(t, "NL", r.Header.Get("CF-IPCountry"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sessionJSON("tok-new")))
	}))
	defer srv.Close()

	edge := EdgeMetadata{ClientIP: "203.0.113.7", Ray: "8f2c1a-AMS", Country: "NL"}
	_, err := newTestBroker(srv).CreateSession(context.Background(), identityCredentials(), edge)
	require.NoError(t, err)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/current/", r.URL.Path)
		assert.Equal(t, "Session tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sessionJSON("tok-1")))
	}))
	defer srv.Close()

	s, err := newTestBroker(srv).Fetch(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.True(t, s.Authenticated)
	assert.False(t, s.NeedsOnboarding)
}

func TestFetch_NormalizesUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"authenticated": false, "tenant": {"id": "t-1"}}`))
	}))
	defer srv.Close()

	s, err := newTestBroker(srv).Fetch(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.False(t, s.Authenticated)
	assert.Nil(t, s.Tenant, "an unauthenticated session carries no tenant")
	assert.True(t, s.NeedsOnboarding)
}

func TestUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/update/", r.URL.Path)

		var u session.Update
		require.NoError(t, json.NewDecoder(r.Body).Decode(&u))
		require.NotNil(t, u.CurrentStep)
		assert.Equal(t, "subscription", *u.CurrentStep)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sessionJSON("tok-1")))
	}))
	defer srv.Close()

	step := "subscription"
	s, err := newTestBroker(srv).Update(context.Background(), "tok-1", session.Update{CurrentStep: &step})
	require.NoError(t, err)
	assert.True(t, s.OnboardingCompleted)
}

func TestLogout(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/api/sessions/logout/", r.URL.Path)
		assert.Equal(t, "Session tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestBroker(srv).Logout(context.Background(), "tok-1"))
	assert.True(t, called)
}
