package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dottapps/auth-gateway/internal/apiclient"
	"github.com/dottapps/auth-gateway/internal/audit"
	"github.com/dottapps/auth-gateway/internal/broker"
	"github.com/dottapps/auth-gateway/internal/idp"
	"github.com/dottapps/auth-gateway/internal/session"
	"github.com/dottapps/auth-gateway/internal/tenant"
)

// fakeFetcher implements session.Fetcher for handler tests.
type fakeFetcher struct {
	fetchCalls  atomic.Int32
	logoutCalls atomic.Int32
	session     *session.Session
	updateFn    func(token string, u session.Update) (*session.Session, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, token string) (*session.Session, error) {
	f.fetchCalls.Add(1)
	copied := *f.session
	return &copied, nil
}

func (f *fakeFetcher) Update(ctx context.Context, token string, u session.Update) (*session.Session, error) {
	return f.updateFn(token, u)
}

func (f *fakeFetcher) Logout(ctx context.Context, token string) error {
	f.logoutCalls.Add(1)
	return nil
}

func activeSession() *session.Session {
	return &session.Session{
		Authenticated:       true,
		User:                &session.User{Sub: "auth0|u1", Email: "owner@example.com"},
		Tenant:              &tenant.Tenant{ID: "t-1", Name: "Acme", Status: tenant.StatusActive},
		OnboardingCompleted: true,
	}
}

func newTestHandler(t *testing.T, f session.Fetcher, b *broker.Broker) *Handler {
	t.Helper()
	idpClient := idp.NewClient(idp.Config{
		Domain:      "dott-test.eu.auth0.com",
		ClientID:    "client-id",
		RedirectURI: "https://app.dott.test/api/auth/exchange",
		Scopes:      "openid profile email",
	})
	return NewHandler(
		idpClient,
		b,
		session.NewRegistry(f, time.Minute),
		audit.NewSlogLogger(),
		nil,
		CookieConfig{Path: "/", SameSite: http.SameSiteLaxMode, MaxAge: 86400},
	)
}

func backendBroker(srv *httptest.Server) *broker.Broker {
	return broker.New(apiclient.New(apiclient.Config{
		BaseURL:        srv.URL,
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    1,
	}))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(t, &fakeFetcher{session: activeSession()}, nil)
	router := NewRouter(h, NewRateLimiter(100, 100))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
}

func TestLogin_RedirectsToProvider(t *testing.T) {
	h := newTestHandler(t, &fakeFetcher{session: activeSession()}, nil)

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))

	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	assert.Contains(t, location, "dott-test.eu.auth0.com/authorize")
	assert.Contains(t, location, "code_challenge_method=S256")
	assert.Contains(t, location, "state=")
}

func TestGetSession_NoCookieServesLoggedOutShape(t *testing.T) {
	f := &fakeFetcher{session: activeSession()}
	h := newTestHandler(t, f, nil)

	w := httptest.NewRecorder()
	h.GetSession(w, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, true, body["needsOnboarding"])
	assert.Equal(t, int32(0), f.fetchCalls.Load(), "no backend call without a cookie")
}

func TestGetSession_WithCookie(t *testing.T) {
	f := &fakeFetcher{session: activeSession()}
	h := newTestHandler(t, f, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	r.AddCookie(&http.Cookie{Name: session.CookieSID, Value: "tok-1"})
	w := httptest.NewRecorder()
	h.GetSession(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "t-1", body["tenantId"])
}

func TestGetSession_ForceRefresh(t *testing.T) {
	f := &fakeFetcher{session: activeSession()}
	h := newTestHandler(t, f, nil)

	get := func(path string) {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.AddCookie(&http.Cookie{Name: session.CookieSID, Value: "tok-1"})
		h.GetSession(httptest.NewRecorder(), r)
	}

	get("/api/auth/session")
	get("/api/auth/session")
	assert.Equal(t, int32(1), f.fetchCalls.Load(), "second read within TTL is served from cache")

	get("/api/auth/session?refresh=true")
	assert.Equal(t, int32(2), f.fetchCalls.Load())
}

func TestUpdateSession_NoCookie(t *testing.T) {
	h := newTestHandler(t, &fakeFetcher{session: activeSession()}, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/update-session", strings.NewReader(`{"currentStep":"x"}`))
	w := httptest.NewRecorder()
	h.UpdateSession(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateSession_EmptyUpdate(t *testing.T) {
	h := newTestHandler(t, &fakeFetcher{session: activeSession()}, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/update-session", strings.NewReader(`{}`))
	r.AddCookie(&http.Cookie{Name: session.CookieSID, Value: "tok-1"})
	w := httptest.NewRecorder()
	h.UpdateSession(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateSession_Success(t *testing.T) {
	f := &fakeFetcher{session: activeSession()}
	f.updateFn = func(token string, u session.Update) (*session.Session, error) {
		assert.Equal(t, "tok-1", token)
		s := activeSession()
		s.CurrentStep = *u.CurrentStep
		return s, nil
	}
	h := newTestHandler(t, f, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/update-session", strings.NewReader(`{"currentStep":"subscription"}`))
	r.AddCookie(&http.Cookie{Name: session.CookieSID, Value: "tok-1"})
	w := httptest.NewRecorder()
	h.UpdateSession(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "subscription", decodeBody(t, w)["currentStep"])
}

func TestLogout(t *testing.T) {
	f := &fakeFetcher{session: activeSession()}
	h := newTestHandler(t, f, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: session.CookieSID, Value: "tok-1"})
	w := httptest.NewRecorder()
	h.Logout(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), f.logoutCalls.Load())

	sid := cookieByName(t, w.Result().Cookies(), session.CookieSID)
	assert.Empty(t, sid.Value)
	assert.Negative(t, sid.MaxAge)
}

func TestLogout_WithoutCookieStillClears(t *testing.T) {
	f := &fakeFetcher{session: activeSession()}
	h := newTestHandler(t, f, nil)

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(0), f.logoutCalls.Load())
	cookieByName(t, w.Result().Cookies(), session.CookieSID)
}

func TestExchange_MissingCodeRedirectsToSignin(t *testing.T) {
	h := newTestHandler(t, &fakeFetcher{session: activeSession()}, nil)

	w := httptest.NewRecorder()
	h.Exchange(w, httptest.NewRequest(http.MethodGet, "/api/auth/exchange?state=abc", nil))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, signinPath+"?error=missing_code", w.Header().Get("Location"))
	assert.Empty(t, w.Result().Cookies(), "a failed exchange must not touch cookies")
}

func TestExchange_UnknownStateRedirectsToSignin(t *testing.T) {
	h := newTestHandler(t, &fakeFetcher{session: activeSession()}, nil)

	w := httptest.NewRecorder()
	h.Exchange(w, httptest.NewRequest(http.MethodGet, "/api/auth/exchange?code=abc&state=forged", nil))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, signinPath+"?error=state_mismatch", w.Header().Get("Location"))
}

func TestCloudflareSession_MissingCredentials(t *testing.T) {
	h := newTestHandler(t, &fakeFetcher{session: activeSession()}, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/cloudflare-session", strings.NewReader(`{"email":"a@b.c"}`))
	w := httptest.NewRecorder()
	h.CloudflareSession(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCloudflareSession_Success(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/create/", r.URL.Path)
		assert.Equal(t, "203.0.113.7", r.Header.Get("CF-Connecting-IP"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"session_token": "tok-new",
			"authenticated": true,
			"user": {"sub": "auth0|u1", "email": "owner@example.com"},
			"tenant": {"id": "t-1"}
		}`))
	}))
	defer backend.Close()

	h := newTestHandler(t, &fakeFetcher{session: activeSession()}, backendBroker(backend))
	router := NewRouter(h, NewRateLimiter(100, 100))

	body := `{"auth0_token":"at-1","auth0_sub":"auth0|u1"}`
	r := httptest.NewRequest(http.MethodPost, "/api/auth/cloudflare-session", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Origin", "https://app.dott.test")
	r.Header.Set("CF-Connecting-IP", "203.0.113.7")
	// A stale login should be superseded, not accumulated.
	r.AddCookie(&http.Cookie{Name: session.CookieSID, Value: "tok-old"})
	r.AddCookie(&http.Cookie{Name: session.CookieLegacyAuth, Value: "tok-ancient"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	respBody := decodeBody(t, w)
	assert.Equal(t, true, respBody["success"])
	assert.Equal(t, true, respBody["authenticated"])

	// Credentialed CORS: the request origin is echoed, never a wildcard.
	assert.Equal(t, "https://app.dott.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	cookies := w.Result().Cookies()
	assert.Equal(t, "tok-new", cookieByName(t, cookies, session.CookieSID).Value)
	assert.Equal(t, "tok-new", cookieByName(t, cookies, session.CookieToken).Value)
	assert.Negative(t, cookieByName(t, cookies, session.CookieLegacyAuth).MaxAge)
}

func TestCloudflareSession_DNSFailureAnswers503(t *testing.T) {
	b := broker.New(apiclient.New(apiclient.Config{
		BaseURL:        "http://backend.dott.invalid",
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    1,
	}))
	h := newTestHandler(t, &fakeFetcher{session: activeSession()}, b)

	body := `{"auth0_token":"at-1","auth0_sub":"auth0|u1"}`
	r := httptest.NewRequest(http.MethodPost, "/api/auth/cloudflare-session", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CloudflareSession(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "transient DNS")
}

func TestCloudflareSession_BackendHTMLAnswersBadGateway(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html>Internal Server Error</html>`))
	}))
	defer backend.Close()

	h := newTestHandler(t, &fakeFetcher{session: activeSession()}, backendBroker(backend))

	body := `{"auth0_token":"at-1","auth0_sub":"auth0|u1"}`
	r := httptest.NewRequest(http.MethodPost, "/api/auth/cloudflare-session", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CloudflareSession(w, r)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), broker.CodeNonJSONResponse)
}
