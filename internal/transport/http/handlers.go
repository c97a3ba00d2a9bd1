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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dottapps/auth-gateway/internal/audit"
	"github.com/dottapps/auth-gateway/internal/broker"
	"github.com/dottapps/auth-gateway/internal/idp"
	"github.com/dottapps/auth-gateway/internal/observability/logger"
	"github.com/dottapps/auth-gateway/internal/observability/metrics"
	"github.com/dottapps/auth-gateway/internal/session"
)

// signinPath is where login failures land, carrying the taxonomy code in
// the query string for the UI to map to a message.
const signinPath = "/auth/signin"

// Handler holds HTTP handlers and dependencies
type Handler struct {
	idpClient   *idp.Client
	broker      *broker.Broker
	sessions    *session.Registry
	auditLogger audit.Logger
	authMetrics *metrics.AuthMetrics
	cookieCfg   CookieConfig
	validate    *validator.Validate
}

// NewHandler creates a new HTTP handler
func NewHandler(
	idpClient *idp.Client,
	sessionBroker *broker.Broker,
	sessions *session.Registry,
	auditLogger audit.Logger,
	authMetrics *metrics.AuthMetrics,
	cookieCfg CookieConfig,
) *Handler {
	return &Handler{
		idpClient:   idpClient,
		broker:      sessionBroker,
		sessions:    sessions,
		auditLogger: auditLogger,
		authMetrics: authMetrics,
		cookieCfg:   cookieCfg,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(EdgeMiddleware)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Auth hand-off routes
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(CORSEcho)

		r.Get("/login", h.Login)
		r.Get("/exchange", h.Exchange)
		r.Get("/session", h.GetSession)
		r.Post("/update-session", h.UpdateSession)
		r.Post("/logout", h.Logout)
		r.Post("/cloudflare-session", h.CloudflareSession)
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "auth-gateway",
	})
}

// Login starts the redirect flow: registers state and PKCE verifier, then
// sends the browser to the provider authorize URL.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	authorizeURL, err := h.idpClient.BeginLogin()
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to begin login", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to start login")
		return
	}

	edge := GetEdge(r.Context())
	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLoginStarted,
		Resource:  "login",
		IPAddress: edge.ClientIP,
		UserAgent: r.UserAgent(),
		CFRay:     edge.Ray,
	})

	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// exchangeResponse is the success payload of the exchange callback.
type exchangeResponse struct {
	Success         bool          `json:"success"`
	Authenticated   bool          `json:"authenticated"`
	User            *session.User `json:"user"`
	NeedsOnboarding bool          `json:"needsOnboarding"`
}

// Exchange handles the provider redirect callback: code-for-token exchange,
// session brokering, and cookie supersession, in that order. Any failure
// redirects back to the sign-in page with the taxonomy code; the exchange
// itself is never retried because codes are single-use.
func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	edge := GetEdge(ctx)
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	claims, err := h.idpClient.Exchange(ctx, code, state)
	if err != nil {
		errCode := idp.ErrorCode(err)
		slog.WarnContext(ctx, "code exchange failed",
			logger.Component("exchange"),
			logger.ErrorCode(errCode),
			logger.Error(err),
		)
		h.loginFailed(ctx, r, audit.TypeExchangeFailed, errCode, "")
		h.redirectSignin(w, r, errCode)
		return
	}

	sess, err := h.broker.CreateSession(ctx, broker.Credentials{
		Auth0Token: claims.AccessToken,
		Auth0Sub:   claims.User.Sub,
		User:       &claims.User,
	}, edge)
	if err != nil {
		errCode := backendErrorCode(err)
		slog.ErrorContext(ctx, "session brokering failed",
			logger.Component("exchange"),
			logger.ErrorCode(errCode),
			logger.Error(err),
			logger.Subject(claims.User.Sub),
		)
		h.loginFailed(ctx, r, audit.TypeLoginFailed, errCode, claims.User.Sub)
		h.redirectSignin(w, r, errCode)
		return
	}

	h.establishSession(w, r, sess)

	h.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeLoginSuccess,
		TenantID:  sess.TenantID(),
		Subject:   subjectOf(sess),
		Resource:  "session",
		IPAddress: edge.ClientIP,
		UserAgent: r.UserAgent(),
		CFRay:     edge.Ray,
		Metadata:  map[string]any{"session_token": sess.Token},
	})
	if h.authMetrics != nil {
		h.authMetrics.LoginSuccess.Add(ctx, 1)
		h.authMetrics.SessionCreated.Add(ctx, 1)
	}

	respondJSON(w, http.StatusOK, exchangeResponse{
		Success:         true,
		Authenticated:   true,
		User:            sess.User,
		NeedsOnboarding: sess.NeedsOnboarding,
	})
}

// sessionResponse is the session JSON served to the UI.
type sessionResponse struct {
	Authenticated       bool          `json:"authenticated"`
	User                *session.User `json:"user"`
	TenantID            string        `json:"tenantId,omitempty"`
	NeedsOnboarding     bool          `json:"needsOnboarding"`
	OnboardingCompleted bool          `json:"onboardingCompleted,omitempty"`
	CurrentStep         string        `json:"currentStep,omitempty"`
}

func toSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		Authenticated:       s.Authenticated,
		User:                s.User,
		TenantID:            s.TenantID(),
		NeedsOnboarding:     s.NeedsOnboarding,
		OnboardingCompleted: s.OnboardingCompleted,
		CurrentStep:         s.CurrentStep,
	}
}

// GetSession returns the current session. Never errors: an unreadable or
// missing session is served as the logged-out shape so the UI can always
// read `authenticated`.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	src := session.ResolveSource(r)
	if src.Kind == session.SourceNone {
		respondJSON(w, http.StatusOK, toSessionResponse(session.Empty()))
		return
	}

	forceRefresh := r.URL.Query().Get("refresh") == "true"
	sess := h.sessions.For(src.Token).Get(r.Context(), forceRefresh)
	respondJSON(w, http.StatusOK, toSessionResponse(sess))
}

// UpdateSession applies a partial session mutation through the optimistic
// update path.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	src := session.ResolveSource(r)
	if src.Kind == session.SourceNone {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var update session.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid session update")
		return
	}

	updated, err := h.sessions.For(src.Token).Update(r.Context(), update)
	if err != nil {
		if errors.Is(err, session.ErrInvalidUpdate) {
			respondError(w, http.StatusBadRequest, "empty session update")
			return
		}
		respondBackendError(w, err)
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:     audit.TypeSessionUpdated,
		TenantID: updated.TenantID(),
		Resource: "session",
		Metadata: map[string]any{"current_step": updated.CurrentStep},
	})

	respondJSON(w, http.StatusOK, toSessionResponse(updated))
}

// Logout destroys the session: cache dropped, backend notified, cookies
// cleared. Cookies are cleared even when the backend call fails, so a
// broken backend cannot pin a browser to a dead login.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	src := session.ResolveSource(r)

	if src.Kind != session.SourceNone {
		if err := h.sessions.For(src.Token).Logout(ctx); err != nil {
			slog.WarnContext(ctx, "backend logout failed",
				logger.Component("logout"),
				logger.Error(err),
				logger.TokenPreview(src.Token),
			)
		}
		h.sessions.Drop(src.Token)

		edge := GetEdge(ctx)
		h.auditLogger.Log(ctx, audit.Event{
			Type:      audit.TypeLogout,
			Resource:  "session",
			IPAddress: edge.ClientIP,
			UserAgent: r.UserAgent(),
			CFRay:     edge.Ray,
			Metadata:  map[string]any{"session_token": src.Token, "source": src.Kind.String()},
		})
	}

	h.clearSessionCookies(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

// cloudflareSessionRequest is the CDN-aware session creation body. Either
// identity-claims fields or the email/password pair must be present.
type cloudflareSessionRequest struct {
	Email      string `json:"email" validate:"omitempty,email"`
	Password   string `json:"password"`
	Auth0Token string `json:"auth0_token"`
	Auth0Sub   string `json:"auth0_sub"`
}

// CloudflareSession creates a session for requests arriving through the
// CDN. Edge headers are forwarded to the backend, and a DNS-level backend
// failure answers 503 rather than a generic 500 because it is expected to
// self-heal.
func (h *Handler) CloudflareSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	edge := GetEdge(ctx)

	var req cloudflareSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid credentials payload")
		return
	}

	creds := broker.Credentials{
		Auth0Token: req.Auth0Token,
		Auth0Sub:   req.Auth0Sub,
		Email:      req.Email,
		Password:   req.Password,
	}
	if creds.Kind() == "" {
		respondError(w, http.StatusBadRequest, "credentials required")
		return
	}

	sess, err := h.broker.CreateSession(ctx, creds, edge)
	if err != nil {
		errCode := backendErrorCode(err)
		h.loginFailed(ctx, r, audit.TypeLoginFailed, errCode, req.Auth0Sub)
		respondBackendError(w, err)
		return
	}

	h.establishSession(w, r, sess)

	h.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeLoginSuccess,
		TenantID:  sess.TenantID(),
		Subject:   subjectOf(sess),
		Resource:  "session",
		IPAddress: edge.ClientIP,
		UserAgent: r.UserAgent(),
		CFRay:     edge.Ray,
		Metadata:  map[string]any{"session_token": sess.Token, "credential_kind": creds.Kind()},
	})
	if h.authMetrics != nil {
		h.authMetrics.LoginSuccess.Add(ctx, 1)
		h.authMetrics.SessionCreated.Add(ctx, 1)
	}

	respondJSON(w, http.StatusOK, exchangeResponse{
		Success:         true,
		Authenticated:   true,
		User:            sess.User,
		NeedsOnboarding: sess.NeedsOnboarding,
	})
}

// establishSession persists a freshly brokered session: the manager for any
// superseded token is dropped, the new cookie pair is written, and the new
// token's manager is primed.
func (h *Handler) establishSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if prev := session.ResolveSource(r); prev.Kind != session.SourceNone && prev.Token != sess.Token {
		h.sessions.Drop(prev.Token)
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:     audit.TypeSessionSuperseded,
			Resource: "session",
			Metadata: map[string]any{"superseded_token": prev.Token, "source": prev.Kind.String()},
		})
	}

	h.setSessionCookies(w, sess.Token)
}

// loginFailed records a failed login attempt in the audit trail and metrics.
func (h *Handler) loginFailed(ctx context.Context, r *http.Request, eventType, errCode, subject string) {
	edge := GetEdge(ctx)
	h.auditLogger.Log(ctx, audit.Event{
		Type:      eventType,
		Subject:   subject,
		Resource:  "login",
		IPAddress: edge.ClientIP,
		UserAgent: r.UserAgent(),
		CFRay:     edge.Ray,
		Metadata:  map[string]any{"reason": errCode},
	})
	if h.authMetrics != nil {
		h.authMetrics.LoginFailure.Add(ctx, 1)
	}
}

// redirectSignin sends the browser back to the sign-in page with the
// taxonomy code in the query string.
func (h *Handler) redirectSignin(w http.ResponseWriter, r *http.Request, errCode string) {
	q := url.Values{}
	q.Set("error", errCode)
	http.Redirect(w, r, signinPath+"?"+q.Encode(), http.StatusFound)
}

// Helper functions
func subjectOf(s *session.Session) string {
	if s.User != nil {
		return s.User.Sub
	}
	return ""
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
