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

import (
	"context"
	"log/slog"
	"time"

	"github.com/dottapps/auth-gateway/internal/apiclient"
	"github.com/dottapps/auth-gateway/internal/observability/logger"
	"github.com/dottapps/auth-gateway/internal/session"
	"github.com/dottapps/auth-gateway/internal/tenant"
)

// Backend endpoints. The backend is an opaque HTTP service; these paths are
// its session API surface.
const (
	pathCreate  = "/api/sessions/create/"
	pathCurrent = "/api/sessions/current/"
	pathUpdate  = "/api/sessions/update/"
	pathLogout  = "/api/sessions/logout/"
)

// Credentials is the bundle exchanged for an application session. It is a
// sum of two variants: identity claims from the provider exchange, or a raw
// email/password pair for legacy credential login. When both are present
// the identity claims win and the password fields are ignored.
type Credentials struct {
	Auth0Token string `json:"auth0_token,omitempty"`
	Auth0Sub   string `json:"auth0_sub,omitempty"`

	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Password string `json:"password,omitempty"`

	// Profile claims forwarded alongside identity-claims logins so the
	// backend can provision the user record.
	User *session.User `json:"user,omitempty"`
}

// Kind reports which credential variant the bundle carries.
func (c Credentials) Kind() string {
	if c.Auth0Token != "" && c.Auth0Sub != "" {
		return "identity_claims"
	}
	if c.Email != "" && c.Password != "" {
		return "password"
	}
	return ""
}

// EdgeMetadata is the true client identity extracted at the CDN edge and
// re-attached to backend calls so the backend sees the real IP and geo
// rather than the proxy's.
type EdgeMetadata struct {
	ClientIP string
	Ray      string
	Country  string
}

func (e EdgeMetadata) options() []apiclient.RequestOption {
	return []apiclient.RequestOption{
		apiclient.WithHeader("CF-Connecting-IP", e.ClientIP),
		apiclient.WithHeader("CF-Ray", e.Ray),
		apiclient.WithHeader("CF-IPCountry", e.Country),
	}
}

// Broker exchanges verified identity claims (or legacy credentials) for an
// application session against the backend. It performs no cookie writes;
// persisting the token is the caller's explicit step.
type Broker struct {
	api *apiclient.Client
}

// New creates a session broker.
func New(api *apiclient.Client) *Broker {
	return &Broker{api: api}
}

// sessionPayload is the backend's session wire shape.
type sessionPayload struct {
	SessionToken        string         `json:"session_token"`
	Authenticated       bool           `json:"authenticated"`
	User                *session.User  `json:"user"`
	Tenant              *tenant.Tenant `json:"tenant"`
	NeedsOnboarding     bool           `json:"needs_onboarding"`
	OnboardingCompleted bool           `json:"onboarding_completed"`
	CurrentStep         string         `json:"current_step"`
	ExpiresAt           time.Time      `json:"expires_at"`
}

func (p *sessionPayload) toSession() *session.Session {
	s := &session.Session{
		Token:               p.SessionToken,
		Authenticated:       p.Authenticated,
		User:                p.User,
		Tenant:              p.Tenant,
		NeedsOnboarding:     p.NeedsOnboarding,
		OnboardingCompleted: p.OnboardingCompleted,
		CurrentStep:         p.CurrentStep,
		ExpiresAt:           p.ExpiresAt,
	}
	return s.Normalize()
}

// CreateSession exchanges a credential bundle for a fresh backend session.
func (b *Broker) CreateSession(ctx context.Context, creds Credentials, edge EdgeMetadata) (*session.Session, error) {
	if creds.Kind() == "" {
		return nil, ErrMissingCredentials
	}
	if creds.Kind() == "identity_claims" {
		// Identity claims take precedence; never forward a password the
		// backend should not see.
		creds.Password = ""
	}

	resp, err := b.api.Post(ctx, pathCreate, creds, edge.options()...)
	if err != nil {
		return nil, err
	}

	payload, err := decodeSession(resp)
	if err != nil {
		return nil, err
	}
	if payload.SessionToken == "" {
		slog.ErrorContext(ctx, "backend issued session without token",
			logger.Component("broker"),
			logger.Operation("create_session"),
		)
		return nil, ErrNoSessionToken
	}

	s := payload.toSession()
	s.Authenticated = true
	if s.User == nil {
		// Older backend versions echo no user object on create; fall back
		// to the claims we sent.
		s.User = creds.User
	}
	slog.InfoContext(ctx, "backend session created",
		logger.Component("broker"),
		logger.TokenPreview(s.Token),
		logger.TenantID(s.TenantID()),
	)
	return s.Normalize(), nil
}

// Fetch retrieves the current session for a token. Implements session.Fetcher.
func (b *Broker) Fetch(ctx context.Context, token string) (*session.Session, error) {
	resp, err := b.api.Get(ctx, pathCurrent, apiclient.WithSessionToken(token))
	if err != nil {
		return nil, err
	}

	payload, err := decodeSession(resp)
	if err != nil {
		return nil, err
	}
	return payload.toSession(), nil
}

// Update posts a partial session mutation. Implements session.Fetcher.
func (b *Broker) Update(ctx context.Context, token string, u session.Update) (*session.Session, error) {
	resp, err := b.api.Post(ctx, pathUpdate, u, apiclient.WithSessionToken(token))
	if err != nil {
		return nil, err
	}

	payload, err := decodeSession(resp)
	if err != nil {
		return nil, err
	}
	return payload.toSession(), nil
}

// Logout destroys the backend session. Implements session.Fetcher.
func (b *Broker) Logout(ctx context.Context, token string) error {
	_, err := b.api.Post(ctx, pathLogout, nil, apiclient.WithSessionToken(token))
	return err
}

// decodeSession decodes a success response into the session wire shape,
// rejecting HTML and other non-JSON bodies outright instead of feeding
// them to the JSON decoder.
func decodeSession(resp *apiclient.Response) (*sessionPayload, error) {
	if !resp.IsJSON() {
		return nil, ErrNonJSONResponse
	}
	var payload sessionPayload
	if err := resp.JSON(&payload); err != nil {
		return nil, ErrNonJSONResponse
	}
	return &payload, nil
}
