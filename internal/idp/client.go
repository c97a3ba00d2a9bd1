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

package idp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dottapps/auth-gateway/internal/observability/logger"
	"github.com/dottapps/auth-gateway/internal/session"
)

// Config holds identity provider configuration
type Config struct {
	Domain       string // e.g. tenant.auth0.com
	ClientID     string
	ClientSecret string
	RedirectURI  string // absolute URL of the exchange callback
	Scopes       string
	StateTTL     time.Duration
}

// Client performs the authorization-code-for-token exchange against the
// external identity provider (RFC 6749 Section 4.1 with PKCE, RFC 7636).
// It holds no session state beyond the pending login states established
// before the redirect.
type Client struct {
	cfg    Config
	httpc  *http.Client
	states *stateRegistry

	authorizeURL string
	tokenURL     string
}

// NewClient creates an identity provider client.
func NewClient(cfg Config) *Client {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	return &Client{
		cfg:          cfg,
		httpc:        &http.Client{Timeout: 15 * time.Second},
		states:       newStateRegistry(cfg.StateTTL),
		authorizeURL: fmt.Sprintf("https://%s/authorize", cfg.Domain),
		tokenURL:     fmt.Sprintf("https://%s/oauth/token", cfg.Domain),
	}
}

// BeginLogin registers a fresh state and PKCE verifier and returns the
// provider authorize URL to redirect the browser to.
func (c *Client) BeginLogin() (string, error) {
	state := uuid.NewString()
	verifier, err := newCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("generate pkce verifier: %w", err)
	}
	c.states.put(state, verifier)

	challenge := sha256.Sum256([]byte(verifier))

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", c.cfg.Scopes)
	q.Set("state", state)
	q.Set("code_challenge", base64.RawURLEncoding.EncodeToString(challenge[:]))
	q.Set("code_challenge_method", "S256")

	return c.authorizeURL + "?" + q.Encode(), nil
}

// Claims is the identity claims bundle produced by a successful exchange.
type Claims struct {
	AccessToken string
	User        session.User
}

// Exchange trades an authorization code for tokens. Single attempt, no
// retry: a code is single-use, so on any failure the caller restarts the
// login redirect. Exchange performs no session or cookie writes.
func (c *Client) Exchange(ctx context.Context, code, state string) (*Claims, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	verifier, ok := c.states.take(state)
	if !ok {
		return nil, ErrStateMismatch
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "token endpoint unreachable",
			logger.Component("idp"),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Code expired, already used, or redirect URI mismatch
		return nil, ErrInvalidGrant
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token endpoint returned %d", ErrProviderUnreachable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if tr.AccessToken == "" || tr.IDToken == "" {
		return nil, ErrMalformedResponse
	}

	user, err := parseIDToken(tr.IDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return &Claims{AccessToken: tr.AccessToken, User: *user}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// parseIDToken extracts the profile claims from the id_token. The token was
// received over TLS directly from the provider's token endpoint, not from
// the browser, so an unverified parse of the claims is sufficient here.
func parseIDToken(raw string) (*session.User, error) {
	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, err
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("id_token missing sub claim")
	}

	return &session.User{
		Sub:           claims.Sub,
		Email:         claims.Email,
		Name:          claims.Name,
		GivenName:     claims.GivenName,
		FamilyName:    claims.FamilyName,
		Picture:       claims.Picture,
		EmailVerified: claims.EmailVerified,
	}, nil
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	EmailVerified bool   `json:"email_verified"`
}

// newCodeVerifier generates a PKCE code verifier (RFC 7636 Section 4.1).
func newCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
