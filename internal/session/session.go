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

import (
	"errors"
	"time"

	"github.com/dottapps/auth-gateway/internal/tenant"
)

// Domain errors
var (
	ErrNoSession     = errors.New("no session")
	ErrUpdateFailed  = errors.New("session update failed")
	ErrBackendSync   = errors.New("session sync failed")
	ErrInvalidUpdate = errors.New("invalid session update")
)

// User holds the identity claims carried on a session.
type User struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// Session is the gateway's view of the server-authoritative session record.
// The backend owns the record; anything cached here may be stale and must
// only be used for rendering and optimistic UX, never for authorization.
type Session struct {
	Token               string         `json:"-"`
	Authenticated       bool           `json:"authenticated"`
	User                *User          `json:"user"`
	Tenant              *tenant.Tenant `json:"tenant,omitempty"`
	NeedsOnboarding     bool           `json:"needsOnboarding"`
	OnboardingCompleted bool           `json:"onboardingCompleted"`
	CurrentStep         string         `json:"currentStep,omitempty"`
	ExpiresAt           time.Time      `json:"expiresAt,omitzero"`
}

// Empty returns the safe logged-out shape. Callers can always read
// Authenticated off the result of a session read, even after a failed sync.
func Empty() *Session {
	return &Session{
		Authenticated:   false,
		NeedsOnboarding: true,
	}
}

// TenantID returns the resolved tenant id, or "" before onboarding resolves one.
func (s *Session) TenantID() string {
	if s.Tenant.Resolved() {
		return s.Tenant.ID
	}
	return ""
}

// IsExpired checks if the backend record has expired
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// TokenPreview returns a truncated token safe for logs.
func (s *Session) TokenPreview() string {
	if len(s.Token) > 8 {
		return s.Token[:8] + "..."
	}
	return s.Token
}

// Normalize enforces the session invariants:
// an unauthenticated session carries no tenant and needs onboarding,
// and a completed onboarding clears the needs-onboarding flag.
func (s *Session) Normalize() *Session {
	if !s.Authenticated {
		s.Tenant = nil
		s.NeedsOnboarding = true
		s.OnboardingCompleted = false
	}
	if s.OnboardingCompleted {
		s.NeedsOnboarding = false
	}
	return s
}

// Update is a partial session mutation. Nil fields are left untouched.
type Update struct {
	TenantID            *string `json:"tenantId,omitempty"`
	NeedsOnboarding     *bool   `json:"needsOnboarding,omitempty"`
	OnboardingCompleted *bool   `json:"onboardingCompleted,omitempty"`
	CurrentStep         *string `json:"currentStep,omitempty" validate:"omitempty,max=64"`
}

// IsZero reports whether the update mutates nothing.
func (u Update) IsZero() bool {
	return u.TenantID == nil && u.NeedsOnboarding == nil &&
		u.OnboardingCompleted == nil && u.CurrentStep == nil
}

// apply merges the update into a copy of the session.
func (u Update) apply(s *Session) *Session {
	merged := *s
	if u.TenantID != nil {
		merged.Tenant = &tenant.Tenant{ID: *u.TenantID}
	}
	if u.NeedsOnboarding != nil {
		merged.NeedsOnboarding = *u.NeedsOnboarding
	}
	if u.OnboardingCompleted != nil {
		merged.OnboardingCompleted = *u.OnboardingCompleted
	}
	if u.CurrentStep != nil {
		merged.CurrentStep = *u.CurrentStep
	}
	return merged.Normalize()
}
