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
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dottapps/auth-gateway/internal/observability/logger"
	"github.com/dottapps/auth-gateway/internal/observability/metrics"
)

// Fetcher is the backend the manager reconciles against. The backend remains
// the only source of truth; the manager's cache is a lossy, TTL-bound copy.
type Fetcher interface {
	Fetch(ctx context.Context, token string) (*Session, error)
	Update(ctx context.Context, token string, u Update) (*Session, error)
	Logout(ctx context.Context, token string) error
}

// DefaultTTL is the soft TTL of the cached session.
const DefaultTTL = 5 * time.Minute

// Manager is a per-token, in-process cache of the session, reconciled with
// the backend. It is an explicit injectable instance, not a package global.
//
// Get never returns an error: on an irrecoverable sync failure it degrades
// to the stale cache if one exists, else to the safe logged-out shape, so
// callers can always read Authenticated off the result.
type Manager struct {
	token   string
	fetcher Fetcher
	ttl     time.Duration
	metrics *metrics.AuthMetrics

	mu     sync.Mutex
	cached *Session
	expiry time.Time

	group singleflight.Group
}

// NewManager creates a manager bound to one session token.
func NewManager(token string, fetcher Fetcher, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		token:   token,
		fetcher: fetcher,
		ttl:     ttl,
	}
}

// Get returns the cached session while it is fresh, otherwise performs one
// coalesced sync with the backend. Concurrent callers during an in-flight
// sync share its result instead of issuing duplicate backend calls.
func (m *Manager) Get(ctx context.Context, forceRefresh bool) *Session {
	m.mu.Lock()
	if !forceRefresh && m.cached != nil && time.Now().Before(m.expiry) {
		cached := m.cached
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.CacheHit.Add(ctx, 1)
		}
		return cached
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.CacheMiss.Add(ctx, 1)
	}
	return m.sync(ctx)
}

// sync reconciles the cache with the backend. All concurrent syncs for this
// manager collapse into a single backend call via singleflight. All writes
// to the fetched session happen inside the closure, before the shared
// pointer is handed out; coalesced callers only read the result.
func (m *Manager) sync(ctx context.Context) *Session {
	v, err, _ := m.group.Do("sync", func() (any, error) {
		fetched, err := m.fetcher.Fetch(ctx, m.token)
		if err != nil {
			return nil, err
		}

		fresh := fetched.Normalize()
		fresh.Token = m.token

		m.mu.Lock()
		m.cached = fresh
		m.expiry = time.Now().Add(m.ttl)
		m.mu.Unlock()

		return fresh, nil
	})

	if err != nil {
		// Stale-but-available beats spurious logout on a backend blip.
		m.mu.Lock()
		stale := m.cached
		m.mu.Unlock()

		slog.WarnContext(ctx, "session sync failed",
			logger.Component("session"),
			logger.Error(err),
			logger.TokenPreview(m.token),
			slog.Bool("stale_served", stale != nil),
		)
		if stale != nil {
			return stale
		}
		return Empty()
	}

	return v.(*Session)
}

// Update applies the update optimistically to the cache, posts it to the
// backend, then re-syncs. If the backend rejects the update the cache is
// invalidated outright, forcing a fresh sync on the next read, rather than
// being left holding the unconfirmed merge.
func (m *Manager) Update(ctx context.Context, u Update) (*Session, error) {
	if u.IsZero() {
		return nil, ErrInvalidUpdate
	}

	m.mu.Lock()
	if m.cached != nil {
		m.cached = u.apply(m.cached)
	}
	m.mu.Unlock()

	updated, err := m.fetcher.Update(ctx, m.token, u)
	if err != nil {
		m.Invalidate()
		slog.ErrorContext(ctx, "session update rejected, optimistic merge discarded",
			logger.Component("session"),
			logger.Error(err),
			logger.TokenPreview(m.token),
		)
		return nil, err
	}

	updated = updated.Normalize()
	updated.Token = m.token

	m.mu.Lock()
	m.cached = updated
	m.expiry = time.Now().Add(m.ttl)
	m.mu.Unlock()

	return updated, nil
}

// Invalidate drops the cache. The next Get triggers a fresh sync.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.expiry = time.Time{}
	m.mu.Unlock()
}

// Logout clears the cache and destroys the backend session. The cache is
// cleared even when the backend call fails; cookies are the transport
// layer's responsibility.
func (m *Manager) Logout(ctx context.Context) error {
	m.Invalidate()
	return m.fetcher.Logout(ctx, m.token)
}

// Derived getters. Each projects one field of Get; none has its own caching.

func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	return m.Get(ctx, false).Authenticated
}

func (m *Manager) UserEmail(ctx context.Context) string {
	if s := m.Get(ctx, false); s.User != nil {
		return s.User.Email
	}
	return ""
}

func (m *Manager) TenantID(ctx context.Context) string {
	return m.Get(ctx, false).TenantID()
}

func (m *Manager) NeedsOnboarding(ctx context.Context) bool {
	return m.Get(ctx, false).NeedsOnboarding
}

func (m *Manager) OnboardingProgress(ctx context.Context) string {
	return m.Get(ctx, false).CurrentStep
}

// registryEntry pairs a manager with its last access time so idle entries
// can be evicted without touching active ones.
type registryEntry struct {
	manager  *Manager
	lastSeen time.Time
}

// Registry hands out one Manager per session token. In a horizontally scaled
// deployment every instance has its own registry, so different instances may
// serve slightly different cached views; the backend stays authoritative.
//
// Tokens arrive from cookies, so any forged value allocates an entry;
// managers idle longer than idleTTL are evicted in the background to keep
// the map bounded by active traffic rather than by every token ever seen.
type Registry struct {
	fetcher Fetcher
	ttl     time.Duration
	metrics *metrics.AuthMetrics

	mu       sync.Mutex
	managers map[string]*registryEntry

	cleanupInterval time.Duration
	idleTTL         time.Duration
}

// NewRegistry creates an empty manager registry.
func NewRegistry(fetcher Fetcher, ttl time.Duration) *Registry {
	r := &Registry{
		fetcher:         fetcher,
		ttl:             ttl,
		managers:        make(map[string]*registryEntry),
		cleanupInterval: 10 * time.Minute,
		idleTTL:         30 * time.Minute,
	}

	go r.cleanup()

	return r
}

// SetMetrics attaches the auth counters. Managers created afterwards record
// cache hits and misses; a nil receiver field keeps tests metric-free.
func (r *Registry) SetMetrics(am *metrics.AuthMetrics) {
	r.mu.Lock()
	r.metrics = am
	r.mu.Unlock()
}

// For returns the manager for a token, creating one on first use.
func (r *Registry) For(token string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.managers[token]
	if !ok {
		m := NewManager(token, r.fetcher, r.ttl)
		m.metrics = r.metrics
		entry = &registryEntry{manager: m}
		r.managers[token] = entry
	}
	entry.lastSeen = time.Now()

	return entry.manager
}

// Drop removes a token's manager, e.g. after logout or supersession.
func (r *Registry) Drop(token string) {
	r.mu.Lock()
	delete(r.managers, token)
	r.mu.Unlock()
}

// cleanup evicts managers for tokens that have been idle longer than idleTTL.
func (r *Registry) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	for range ticker.C {
		r.evictIdle(time.Now().Add(-r.idleTTL))
	}
}

// evictIdle drops every manager not seen since the cutoff.
func (r *Registry) evictIdle(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, entry := range r.managers {
		if entry.lastSeen.Before(cutoff) {
			delete(r.managers, token)
		}
	}
}
