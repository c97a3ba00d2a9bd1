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
	"sync"
	"time"
)

// stateRegistry tracks the states (and their PKCE verifiers) of logins that
// have been redirected to the provider but not yet exchanged. Entries are
// single-use: take removes the entry so a replayed callback fails the
// state check.
type stateRegistry struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]pendingLogin
}

type pendingLogin struct {
	verifier  string
	createdAt time.Time
}

func newStateRegistry(ttl time.Duration) *stateRegistry {
	return &stateRegistry{
		ttl:     ttl,
		pending: make(map[string]pendingLogin),
	}
}

func (s *stateRegistry) put(state, verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune()
	s.pending[state] = pendingLogin{verifier: verifier, createdAt: time.Now()}
}

// take retrieves and removes a pending login. Returns false for unknown,
// already-used, or expired states.
func (s *stateRegistry) take(state string) (string, bool) {
	if state == "" {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[state]
	if !ok {
		return "", false
	}
	delete(s.pending, state)

	if time.Since(p.createdAt) > s.ttl {
		return "", false
	}
	return p.verifier, true
}

// prune drops expired entries. Called under the lock.
func (s *stateRegistry) prune() {
	now := time.Now()
	for state, p := range s.pending {
		if now.Sub(p.createdAt) > s.ttl {
			delete(s.pending, state)
		}
	}
}
