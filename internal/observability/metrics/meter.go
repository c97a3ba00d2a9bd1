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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: otel.Meter("noop")}, nil
	}

	// Meter comes from the global meter provider. In production, configure a
	// proper meter provider with exporters.
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// AuthMetrics holds the counters recorded by the auth hand-off flow.
type AuthMetrics struct {
	LoginSuccess   metric.Int64Counter
	LoginFailure   metric.Int64Counter
	SessionCreated metric.Int64Counter
	CacheHit       metric.Int64Counter
	CacheMiss      metric.Int64Counter
}

// NewAuthMetrics creates the counters used across the login and session flow.
func NewAuthMetrics(m *Meter) (*AuthMetrics, error) {
	am := &AuthMetrics{}
	var err error

	if am.LoginSuccess, err = m.counter("auth_login_success_total", "Successful logins"); err != nil {
		return nil, err
	}
	if am.LoginFailure, err = m.counter("auth_login_failure_total", "Failed logins"); err != nil {
		return nil, err
	}
	if am.SessionCreated, err = m.counter("auth_session_created_total", "Backend sessions brokered"); err != nil {
		return nil, err
	}
	if am.CacheHit, err = m.counter("session_cache_hit_total", "Session cache hits"); err != nil {
		return nil, err
	}
	if am.CacheMiss, err = m.counter("session_cache_miss_total", "Session cache misses"); err != nil {
		return nil, err
	}

	return am, nil
}

func (m *Meter) counter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}
