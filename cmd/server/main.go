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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dottapps/auth-gateway/internal/apiclient"
	"github.com/dottapps/auth-gateway/internal/audit"
	"github.com/dottapps/auth-gateway/internal/broker"
	"github.com/dottapps/auth-gateway/internal/config"
	"github.com/dottapps/auth-gateway/internal/idp"
	"github.com/dottapps/auth-gateway/internal/observability/logger"
	"github.com/dottapps/auth-gateway/internal/observability/metrics"
	"github.com/dottapps/auth-gateway/internal/observability/tracing"
	"github.com/dottapps/auth-gateway/internal/session"
	transportHTTP "github.com/dottapps/auth-gateway/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting auth gateway")

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(ctx)
	}

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	authMetrics, err := metrics.NewAuthMetrics(meter)
	if err != nil {
		slog.Error("failed to create auth metrics", logger.Error(err))
	}

	// Backend API client and session broker
	apiClient := apiclient.New(apiclient.Config{
		BaseURL:        cfg.Backend.BaseURL,
		RequestTimeout: cfg.Backend.RequestTimeout,
		MaxAttempts:    cfg.Backend.MaxAttempts,
		MaxBackoff:     cfg.Backend.MaxBackoff,
	})
	sessionBroker := broker.New(apiClient)

	// Identity provider client
	idpClient := idp.NewClient(idp.Config{
		Domain:       cfg.Auth0.Domain,
		ClientID:     cfg.Auth0.ClientID,
		ClientSecret: cfg.Auth0.ClientSecret,
		RedirectURI:  strings.TrimRight(cfg.Server.BaseURL, "/") + cfg.Auth0.CallbackPath,
		Scopes:       cfg.Auth0.Scopes,
		StateTTL:     cfg.Auth0.StateTTL,
	})

	// Session cache registry
	sessions := session.NewRegistry(sessionBroker, cfg.SessionCache.TTL)
	sessions.SetMetrics(authMetrics)

	auditLogger := audit.NewSlogLogger()

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		idpClient,
		sessionBroker,
		sessions,
		auditLogger,
		authMetrics,
		transportHTTP.CookieConfig{
			Domain:   cfg.Cookie.Domain,
			Path:     cfg.Cookie.Path,
			Secure:   cfg.Cookie.Secure,
			SameSite: transportHTTP.ParseSameSite(cfg.Cookie.SameSite),
			MaxAge:   cfg.Cookie.MaxAge,
		},
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}
