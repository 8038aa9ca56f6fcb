// Copyright 2026 The CyberVault Authors
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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cybervault/cybervault/internal/config"
	"github.com/cybervault/cybervault/internal/identity"
	"github.com/cybervault/cybervault/internal/observability/logger"
	"github.com/cybervault/cybervault/internal/observability/metrics"
	"github.com/cybervault/cybervault/internal/observability/tracing"
	"github.com/cybervault/cybervault/internal/scan"
	transportHTTP "github.com/cybervault/cybervault/internal/transport/http"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scan scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func initLogger(cfg *config.Config) {
	logger.InitLogger(logger.Config{
		Level:          cfg.Observability.LogLevel,
		Format:         cfg.Observability.LogFormat,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		OTel:           cfg.Observability.OTELEnabled,
	})
}

func newResolver(ctx context.Context, cfg *config.Config) (identity.Resolver, error) {
	if cfg.Auth.Provider == "oidc" {
		return identity.NewOIDCResolver(ctx, cfg.Auth.OIDCIssuerURL, cfg.Auth.OIDCClientID)
	}
	return identity.NewJWTResolver(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
}

func newLimiter(cfg *config.Config) (transportHTTP.Limiter, func(), error) {
	rl := cfg.RateLimit
	if rl.RedisURL == "" {
		limiter := transportHTTP.NewRateLimiter(rl.RequestsPerSecond, rl.Burst)
		return limiter, limiter.Stop, nil
	}

	opts, err := redis.ParseURL(rl.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid RATELIMIT_REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	limit := int(rl.RequestsPerSecond * rl.Window.Seconds())
	if limit < rl.Burst {
		limit = rl.Burst
	}
	slog.Info("using shared rate limiter", logger.Component("ratelimit"), slog.Int("limit", limit))
	return transportHTTP.NewRedisRateLimiter(client, limit, rl.Window), func() { _ = client.Close() }, nil
}

func serve(parent context.Context, cfg *config.Config) error {
	initLogger(cfg)
	slog.Info("starting cybervault", slog.String("version", cfg.Observability.ServiceVersion))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		Endpoint:       cfg.Observability.OTELEndpoint,
		Insecure:       cfg.Observability.OTELInsecure,
		SamplingRate:   1.0,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize meter: %w", err)
	}

	a, err := newApp(ctx, cfg, meter)
	if err != nil {
		return err
	}

	resolver, err := newResolver(ctx, cfg)
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("failed to initialize identity resolver: %w", err)
	}

	limiter, stopLimiter, err := newLimiter(cfg)
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}
	defer stopLimiter()

	routerCfg := transportHTTP.RouterConfig{
		Authorizer: transportHTTP.NewAuthorizer(resolver, a.services.Tenants, transportHTTP.AuthorizerConfig{
			IdentityTimeout:   cfg.Timeouts.Identity,
			MembershipTimeout: cfg.Timeouts.Membership,
			DataTimeout:       cfg.Timeouts.Data,
			Denials:           meter.AuthorizationDenials,
			Security:          logger.NewSecurityLogger(slog.Default()),
		}),
		Limiter:        limiter,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if cfg.Observability.MetricsEnabled {
		routerCfg.Metrics = metrics.NewHTTPMetrics()
	}
	router := transportHTTP.NewRouter(transportHTTP.NewHandler(a.services), routerCfg)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", logger.Component("server"), logger.Operation("listen"), slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server", logger.Component("server"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.Scheduler.Enabled {
		scheduler := scan.NewScheduler(a.store.Scans(), a.services.Scans)
		g.Go(func() error {
			return scheduler.Run(gctx, cfg.Scheduler.SyncInterval)
		})
	}

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		slog.Error("failed to drain audit queue", logger.Error(err))
	}
	if err := tracer.Shutdown(closeCtx); err != nil {
		slog.Error("failed to shut down tracer", logger.Error(err))
	}

	slog.Info("server stopped")
	return runErr
}
