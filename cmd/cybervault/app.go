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

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/config"
	"github.com/cybervault/cybervault/internal/credential"
	"github.com/cybervault/cybervault/internal/observability/logger"
	"github.com/cybervault/cybervault/internal/observability/metrics"
	"github.com/cybervault/cybervault/internal/report"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/scan"
	"github.com/cybervault/cybervault/internal/store"
	"github.com/cybervault/cybervault/internal/store/memory"
	"github.com/cybervault/cybervault/internal/store/postgres"
	"github.com/cybervault/cybervault/internal/tenant"
	transportHTTP "github.com/cybervault/cybervault/internal/transport/http"
	"github.com/cybervault/cybervault/internal/vault"
)

// app holds the constructed store and services of one process.
type app struct {
	store      store.Store
	db         *postgres.DB
	dispatcher *audit.Dispatcher
	services   transportHTTP.Services
}

func openDatabase(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func openVault(ctx context.Context, cfg *config.Config, st store.Store) (vault.Provider, error) {
	switch cfg.Vault.Provider {
	case "aws":
		return vault.NewAWSSecretsManager(ctx, vault.AWSConfig{
			Region:             cfg.Vault.AWSRegion,
			Prefix:             cfg.Vault.SecretPrefix,
			RecoveryWindowDays: cfg.Vault.RecoveryWindowDays,
		})
	case "encrypted":
		return vault.NewEncryptedStore(cfg.Vault.MasterKey, st.Secrets())
	}
	return nil, fmt.Errorf("unknown vault provider %q", cfg.Vault.Provider)
}

// newApp connects the configured store and builds every service. meter may
// be nil.
func newApp(ctx context.Context, cfg *config.Config, meter *metrics.Meter) (*app, error) {
	a := &app{}

	switch cfg.Store.Driver {
	case "postgres":
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.store = postgres.NewStore(db)
		slog.Info("connected to database", logger.Component("store"))
	case "memory":
		a.store = memory.New()
		slog.Warn("using in-memory store; data is lost on exit", logger.Component("store"))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	provider, err := openVault(ctx, cfg, a.store)
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("failed to initialize vault: %w", err)
	}

	dispatcherCfg := audit.DispatcherConfig{
		QueueSize:    cfg.Audit.QueueSize,
		Workers:      cfg.Audit.Workers,
		WriteTimeout: cfg.Audit.WriteTimeout,
	}
	if meter != nil {
		dispatcherCfg.Failures = meter.AuditWriteFailures
	}
	a.dispatcher = audit.NewDispatcher(dispatcherCfg,
		audit.NewSlogSink(),
		audit.NewRepositorySink(a.store.AuditLogs()),
	)

	var executor *scan.Executor
	if meter != nil {
		executor = scan.NewExecutor(a.store.Scans(), a.store.Rules(), scan.TargetFacts{}, meter.ScanDuration)
	} else {
		executor = scan.NewExecutor(a.store.Scans(), a.store.Rules(), scan.TargetFacts{}, nil)
	}

	rules := rule.NewService(a.store.Rules(), a.dispatcher)
	scans := scan.NewService(a.store.Scans(), a.store.Rules(), executor, a.dispatcher)
	audits := audit.NewService(a.store.AuditLogs())

	a.services = transportHTTP.Services{
		Tenants:     tenant.NewService(a.store.Organizations(), a.store.Members(), a.dispatcher),
		Credentials: credential.NewService(a.store.Credentials(), provider, a.dispatcher),
		Rules:       rules,
		Scans:       scans,
		Audit:       audits,
		Reports:     report.NewService(audits, scans, rules, a.dispatcher),
	}
	return a, nil
}

// Close drains the audit queue, then closes the store.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("audit dispatcher: %w", err))
		}
	}
	a.closeStore()
	return errors.Join(errs...)
}

func (a *app) closeStore() {
	if a.db != nil {
		a.db.Close()
	}
}
