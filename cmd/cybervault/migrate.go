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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cybervault/cybervault/internal/config"
	"github.com/cybervault/cybervault/internal/observability/logger"
	"github.com/cybervault/cybervault/internal/store/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long:  "Apply the embedded schema to the configured PostgreSQL database. The script is idempotent.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			initLogger(cfg)
			if cfg.Store.Driver != "postgres" {
				return fmt.Errorf("migrate requires STORE_DRIVER=postgres")
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			slog.Info("applying schema", logger.Component("migrate"))
			if err := db.Migrate(cmd.Context(), postgres.InitialSchema); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			slog.Info("migration complete", logger.Component("migrate"))
			return nil
		},
	}
}
