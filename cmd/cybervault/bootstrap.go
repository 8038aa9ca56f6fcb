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
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/config"
	"github.com/cybervault/cybervault/internal/identity"
	"github.com/cybervault/cybervault/internal/observability/logger"
	"github.com/cybervault/cybervault/internal/tenant"
)

// bootstrapFile is the YAML document read by the bootstrap command.
//
//	token_ttl: 24h
//	organizations:
//	  - name: Acme
//	    owner: {user_id: alice, email: alice@acme.test}
//	    members:
//	      - {user_id: bob, email: bob@acme.test, role: auditor}
type bootstrapFile struct {
	TokenTTL      time.Duration  `yaml:"token_ttl"`
	Organizations []bootstrapOrg `yaml:"organizations"`
}

type bootstrapUser struct {
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
}

type bootstrapMember struct {
	bootstrapUser `yaml:",inline"`
	Role          string `yaml:"role"`
}

type bootstrapOrg struct {
	Name    string            `yaml:"name"`
	Slug    string            `yaml:"slug"`
	Owner   bootstrapUser     `yaml:"owner"`
	Members []bootstrapMember `yaml:"members"`
}

func parseBootstrap(r io.Reader) (*bootstrapFile, error) {
	var f bootstrapFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid bootstrap file: %w", err)
	}
	for i, org := range f.Organizations {
		if org.Name == "" || org.Owner.UserID == "" {
			return nil, fmt.Errorf("organization %d: name and owner.user_id are required", i)
		}
		for _, m := range org.Members {
			if m.UserID == "" || !authz.ParseRole(m.Role).Valid() {
				return nil, fmt.Errorf("organization %q: member needs user_id and a valid role", org.Name)
			}
		}
	}
	if f.TokenTTL <= 0 {
		f.TokenTTL = 24 * time.Hour
	}
	return &f, nil
}

// applyBootstrap creates missing organizations and memberships. Existing
// organizations, matched by slug, and existing members are left as they are.
func applyBootstrap(ctx context.Context, tenants *tenant.Service, orgs tenant.Repository, f *bootstrapFile) error {
	for _, spec := range f.Organizations {
		slug := spec.Slug
		if slug == "" {
			slug = tenant.Slugify(spec.Name)
		}

		org, err := orgs.GetBySlug(ctx, slug)
		switch {
		case err == nil:
			slog.Info("organization exists", logger.Component("bootstrap"), logger.OrgID(org.ID), slog.String("slug", slug))
		case errors.Is(err, tenant.ErrOrganizationNotFound):
			org, err = tenants.CreateOrganization(ctx, spec.Owner.UserID, spec.Owner.Email, spec.Name, slug)
			if err != nil {
				return fmt.Errorf("create organization %q: %w", slug, err)
			}
			slog.Info("organization created", logger.Component("bootstrap"), logger.OrgID(org.ID), slog.String("slug", slug))
		default:
			return fmt.Errorf("look up organization %q: %w", slug, err)
		}

		scope := authz.MustScope(org.ID)
		role, err := tenants.ResolveRole(ctx, scope, spec.Owner.UserID)
		if err != nil {
			return fmt.Errorf("organization %q: %s is not an active member: %w", slug, spec.Owner.UserID, err)
		}
		owner := authz.Principal{
			UserID: spec.Owner.UserID,
			Email:  spec.Owner.Email,
			Role:   role,
			Scope:  scope,
			Type:   authz.ActorSystem,
		}

		for _, m := range spec.Members {
			_, err := tenants.InviteMember(ctx, owner, m.UserID, m.Email, authz.ParseRole(m.Role))
			if errors.Is(err, tenant.ErrMemberExists) {
				continue
			}
			if err != nil {
				return fmt.Errorf("organization %q: invite %s: %w", slug, m.UserID, err)
			}
			if _, err := tenants.AcceptInvitation(ctx, scope, m.UserID); err != nil {
				return fmt.Errorf("organization %q: activate %s: %w", slug, m.UserID, err)
			}
		}
	}
	return nil
}

// printTokens writes one development token per distinct user.
func printTokens(w io.Writer, issuer *identity.JWTResolver, f *bootstrapFile) error {
	seen := map[string]bool{}
	users := []bootstrapUser{}
	for _, org := range f.Organizations {
		candidates := []bootstrapUser{org.Owner}
		for _, m := range org.Members {
			candidates = append(candidates, m.bootstrapUser)
		}
		for _, u := range candidates {
			if !seen[u.UserID] {
				seen[u.UserID] = true
				users = append(users, u)
			}
		}
	}

	for _, u := range users {
		token, err := issuer.IssueToken(u.UserID, u.Email, f.TokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", u.UserID, token)
	}
	return nil
}

func newBootstrapCmd() *cobra.Command {
	var (
		path       string
		withTokens bool
	)
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create organizations and their initial members",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			initLogger(cfg)
			return runBootstrap(cmd.Context(), cfg, path, withTokens, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "bootstrap.yaml", "Path to the bootstrap file")
	cmd.Flags().BoolVar(&withTokens, "print-tokens", true, "Print development tokens when AUTH_PROVIDER=jwt")
	return cmd
}

func runBootstrap(ctx context.Context, cfg *config.Config, path string, withTokens bool, out io.Writer) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	f, err := parseBootstrap(fh)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Audit.WriteTimeout)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	if err := applyBootstrap(ctx, a.services.Tenants, a.store.Organizations(), f); err != nil {
		return err
	}

	if !withTokens || cfg.Auth.Provider != "jwt" {
		return nil
	}
	issuer, err := identity.NewJWTResolver(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	if err != nil {
		return err
	}
	return printTokens(out, issuer, f)
}
