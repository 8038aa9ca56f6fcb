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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/config"
	"github.com/cybervault/cybervault/internal/store/memory"
	"github.com/cybervault/cybervault/internal/tenant"
)

const sampleBootstrap = `
token_ttl: 2h
organizations:
  - name: Acme Corp
    owner: {user_id: alice, email: alice@acme.test}
    members:
      - {user_id: bob, email: bob@acme.test, role: auditor}
      - {user_id: carol, email: carol@acme.test, role: admin}
  - name: Globex
    slug: globex
    owner: {user_id: bob, email: bob@acme.test}
`

type discard struct{}

func (discard) Emit(context.Context, audit.Entry) {}

// TestPurpose: Validates the bootstrap file is parsed and checked.
// Scope: Unit Test
// Security: Unknown roles never reach the membership store
// Expected: The sample parses; an unknown role or field is rejected.
// Test Case ID: CLI-01
func TestParseBootstrap(t *testing.T) {
	f, err := parseBootstrap(strings.NewReader(sampleBootstrap))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, f.TokenTTL)
	require.Len(t, f.Organizations, 2)
	assert.Equal(t, "bob", f.Organizations[0].Members[0].UserID)
	assert.Equal(t, "auditor", f.Organizations[0].Members[0].Role)

	_, err = parseBootstrap(strings.NewReader(`
organizations:
  - name: X
    owner: {user_id: a}
    members:
      - {user_id: b, role: superuser}
`))
	assert.Error(t, err)

	_, err = parseBootstrap(strings.NewReader("organisations: []\n"))
	assert.Error(t, err)
}

// TestPurpose: Validates bootstrap is idempotent.
// Scope: Integration Test (memory store)
// Security: Re-running bootstrap never changes existing roles
// Expected: Two runs succeed and leave one org per slug with the listed active roles.
// Test Case ID: CLI-02
func TestApplyBootstrap_Idempotent(t *testing.T) {
	store := memory.New()
	tenants := tenant.NewService(store.Organizations(), store.Members(), discard{})
	f, err := parseBootstrap(strings.NewReader(sampleBootstrap))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, applyBootstrap(ctx, tenants, store.Organizations(), f))
	require.NoError(t, applyBootstrap(ctx, tenants, store.Organizations(), f))

	acme, err := store.Organizations().GetBySlug(ctx, "acme-corp")
	require.NoError(t, err)
	scope := authz.MustScope(acme.ID)

	for user, want := range map[string]authz.Role{
		"alice": authz.RoleOwner,
		"bob":   authz.RoleAuditor,
		"carol": authz.RoleAdmin,
	} {
		role, err := tenants.ResolveRole(ctx, scope, user)
		require.NoError(t, err, user)
		assert.Equal(t, want, role, user)
	}

	orgs, err := tenants.ListOrganizations(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, orgs, 2)
}

// TestPurpose: Validates the bootstrap command prints one token per user with JWT auth.
// Scope: Integration Test (memory store)
// Security: Development tokens are only issued for listed users
// Expected: Three distinct users produce three token lines.
// Test Case ID: CLI-03
func TestRunBootstrap_PrintsTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBootstrap), 0o600))

	cfg := &config.Config{
		Store: config.StoreConfig{Driver: "memory"},
		Auth: config.AuthConfig{
			Provider:    "jwt",
			JWTSecret:   "bootstrap-test-secret-with-32-bytes!",
			JWTIssuer:   "cybervault",
			JWTAudience: "cybervault-api",
		},
		Vault: config.VaultConfig{Provider: "encrypted", MasterKey: "bootstrap-master-key"},
		Audit: config.AuditConfig{QueueSize: 16, Workers: 1, WriteTimeout: time.Second},
	}

	var out bytes.Buffer
	require.NoError(t, runBootstrap(context.Background(), cfg, path, true, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	users := make([]string, 0, len(lines))
	for _, line := range lines {
		user, token, ok := strings.Cut(line, "\t")
		require.True(t, ok)
		assert.NotEmpty(t, token)
		users = append(users, user)
	}
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, users)
}
