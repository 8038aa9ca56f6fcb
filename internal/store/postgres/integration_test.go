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

//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/id"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/scan"
	"github.com/cybervault/cybervault/internal/tenant"
	"github.com/cybervault/cybervault/internal/vault"
)

type discard struct{}

func (discard) Emit(context.Context, audit.Entry) {}

// setupDB starts a disposable PostgreSQL container and applies the schema.
func setupDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("cybervault_test"),
		tcpostgres.WithUsername("cybervault"),
		tcpostgres.WithPassword("cybervault_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Skipping integration test: failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx, InitialSchema))
	// The schema is idempotent.
	require.NoError(t, db.Migrate(ctx, InitialSchema))
	return db
}

func createOrg(t *testing.T, repo *OrganizationRepository, slug, ownerID string) authz.Scope {
	t.Helper()
	now := time.Now().UTC()
	org := &tenant.Organization{ID: id.NewUUIDv7(), Name: slug, Slug: slug, Status: tenant.StatusActive, CreatedAt: now, UpdatedAt: now}
	owner := &tenant.Member{
		UserID: ownerID, Email: ownerID + "@example.com", Role: authz.RoleOwner, Status: tenant.MemberActive,
		InvitedBy: ownerID, InvitedAt: now, JoinedAt: &now, UpdatedAt: now,
	}
	require.NoError(t, repo.Create(context.Background(), org, owner))
	return authz.MustScope(org.ID)
}

// TestPurpose: Validates tenant isolation and membership rules against a real database.
// Scope: Database Integration Test
// Security: Multi-tenant Data Separation (CWE-284)
// Expected: Members of org A are invisible through org B's scope, and duplicate slugs conflict.
// Test Case ID: PG-01
func TestPostgres_OrganizationIsolation(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	orgs := NewOrganizationRepository(db)
	members := NewMemberRepository(db)

	scopeA := createOrg(t, orgs, "org-a", "alice")
	scopeB := createOrg(t, orgs, "org-b", "bob")

	err := orgs.Create(ctx, &tenant.Organization{ID: id.NewUUIDv7(), Name: "dup", Slug: "org-a", Status: tenant.StatusActive},
		&tenant.Member{UserID: "mallory", Role: authz.RoleOwner, Status: tenant.MemberActive})
	assert.ErrorIs(t, err, tenant.ErrSlugTaken)

	_, err = members.GetMember(ctx, scopeB, "alice")
	assert.ErrorIs(t, err, tenant.ErrMemberNotFound)

	m, err := members.GetMember(ctx, scopeA, "alice")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleOwner, m.Role)

	list, err := orgs.ListForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, scopeB.OrgID(), list[0].ID)

	_, err = members.ListMembers(ctx, authz.Scope{})
	assert.ErrorIs(t, err, authz.ErrMissingOrganization)
}

// TestPurpose: Validates the last-owner guard under concurrent writers on PostgreSQL.
// Scope: Database Integration Test
// Security: Organization lockout prevention
// Expected: Of two owners disabling each other concurrently exactly one succeeds.
// Test Case ID: PG-02
func TestPostgres_ConcurrentOwnerDisable(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	svc := tenant.NewService(NewOrganizationRepository(db), NewMemberRepository(db), discard{})

	org, err := svc.CreateOrganization(ctx, "alice", "alice@example.com", "Org", "org")
	require.NoError(t, err)
	scope := authz.MustScope(org.ID)
	alice := authz.Principal{UserID: "alice", Role: authz.RoleOwner, Scope: scope, Type: authz.ActorUser}

	_, err = svc.InviteMember(ctx, alice, "bob", "bob@example.com", authz.RoleOwner)
	require.NoError(t, err)
	_, err = svc.AcceptInvitation(ctx, scope, "bob")
	require.NoError(t, err)
	bob := authz.Principal{UserID: "bob", Role: authz.RoleOwner, Scope: scope, Type: authz.ActorUser}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = svc.DisableMember(ctx, alice, "bob") }()
	go func() { defer wg.Done(); _, errs[1] = svc.DisableMember(ctx, bob, "alice") }()
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, authz.ErrLastOwner)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	list, err := svc.ListMembers(ctx, alice)
	if err != nil {
		list, err = svc.ListMembers(ctx, bob)
	}
	require.NoError(t, err)
	active := 0
	for _, m := range list {
		if m.IsActive() && m.Role == authz.RoleOwner {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

// TestPurpose: Validates the audit chain survives storage and the table rejects changes.
// Scope: Database Integration Test
// Security: Audit integrity (CWE-117)
// Expected: Stored entries verify, and UPDATE or DELETE on audit_logs fails.
// Test Case ID: PG-03
func TestPostgres_AuditChainImmutable(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	scope := createOrg(t, NewOrganizationRepository(db), "org-a", "alice")
	repo := NewAuditRepository(db)

	for i := 0; i < 3; i++ {
		e := &audit.Entry{
			ID:        id.NewUUIDv7(),
			ActorID:   "alice",
			Action:    audit.ActionRuleCreated,
			Outcome:   audit.OutcomeSuccess,
			Details:   map[string]any{"count": i, "name": "rule"},
			Timestamp: time.Now(),
		}
		require.NoError(t, repo.Append(ctx, scope, e))
	}

	entries, err := repo.List(ctx, scope, audit.Filter{Ascending: true})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Empty(t, entries[0].PrevHash)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)

	brokenAt, err := audit.Verify(entries)
	assert.NoError(t, err)
	assert.Empty(t, brokenAt)

	_, err = db.Pool().Exec(ctx, `UPDATE audit_logs SET actor_id = 'mallory'`)
	assert.Error(t, err)
	_, err = db.Pool().Exec(ctx, `DELETE FROM audit_logs`)
	assert.Error(t, err)
	assert.ErrorIs(t, repo.Delete(ctx, scope, entries[0].ID), audit.ErrImmutable)

	other := createOrg(t, NewOrganizationRepository(db), "org-b", "bob")
	_, err = repo.Get(ctx, other, entries[0].ID)
	assert.ErrorIs(t, err, audit.ErrEntryNotFound)
}

// TestPurpose: Validates encrypted secrets are bound to their organization in PostgreSQL.
// Scope: Database Integration Test
// Security: Credential confidentiality (CWE-522)
// Expected: A reference from org A does not resolve under org B.
// Test Case ID: PG-04
func TestPostgres_SecretIsolation(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	orgs := NewOrganizationRepository(db)
	scopeA := createOrg(t, orgs, "org-a", "alice")
	scopeB := createOrg(t, orgs, "org-b", "bob")

	store, err := vault.NewEncryptedStore("integration-master-key-0123456789", NewSecretRepository(db))
	require.NoError(t, err)

	ref, err := store.StoreSecret(ctx, scopeA.OrgID(), "aws-prod", "s3cr3t", nil)
	require.NoError(t, err)

	value, err := store.GetSecret(ctx, scopeA.OrgID(), ref)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", value)

	_, err = store.GetSecret(ctx, scopeB.OrgID(), ref)
	assert.Error(t, err)

	var ciphertext string
	require.NoError(t, db.Pool().QueryRow(ctx, `SELECT ciphertext FROM vault_secrets LIMIT 1`).Scan(&ciphertext))
	assert.NotContains(t, ciphertext, "s3cr3t")
}

// TestPurpose: Validates rule versioning is transactional and scoped.
// Scope: Database Integration Test
// Security: Change history integrity
// Expected: Each Modify snapshots the prior state and increments the version.
// Test Case ID: PG-05
func TestPostgres_RuleVersions(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	orgs := NewOrganizationRepository(db)
	scope := createOrg(t, orgs, "org-a", "alice")
	other := createOrg(t, orgs, "org-b", "bob")
	repo := NewRuleRepository(db)

	now := time.Now().UTC()
	r := &rule.Rule{
		ID: id.NewUUIDv7(),
		Content: rule.Content{
			Name:       "TLS required",
			Severity:   rule.SeverityHigh,
			Conditions: rule.Condition{Fact: "tls", Operator: rule.OpEqual, Value: false},
			Event:      rule.Event{Type: "finding"},
			Active:     true,
		},
		Version: 1, CreatedBy: "alice", UpdatedBy: "alice", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.Insert(ctx, scope, r))

	updated, err := repo.Modify(ctx, scope, r.ID, "alice", func(r *rule.Rule) error {
		r.Severity = rule.SeverityCritical
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	v1, err := repo.GetVersion(ctx, scope, r.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, rule.SeverityHigh, v1.Content.Severity)
	assert.Equal(t, "tls", v1.Content.Conditions.Fact)

	_, err = repo.GetVersion(ctx, scope, r.ID, 2)
	assert.ErrorIs(t, err, rule.ErrVersionNotFound)

	_, err = repo.Get(ctx, other, r.ID)
	assert.ErrorIs(t, err, rule.ErrNotFound)
	_, err = repo.Modify(ctx, other, r.ID, "bob", func(*rule.Rule) error { return nil })
	assert.ErrorIs(t, err, rule.ErrNotFound)

	list, err := repo.List(ctx, scope, rule.ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// TestPurpose: Validates scan results can only be attached to scans of the caller's organization.
// Scope: Database Integration Test
// Security: Multi-tenant Data Separation (CWE-284)
// Expected: InsertResult through org B's scope on org A's scan fails with ErrNotFound.
// Test Case ID: PG-06
func TestPostgres_ScanResultsScoped(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	orgs := NewOrganizationRepository(db)
	scope := createOrg(t, orgs, "org-a", "alice")
	other := createOrg(t, orgs, "org-b", "bob")
	repo := NewScanRepository(db)

	now := time.Now().UTC()
	s := &scan.Scan{
		ID: id.NewUUIDv7(), TriggeredBy: "alice", Name: "weekly", Type: scan.TypeCompliance,
		Priority: scan.PriorityMedium, Targets: []scan.Target{{Type: scan.TargetDomain, Value: "example.com"}},
		Schedule: scan.Schedule{Enabled: true, Cron: "0 3 * * 1"}, Status: scan.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.Insert(ctx, scope, s))

	res := &scan.Result{
		ID: id.NewUUIDv7(), ScanID: s.ID, RuleID: "r1", FindingID: "f1", Title: "TLS disabled",
		Severity: rule.SeverityHigh, Target: "example.com", Status: scan.ResultOpen, CreatedAt: now, UpdatedAt: now,
	}
	assert.ErrorIs(t, repo.InsertResult(ctx, other, res), scan.ErrNotFound)
	require.NoError(t, repo.InsertResult(ctx, scope, res))

	results, err := repo.ListResults(ctx, scope, s.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, scope.OrgID(), results[0].OrgID)

	_, err = repo.ListResults(ctx, other, s.ID)
	assert.ErrorIs(t, err, scan.ErrNotFound)

	_, err = repo.ModifyResult(ctx, other, s.ID, res.ID, func(r *scan.Result) error {
		r.Status = scan.ResultResolved
		return nil
	})
	assert.ErrorIs(t, err, scan.ErrNotFound)

	started, err := repo.Modify(ctx, scope, s.ID, func(s *scan.Scan) error {
		s.Status = scan.StatusRunning
		s.StartedAt = &now
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, scan.StatusRunning, started.Status)

	scheduled, err := repo.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, scope.OrgID(), scheduled[0].OrgID)
}
