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

package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/tenant"
)

func appendEntries(t *testing.T, repo audit.Repository, orgID string, n int) []*audit.Entry {
	t.Helper()
	out := make([]*audit.Entry, 0, n)
	for i := 0; i < n; i++ {
		e := &audit.Entry{
			ID:           fmt.Sprintf("%s-%02d", orgID, i),
			ActorID:      "alice",
			Action:       audit.ActionRuleCreated,
			ResourceType: "rule",
			Outcome:      audit.OutcomeSuccess,
			Timestamp:    time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		}
		require.NoError(t, repo.Append(context.Background(), authz.MustScope(orgID), e))
		out = append(out, e)
	}
	return out
}

// TestPurpose: Validates audit entries form a per-organization hash chain and cannot be changed.
// Scope: Unit Test
// Security: Tamper evidence and immutability of the audit trail
// Expected: Chains verify per org, update and delete are refused, and listings never cross orgs.
// Test Case ID: MEM-01
func TestMemory_AuditAppendOnly(t *testing.T) {
	store := New()
	repo := store.AuditLogs()
	ctx := context.Background()

	a := appendEntries(t, repo, "org-a", 3)
	appendEntries(t, repo, "org-b", 2)

	assert.Empty(t, a[0].PrevHash)
	assert.Equal(t, a[0].Hash, a[1].PrevHash)

	chain, err := repo.List(ctx, authz.MustScope("org-a"), audit.Filter{Ascending: true})
	require.NoError(t, err)
	require.Len(t, chain, 3)
	brokenAt, err := audit.Verify(chain)
	require.NoError(t, err)
	assert.Empty(t, brokenAt)

	newest, err := repo.List(ctx, authz.MustScope("org-a"), audit.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, "org-a-02", newest[0].ID)

	tampered := *chain[1]
	tampered.ActorID = "mallory"
	assert.ErrorIs(t, repo.Update(ctx, authz.MustScope("org-a"), &tampered), audit.ErrImmutable)
	assert.ErrorIs(t, repo.Delete(ctx, authz.MustScope("org-a"), chain[1].ID), audit.ErrImmutable)

	stored, err := repo.Get(ctx, authz.MustScope("org-a"), chain[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.ActorID)

	// A modified copy no longer verifies.
	chain[1] = &tampered
	brokenAt, err = audit.Verify(chain)
	assert.ErrorIs(t, err, audit.ErrChainBroken)
	assert.Equal(t, "org-a-01", brokenAt)

	_, err = repo.Get(ctx, authz.MustScope("org-b"), "org-a-00")
	assert.ErrorIs(t, err, audit.ErrEntryNotFound)
}

// TestPurpose: Validates every repository refuses an empty organization scope.
// Scope: Unit Test
// Security: Queries without an organization predicate are impossible
// Expected: ErrMissingOrganization from reads and writes with a zero Scope.
// Test Case ID: MEM-02
func TestMemory_RequiresScope(t *testing.T) {
	store := New()
	ctx := context.Background()
	var none authz.Scope

	_, err := store.Organizations().GetByID(ctx, none)
	assert.ErrorIs(t, err, authz.ErrMissingOrganization)
	_, err = store.Members().ListMembers(ctx, none)
	assert.ErrorIs(t, err, authz.ErrMissingOrganization)
	_, err = store.Credentials().List(ctx, none)
	assert.ErrorIs(t, err, authz.ErrMissingOrganization)
	_, err = store.Rules().List(ctx, none, rule.ListFilter{})
	assert.ErrorIs(t, err, authz.ErrMissingOrganization)
	_, err = store.Scans().Get(ctx, none, "x")
	assert.ErrorIs(t, err, authz.ErrMissingOrganization)
	assert.ErrorIs(t, store.AuditLogs().Append(ctx, none, &audit.Entry{ID: "x"}), authz.ErrMissingOrganization)
}

// TestPurpose: Validates rule modification preserves identity and snapshots history.
// Scope: Unit Test
// Security: A mutation cannot move a rule to another organization
// Expected: ID, OrgID and creator survive a mutation that tries to change them.
// Test Case ID: MEM-03
func TestMemory_RuleModifyPreservesIdentity(t *testing.T) {
	store := New()
	repo := store.Rules()
	ctx := context.Background()
	scope := authz.MustScope("org-a")

	require.NoError(t, repo.Insert(ctx, scope, &rule.Rule{
		ID: "r1", Version: 1, CreatedBy: "alice",
		Content: rule.Content{Name: "r", Severity: rule.SeverityLow},
	}))

	got, err := repo.Modify(ctx, scope, "r1", "bob", func(r *rule.Rule) error {
		r.ID = "r2"
		r.OrgID = "org-b"
		r.CreatedBy = "mallory"
		r.Version = 99
		r.Name = "renamed"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, "org-a", got.OrgID)
	assert.Equal(t, "alice", got.CreatedBy)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "renamed", got.Name)

	versions, err := repo.ListVersions(ctx, scope, "r1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "r", versions[0].Content.Name)
	assert.Equal(t, "bob", versions[0].ChangedBy)

	_, err = repo.ListVersions(ctx, authz.MustScope("org-b"), "r1")
	assert.ErrorIs(t, err, rule.ErrNotFound)
}

// TestPurpose: Validates organizations listed for a user follow membership state.
// Scope: Unit Test
// Security: Disabled memberships and organizations are not offered for switching
// Expected: Only active memberships of active organizations are listed.
// Test Case ID: MEM-04
func TestMemory_ListForUser(t *testing.T) {
	store := New()
	orgs := store.Organizations()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, o := range []struct {
		id, name, status, member string
	}{
		{"o1", "Beta", tenant.StatusActive, tenant.MemberActive},
		{"o2", "Alpha", tenant.StatusActive, tenant.MemberActive},
		{"o3", "Gamma", tenant.StatusDisabled, tenant.MemberActive},
		{"o4", "Delta", tenant.StatusActive, tenant.MemberDisabled},
	} {
		require.NoError(t, orgs.Create(ctx,
			&tenant.Organization{ID: o.id, Name: o.name, Slug: o.id, Status: o.status, CreatedAt: now},
			&tenant.Member{OrgID: o.id, UserID: "alice", Role: authz.RoleOwner, Status: o.member, InvitedAt: now},
		))
	}

	list, err := orgs.ListForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Name)
	assert.Equal(t, "Beta", list[1].Name)

	err = orgs.Create(ctx, &tenant.Organization{ID: "o5", Slug: "o1"}, &tenant.Member{UserID: "bob"})
	assert.ErrorIs(t, err, tenant.ErrSlugTaken)
}
