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

package tenant_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/store/memory"
	"github.com/cybervault/cybervault/internal/tenant"
)

type discard struct{}

func (discard) Emit(context.Context, audit.Entry) {}

func newService() (*tenant.Service, *memory.Store) {
	store := memory.New()
	return tenant.NewService(store.Organizations(), store.Members(), discard{}), store
}

func principalFor(t *testing.T, svc *tenant.Service, orgID, userID string) authz.Principal {
	t.Helper()
	scope := authz.MustScope(orgID)
	role, err := svc.ResolveRole(context.Background(), scope, userID)
	require.NoError(t, err)
	return authz.Principal{UserID: userID, Role: role, Scope: scope, Type: authz.ActorUser}
}

func addActive(t *testing.T, svc *tenant.Service, owner authz.Principal, userID string, role authz.Role) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.InviteMember(ctx, owner, userID, userID+"@example.com", role)
	require.NoError(t, err)
	_, err = svc.AcceptInvitation(ctx, owner.Scope, userID)
	require.NoError(t, err)
}

// TestPurpose: Validates the sole administrator cannot be disabled.
// Scope: Integration Test (memory store)
// Security: Organization lockout prevention
// Expected: Conflict is returned and carol remains the active owner afterwards.
// Test Case ID: TNT-10
func TestTenant_Isolation_SoleAdministratorCannotBeDisabled(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	org, err := svc.CreateOrganization(ctx, "carol", "carol@example.com", "Org A", "org-a")
	require.NoError(t, err)
	carol := principalFor(t, svc, org.ID, "carol")
	addActive(t, svc, carol, "bob", authz.RoleMember)

	_, err = svc.DisableMember(ctx, carol, "carol")
	assert.ErrorIs(t, err, authz.ErrLastOwner)
	assert.Equal(t, authz.KindConflict, authz.KindOf(err))

	_, err = svc.RemoveMember(ctx, carol, "carol")
	assert.Equal(t, authz.KindConflict, authz.KindOf(err))

	_, err = svc.ChangeRole(ctx, carol, "carol", authz.RoleViewer)
	assert.Equal(t, authz.KindConflict, authz.KindOf(err))

	m, err := store.Members().GetMember(ctx, carol.Scope, "carol")
	require.NoError(t, err)
	assert.Equal(t, tenant.MemberActive, m.Status)
	assert.Equal(t, authz.RoleOwner, m.Role)
}

// TestPurpose: Validates the last-owner rule under concurrent attempts.
// Scope: Integration Test (memory store)
// Security: Lockout prevention holds under races
// Expected: When two owners disable each other simultaneously, exactly one succeeds.
// Test Case ID: TNT-11
func TestTenant_Isolation_ConcurrentOwnerDisable(t *testing.T) {
	for round := 0; round < 25; round++ {
		svc, store := newService()
		ctx := context.Background()

		org, err := svc.CreateOrganization(ctx, "alice", "", "Org", "org")
		require.NoError(t, err)
		alice := principalFor(t, svc, org.ID, "alice")
		addActive(t, svc, alice, "dave", authz.RoleOwner)
		dave := principalFor(t, svc, org.ID, "dave")

		var (
			wg   sync.WaitGroup
			errs = make([]error, 2)
			gate = make(chan struct{})
		)
		attempts := []struct {
			actor  authz.Principal
			target string
		}{{alice, "dave"}, {dave, "alice"}}

		for i, a := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				_, errs[i] = svc.DisableMember(ctx, a.actor, a.target)
			}()
		}
		close(gate)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, authz.ErrLastOwner)
		}
		assert.Equal(t, 1, succeeded, "round %d", round)

		members, err := store.Members().ListMembers(ctx, alice.Scope)
		require.NoError(t, err)
		active := 0
		for _, m := range members {
			if m.IsActive() && m.Role == authz.RoleOwner {
				active++
			}
		}
		assert.Equal(t, 1, active, "round %d", round)
	}
}

// TestPurpose: Validates memberships never leak across organizations.
// Scope: Integration Test (memory store)
// Security: Tenant isolation
// Expected: Lookups under another org behave as if the member does not exist.
// Test Case ID: TNT-12
func TestTenant_Isolation_CrossOrganization(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	orgA, err := svc.CreateOrganization(ctx, "alice", "", "Org A", "org-a")
	require.NoError(t, err)
	orgB, err := svc.CreateOrganization(ctx, "bob", "", "Org B", "org-b")
	require.NoError(t, err)

	_, err = svc.ResolveRole(ctx, authz.MustScope(orgB.ID), "alice")
	assert.ErrorIs(t, err, tenant.ErrNotMember)

	_, err = store.Members().GetMember(ctx, authz.MustScope(orgA.ID), "bob")
	assert.ErrorIs(t, err, tenant.ErrMemberNotFound)

	members, err := store.Members().ListMembers(ctx, authz.MustScope(orgA.ID))
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].UserID)

	// alice's org-A principal cannot reach bob's membership.
	alice := principalFor(t, svc, orgA.ID, "alice")
	_, err = svc.DisableMember(ctx, alice, "bob")
	assert.ErrorIs(t, err, tenant.ErrMemberNotFound)
	assert.Equal(t, authz.KindForbidden, authz.KindOf(err))

	orgs, err := svc.ListOrganizations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, orgA.ID, orgs[0].ID)
}

// TestPurpose: Validates the invitation lifecycle and soft removal.
// Scope: Integration Test (memory store)
// Security: Only active members resolve a role
// Expected: Invited users have no access until accepting; removed users lose it again.
// Test Case ID: TNT-13
func TestTenant_Isolation_InvitationLifecycle(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	org, err := svc.CreateOrganization(ctx, "alice", "", "Org", "org")
	require.NoError(t, err)
	alice := principalFor(t, svc, org.ID, "alice")

	_, err = svc.InviteMember(ctx, alice, "erin", "erin@example.com", authz.RoleDeveloper)
	require.NoError(t, err)
	_, err = svc.InviteMember(ctx, alice, "erin", "erin@example.com", authz.RoleDeveloper)
	assert.ErrorIs(t, err, tenant.ErrMemberExists)

	_, err = svc.ResolveRole(ctx, alice.Scope, "erin")
	assert.ErrorIs(t, err, tenant.ErrNotMember)

	_, err = svc.AcceptInvitation(ctx, alice.Scope, "erin")
	require.NoError(t, err)
	role, err := svc.ResolveRole(ctx, alice.Scope, "erin")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleDeveloper, role)

	removed, err := svc.RemoveMember(ctx, alice, "erin")
	require.NoError(t, err)
	assert.Equal(t, tenant.MemberRemoved, removed.Status)

	_, err = svc.ResolveRole(ctx, alice.Scope, "erin")
	assert.ErrorIs(t, err, tenant.ErrNotMember)

	// A removed membership can be re-invited.
	_, err = svc.InviteMember(ctx, alice, "erin", "erin@example.com", authz.RoleViewer)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOrganization(ctx, alice))
	_, err = svc.ResolveRole(ctx, alice.Scope, "alice")
	assert.ErrorIs(t, err, tenant.ErrNotMember)
}
