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

package authz_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/stretchr/testify/assert"
)

// expectedGrants mirrors the documented role matrix. Any pair not listed
// here must be denied.
var expectedGrants = map[authz.Role][]string{
	authz.RoleOwner: {
		"view_dashboard", "manage_organization", "delete_organization", "manage_team_members",
		"manage_credentials", "view_audit_logs", "export_audit_logs", "manage_rules", "view_rules",
		"run_scans", "view_scans", "view_reports", "export_reports", "customize_layout", "switch_theme",
	},
	authz.RoleAdmin: {
		"view_dashboard", "manage_organization", "manage_team_members",
		"manage_credentials", "view_audit_logs", "export_audit_logs", "manage_rules", "view_rules",
		"run_scans", "view_scans", "view_reports", "export_reports", "customize_layout", "switch_theme",
	},
	authz.RoleSecurityTeam: {
		"view_dashboard", "view_audit_logs", "manage_rules", "view_rules", "run_scans", "view_scans",
		"view_reports", "export_reports",
	},
	authz.RoleComplianceOfficer: {
		"view_dashboard", "view_audit_logs", "view_rules", "view_scans", "view_reports", "export_reports",
	},
	authz.RoleAuditor: {
		"view_dashboard", "view_audit_logs", "export_audit_logs", "view_rules", "view_scans",
		"view_reports", "export_reports",
	},
	authz.RoleDeveloper: {
		"view_dashboard", "manage_rules", "view_rules", "run_scans", "view_scans", "view_reports",
	},
	authz.RoleMember: {"view_dashboard", "view_rules", "view_scans", "view_reports"},
	authz.RoleViewer: {"view_dashboard", "view_rules", "view_scans", "view_reports"},
}

// TestPurpose: Validates the complete role/permission matrix, including every pair that must be denied.
// Scope: Unit Test
// Security: Fail-closed authorization (CWE-285)
// Expected: HasPermission is true exactly for the documented grants and false for every other pair.
// Test Case ID: AUZ-01
func TestHasPermission_Matrix(t *testing.T) {
	for _, role := range authz.Roles {
		granted := map[string]bool{}
		for _, name := range expectedGrants[role] {
			granted[name] = true
		}
		for _, perm := range authz.Permissions() {
			assert.Equal(t, granted[perm.String()], authz.HasPermission(role, perm),
				fmt.Sprintf("%s / %s", role, perm))
		}
	}
}

// TestPurpose: Validates fail-closed behavior for unknown roles and permissions.
// Scope: Unit Test
// Security: Stringly-typed identifiers cannot bypass checks
// Expected: Unknown role or unknown permission is always denied.
// Test Case ID: AUZ-02
func TestHasPermission_FailsClosed(t *testing.T) {
	assert.Equal(t, authz.RoleUnknown, authz.ParseRole("superuser"))
	assert.Equal(t, authz.RoleUnknown, authz.ParseRole(""))
	assert.Equal(t, authz.PermissionUnknown, authz.ParsePermission("admin_all"))

	for _, perm := range authz.Permissions() {
		assert.False(t, authz.HasPermission(authz.RoleUnknown, perm))
		assert.False(t, authz.HasPermission(authz.Role(200), perm))
	}
	for _, role := range authz.Roles {
		assert.False(t, authz.HasPermission(role, authz.PermissionUnknown))
		assert.False(t, authz.HasPermission(role, authz.Permission(63)))
	}
}

// TestPurpose: Validates that deleting the organization is exclusive to the owner role.
// Scope: Unit Test
// Security: Destructive action restricted to a single role
// Expected: Only RoleOwner holds delete_organization.
// Test Case ID: AUZ-03
func TestDeleteOrganization_OwnerOnly(t *testing.T) {
	for _, role := range authz.Roles {
		assert.Equal(t, role == authz.RoleOwner, authz.HasPermission(role, authz.PermDeleteOrganization), role.String())
	}
}

// TestPurpose: Validates that higher-privilege roles are supersets of lower ones.
// Scope: Unit Test
// Security: Additive permission model
// Expected: Owner covers admin, admin covers every non-owner role.
// Test Case ID: AUZ-04
func TestMatrix_Additive(t *testing.T) {
	for _, p := range authz.PermissionsFor(authz.RoleAdmin) {
		assert.True(t, authz.HasPermission(authz.RoleOwner, p))
	}
	for _, role := range authz.Roles[2:] {
		for _, p := range authz.PermissionsFor(role) {
			assert.True(t, authz.HasPermission(authz.RoleAdmin, p), "%s/%s", role, p)
		}
	}
}

// TestPurpose: Validates "all required" and "any sufficient" guard modes.
// Scope: Unit Test
// Security: Shared decision function for client and server gates
// Expected: All-mode needs every permission; Any-mode needs one; unknown roles never pass.
// Test Case ID: AUZ-05
func TestRequirement_Modes(t *testing.T) {
	all := authz.RequireAll(authz.PermViewAuditLogs, authz.PermExportAuditLogs)
	anyOf := authz.RequireAny(authz.PermExportReports, authz.PermExportAuditLogs)

	assert.True(t, all.Allows(authz.RoleAuditor))
	assert.False(t, all.Allows(authz.RoleComplianceOfficer))
	assert.True(t, anyOf.Allows(authz.RoleComplianceOfficer))
	assert.False(t, anyOf.Allows(authz.RoleDeveloper))

	assert.True(t, authz.MembershipOnly.Allows(authz.RoleViewer))
	assert.False(t, authz.MembershipOnly.Allows(authz.RoleUnknown))
	assert.False(t, anyOf.Allows(authz.RoleUnknown))

	assert.ErrorIs(t, all.Check(authz.RoleMember), authz.ErrAccessDenied)
	assert.NoError(t, all.Check(authz.RoleOwner))
	assert.Equal(t, "export_reports | export_audit_logs", anyOf.String())
}

// TestPurpose: Validates that a member can never disable or remove their own membership.
// Scope: Unit Test
// Security: Self-lockout prevention
// Expected: Self disable/remove is Forbidden for every role, even with other administrators present.
// Test Case ID: AUZ-06
func TestCheckMembershipChange_Self(t *testing.T) {
	stats := authz.AdminStats{ActiveOwners: 3, ActiveAdministrators: 5}
	for _, role := range authz.Roles {
		self := authz.MemberState{UserID: "u1", Role: role, Active: true}
		for _, change := range []authz.MembershipChange{authz.ChangeDisable, authz.ChangeRemove} {
			err := authz.CheckMembershipChange("u1", self, change, authz.RoleUnknown, stats)
			assert.ErrorIs(t, err, authz.ErrSelfMembership)
			assert.Equal(t, authz.KindForbidden, authz.KindOf(err))
		}
	}
}

// TestPurpose: Validates last-owner and last-administrator protection.
// Scope: Unit Test
// Security: Organization lockout prevention
// Expected: Removing, disabling or demoting the last owner or administrator yields Conflict.
// Test Case ID: AUZ-07
func TestCheckMembershipChange_LastOwner(t *testing.T) {
	owner := authz.MemberState{UserID: "carol", Role: authz.RoleOwner, Active: true}
	admin := authz.MemberState{UserID: "dave", Role: authz.RoleAdmin, Active: true}

	tests := []struct {
		name    string
		target  authz.MemberState
		change  authz.MembershipChange
		newRole authz.Role
		stats   authz.AdminStats
		want    error
	}{
		{"disable last owner", owner, authz.ChangeDisable, authz.RoleUnknown, authz.AdminStats{1, 2}, authz.ErrLastOwner},
		{"remove last owner", owner, authz.ChangeRemove, authz.RoleUnknown, authz.AdminStats{1, 1}, authz.ErrLastOwner},
		{"demote last owner", owner, authz.ChangeRole, authz.RoleAdmin, authz.AdminStats{1, 2}, authz.ErrLastOwner},
		{"disable one of two owners", owner, authz.ChangeDisable, authz.RoleUnknown, authz.AdminStats{2, 2}, nil},
		{"disable last administrator", admin, authz.ChangeDisable, authz.RoleUnknown, authz.AdminStats{0, 1}, authz.ErrLastAdministrator},
		{"demote last administrator", admin, authz.ChangeRole, authz.RoleViewer, authz.AdminStats{0, 1}, authz.ErrLastAdministrator},
		{"admin to owner keeps administrator", admin, authz.ChangeRole, authz.RoleOwner, authz.AdminStats{0, 1}, nil},
		{"disable admin while owner remains", admin, authz.ChangeDisable, authz.RoleUnknown, authz.AdminStats{1, 2}, nil},
		{"inactive owner not protected", authz.MemberState{UserID: "x", Role: authz.RoleOwner}, authz.ChangeRemove, authz.RoleUnknown, authz.AdminStats{1, 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.CheckMembershipChange("alice", tt.target, tt.change, tt.newRole, tt.stats)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, authz.KindConflict, authz.KindOf(err))
		})
	}
}

// TestPurpose: Validates that lockout protection takes precedence over self protection.
// Scope: Unit Test
// Security: Deterministic rejection taxonomy
// Expected: The sole administrator disabling themselves receives Conflict.
// Test Case ID: AUZ-08
func TestCheckMembershipChange_Precedence(t *testing.T) {
	carol := authz.MemberState{UserID: "carol", Role: authz.RoleAdmin, Active: true}
	err := authz.CheckMembershipChange("carol", carol, authz.ChangeDisable, authz.RoleUnknown, authz.AdminStats{0, 1})
	assert.ErrorIs(t, err, authz.ErrLastAdministrator)
}

// TestPurpose: Validates error classification across wrapping.
// Scope: Unit Test
// Expected: KindOf sees through fmt wrapping; unknown errors are Internal.
// Test Case ID: AUZ-09
func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("disable member: %w", authz.ErrLastOwner)
	assert.Equal(t, authz.KindConflict, authz.KindOf(wrapped))
	assert.Equal(t, authz.ErrLastOwner.Message, authz.MessageOf(wrapped))
	assert.Equal(t, authz.KindInternal, authz.KindOf(errors.New("boom")))
	assert.Equal(t, authz.KindBadRequest, authz.KindOf(authz.BadRequest("org_id is required")))
}

// TestPurpose: Validates role text encoding used by JSON payloads and storage.
// Scope: Unit Test
// Expected: Known roles round-trip; unknown names are rejected.
// Test Case ID: AUZ-10
func TestRole_Text(t *testing.T) {
	var r authz.Role
	assert.NoError(t, r.UnmarshalText([]byte("Security_Team")))
	assert.Equal(t, authz.RoleSecurityTeam, r)
	assert.Error(t, r.UnmarshalText([]byte("root")))

	b, err := authz.RoleAuditor.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "auditor", string(b))
}
