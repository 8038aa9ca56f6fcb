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

package authz

// -----------------------------------------------------------------------------
// Role Permission Matrix
// Permissions are additive from viewer up to owner. delete_organization is
// granted to the owner role only and has no other path.
// -----------------------------------------------------------------------------

var readOnlyPermissions = []Permission{
	PermViewDashboard,
	PermViewRules,
	PermViewScans,
	PermViewReports,
}

var matrix = map[Role][]Permission{
	RoleOwner: {
		PermViewDashboard,
		PermManageOrganization,
		PermDeleteOrganization,
		PermManageTeamMembers,
		PermManageCredentials,
		PermViewAuditLogs,
		PermExportAuditLogs,
		PermManageRules,
		PermViewRules,
		PermRunScans,
		PermViewScans,
		PermViewReports,
		PermExportReports,
		PermCustomizeLayout,
		PermSwitchTheme,
	},
	RoleAdmin: {
		PermViewDashboard,
		PermManageOrganization,
		PermManageTeamMembers,
		PermManageCredentials,
		PermViewAuditLogs,
		PermExportAuditLogs,
		PermManageRules,
		PermViewRules,
		PermRunScans,
		PermViewScans,
		PermViewReports,
		PermExportReports,
		PermCustomizeLayout,
		PermSwitchTheme,
	},
	RoleSecurityTeam: {
		PermViewDashboard,
		PermViewAuditLogs,
		PermManageRules,
		PermViewRules,
		PermRunScans,
		PermViewScans,
		PermViewReports,
		PermExportReports,
	},
	RoleComplianceOfficer: {
		PermViewDashboard,
		PermViewAuditLogs,
		PermViewRules,
		PermViewScans,
		PermViewReports,
		PermExportReports,
	},
	RoleAuditor: {
		PermViewDashboard,
		PermViewAuditLogs,
		PermExportAuditLogs,
		PermViewRules,
		PermViewScans,
		PermViewReports,
		PermExportReports,
	},
	RoleDeveloper: {
		PermViewDashboard,
		PermManageRules,
		PermViewRules,
		PermRunScans,
		PermViewScans,
		PermViewReports,
	},
	RoleMember: readOnlyPermissions,
	RoleViewer: readOnlyPermissions,
}

// grants is the matrix flattened to bitsets for lookup.
var grants = func() map[Role]uint32 {
	out := make(map[Role]uint32, len(matrix))
	for role, perms := range matrix {
		var set uint32
		for _, p := range perms {
			set |= 1 << p
		}
		out[role] = set
	}
	return out
}()

// HasPermission reports whether role is granted permission. It fails closed:
// an unknown role or an unknown permission is never granted.
func HasPermission(role Role, permission Permission) bool {
	if permission == PermissionUnknown || permission >= permissionCount {
		return false
	}
	set, ok := grants[role]
	if !ok {
		return false
	}
	return set&(1<<permission) != 0
}

// PermissionsFor returns the permissions granted to role, in declaration order.
func PermissionsFor(role Role) []Permission {
	var out []Permission
	for _, p := range Permissions() {
		if HasPermission(role, p) {
			out = append(out, p)
		}
	}
	return out
}
