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

import (
	"fmt"
	"strings"
)

// Permission is a named capability checked against a Role.
type Permission uint8

const (
	PermissionUnknown Permission = iota
	PermViewDashboard
	PermManageOrganization
	PermDeleteOrganization
	PermManageTeamMembers
	PermManageCredentials
	PermViewAuditLogs
	PermExportAuditLogs
	PermManageRules
	PermViewRules
	PermRunScans
	PermViewScans
	PermViewReports
	PermExportReports
	PermCustomizeLayout
	PermSwitchTheme

	permissionCount
)

var permissionNames = map[Permission]string{
	PermViewDashboard:      "view_dashboard",
	PermManageOrganization: "manage_organization",
	PermDeleteOrganization: "delete_organization",
	PermManageTeamMembers:  "manage_team_members",
	PermManageCredentials:  "manage_credentials",
	PermViewAuditLogs:      "view_audit_logs",
	PermExportAuditLogs:    "export_audit_logs",
	PermManageRules:        "manage_rules",
	PermViewRules:          "view_rules",
	PermRunScans:           "run_scans",
	PermViewScans:          "view_scans",
	PermViewReports:        "view_reports",
	PermExportReports:      "export_reports",
	PermCustomizeLayout:    "customize_layout",
	PermSwitchTheme:        "switch_theme",
}

// ParsePermission maps a permission name to a Permission. Unrecognised names
// yield PermissionUnknown.
func ParsePermission(s string) Permission {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range permissionNames {
		if name == s {
			return p
		}
	}
	return PermissionUnknown
}

func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return "unknown"
}

func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Permission) UnmarshalText(text []byte) error {
	parsed := ParsePermission(string(text))
	if parsed == PermissionUnknown {
		return fmt.Errorf("unknown permission %q", string(text))
	}
	*p = parsed
	return nil
}

// Permissions lists every known permission in declaration order.
func Permissions() []Permission {
	out := make([]Permission, 0, permissionCount-1)
	for p := PermViewDashboard; p < permissionCount; p++ {
		out = append(out, p)
	}
	return out
}
