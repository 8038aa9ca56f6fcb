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

// Role is the role a user holds within one organization. The set is closed:
// anything that does not parse becomes RoleUnknown, which is denied everything.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleOwner
	RoleAdmin
	RoleSecurityTeam
	RoleComplianceOfficer
	RoleAuditor
	RoleDeveloper
	RoleMember
	RoleViewer
)

var roleNames = map[Role]string{
	RoleOwner:             "owner",
	RoleAdmin:             "admin",
	RoleSecurityTeam:      "security_team",
	RoleComplianceOfficer: "compliance_officer",
	RoleAuditor:           "auditor",
	RoleDeveloper:         "developer",
	RoleMember:            "member",
	RoleViewer:            "viewer",
}

// Roles lists every known role from most to least privileged.
var Roles = []Role{
	RoleOwner,
	RoleAdmin,
	RoleSecurityTeam,
	RoleComplianceOfficer,
	RoleAuditor,
	RoleDeveloper,
	RoleMember,
	RoleViewer,
}

// ParseRole maps a role name to a Role. Unrecognised names yield RoleUnknown.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r
		}
	}
	return RoleUnknown
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// IsAdministrative reports whether r counts toward the organization's
// administrators for lockout protection.
func (r Role) IsAdministrative() bool {
	return r == RoleOwner || r == RoleAdmin
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed := ParseRole(string(text))
	if parsed == RoleUnknown {
		return fmt.Errorf("unknown role %q", string(text))
	}
	*r = parsed
	return nil
}
