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
	"strings"

	"github.com/samber/lo"
)

// Mode selects how a Requirement combines its permissions.
type Mode uint8

const (
	// ModeAll requires every listed permission.
	ModeAll Mode = iota
	// ModeAny requires at least one listed permission.
	ModeAny
)

// Requirement is the permission check attached to an operation. The same
// value drives the server-side gate and the permission summary the client
// uses to disable controls.
type Requirement struct {
	Mode        Mode
	Permissions []Permission
}

// RequireAll builds a Requirement satisfied only when every permission is held.
func RequireAll(perms ...Permission) Requirement {
	return Requirement{Mode: ModeAll, Permissions: perms}
}

// RequireAny builds a Requirement satisfied when any one permission is held.
func RequireAny(perms ...Permission) Requirement {
	return Requirement{Mode: ModeAny, Permissions: perms}
}

// MembershipOnly is satisfied by any known role.
var MembershipOnly = Requirement{}

// Allows reports whether role satisfies the requirement.
func (r Requirement) Allows(role Role) bool {
	if !role.Valid() {
		return false
	}
	if len(r.Permissions) == 0 {
		return true
	}
	granted := func(p Permission) bool { return HasPermission(role, p) }
	if r.Mode == ModeAny {
		return lo.SomeBy(r.Permissions, granted)
	}
	return lo.EveryBy(r.Permissions, granted)
}

// Check returns ErrAccessDenied when role does not satisfy the requirement.
func (r Requirement) Check(role Role) error {
	if !r.Allows(role) {
		return ErrAccessDenied
	}
	return nil
}

func (r Requirement) String() string {
	if len(r.Permissions) == 0 {
		return "membership"
	}
	sep := " & "
	if r.Mode == ModeAny {
		sep = " | "
	}
	return strings.Join(lo.Map(r.Permissions, func(p Permission, _ int) string {
		return p.String()
	}), sep)
}
