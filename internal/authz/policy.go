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

// MembershipChange is a mutation of an existing membership that is subject
// to lockout protection.
type MembershipChange uint8

const (
	ChangeDisable MembershipChange = iota
	ChangeRemove
	ChangeRole
)

// MemberState is the part of a membership the policies look at.
type MemberState struct {
	UserID string
	Role   Role
	Active bool
}

// AdminStats counts the active privileged members of one organization. It
// must be read under the same lock or transaction that applies the change.
type AdminStats struct {
	ActiveOwners         int
	ActiveAdministrators int
}

// CheckMembershipChange applies the membership policies that hold regardless
// of the actor's role. newRole is only consulted for ChangeRole.
//
// Lockout protection is evaluated first and yields a Conflict; the self
// protection rule yields Forbidden.
func CheckMembershipChange(actorID string, target MemberState, change MembershipChange, newRole Role, stats AdminStats) error {
	if target.Active {
		losesOwner := target.Role == RoleOwner
		losesAdministrator := target.Role.IsAdministrative()
		if change == ChangeRole {
			losesOwner = losesOwner && newRole != RoleOwner
			losesAdministrator = losesAdministrator && !newRole.IsAdministrative()
		}

		if losesOwner && stats.ActiveOwners <= 1 {
			return ErrLastOwner
		}
		if losesAdministrator && stats.ActiveAdministrators <= 1 {
			return ErrLastAdministrator
		}
	}

	if actorID == target.UserID && (change == ChangeDisable || change == ChangeRemove) {
		return ErrSelfMembership
	}

	return nil
}
