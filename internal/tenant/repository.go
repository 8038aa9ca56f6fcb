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

package tenant

import (
	"context"

	"github.com/cybervault/cybervault/internal/authz"
)

var (
	ErrOrganizationNotFound = authz.NewError(authz.KindForbidden, "organization not found")
	ErrMemberNotFound       = authz.NewError(authz.KindForbidden, "member not found")
	ErrNotMember            = authz.NewError(authz.KindForbidden, "not an active member of the organization")
	ErrSlugTaken            = authz.NewError(authz.KindConflict, "organization slug is already taken")
	ErrMemberExists         = authz.NewError(authz.KindConflict, "user is already a member of the organization")
	ErrNotInvited           = authz.NewError(authz.KindConflict, "no pending invitation")
	ErrInvalidName          = authz.NewError(authz.KindBadRequest, "organization name is required")
	ErrInvalidSlug          = authz.NewError(authz.KindBadRequest, "slug must be lowercase letters, digits and dashes")
	ErrInvalidRole          = authz.NewError(authz.KindBadRequest, "invalid role")
	ErrInvalidUser          = authz.NewError(authz.KindBadRequest, "user_id is required")
)

// Repository persists organizations.
type Repository interface {
	// Create stores org together with its first owner membership.
	Create(ctx context.Context, org *Organization, owner *Member) error
	GetByID(ctx context.Context, scope authz.Scope) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	Update(ctx context.Context, scope authz.Scope, org *Organization) error
	// ListForUser returns the organizations where userID is an active member.
	ListForUser(ctx context.Context, userID string) ([]*Organization, error)
}

// MemberMutation changes a loaded member in place. stats counts the active
// owners and administrators as of the same atomic read. Returning an error
// aborts the change.
type MemberMutation func(m *Member, stats authz.AdminStats) error

// MemberRepository persists memberships.
type MemberRepository interface {
	GetMember(ctx context.Context, scope authz.Scope, userID string) (*Member, error)
	ListMembers(ctx context.Context, scope authz.Scope) ([]*Member, error)
	// AddMember inserts m, or revives a removed membership for the same user.
	AddMember(ctx context.Context, scope authz.Scope, m *Member) error
	// ModifyMember loads the member, applies fn and persists the result as
	// one atomic step with respect to other ModifyMember calls on the same
	// organization.
	ModifyMember(ctx context.Context, scope authz.Scope, userID string, fn MemberMutation) (*Member, error)
}
