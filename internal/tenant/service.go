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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/id"
)

// Service provides organization and membership management
type Service struct {
	repo    Repository
	members MemberRepository
	audit   audit.Emitter
	now     func() time.Time
}

// NewService creates a new tenant service
func NewService(repo Repository, members MemberRepository, auditEmitter audit.Emitter) *Service {
	return &Service{
		repo:    repo,
		members: members,
		audit:   auditEmitter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrganization creates an organization and makes the caller its owner.
func (s *Service) CreateOrganization(ctx context.Context, userID, email, name, slug string) (*Organization, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if slug == "" {
		slug = Slugify(name)
	}
	if !ValidSlug(slug) {
		return nil, ErrInvalidSlug
	}

	now := s.now()
	org := &Organization{
		ID:        id.NewUUIDv7(),
		Name:      name,
		Slug:      slug,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := &Member{
		OrgID:     org.ID,
		UserID:    userID,
		Email:     email,
		Role:      authz.RoleOwner,
		Status:    MemberActive,
		InvitedBy: userID,
		InvitedAt: now,
		JoinedAt:  &now,
		UpdatedAt: now,
	}

	err := s.repo.Create(ctx, org, owner)
	// A failed creation has no tenant to attribute the entry to.
	auditOrg := org.ID
	if err != nil {
		auditOrg = ""
	}
	s.audit.Emit(ctx, audit.Entry{
		OrgID:        auditOrg,
		ActorID:      userID,
		Action:       audit.ActionOrganizationCreated,
		ResourceType: "organization",
		ResourceID:   org.ID,
		Outcome:      audit.OutcomeOf(err),
		Details:      map[string]any{"slug": slug, "name": name},
	})
	if err != nil {
		if errors.Is(err, ErrSlugTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	return org, nil
}

// GetOrganization returns the principal's organization
func (s *Service) GetOrganization(ctx context.Context, p authz.Principal) (*Organization, error) {
	if err := p.Require(authz.RequireAll(authz.PermViewDashboard)); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, p.Scope)
}

// ListOrganizations returns the organizations where userID is an active member
func (s *Service) ListOrganizations(ctx context.Context, userID string) ([]*Organization, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	return s.repo.ListForUser(ctx, userID)
}

// UpdateOrganization renames the principal's organization
func (s *Service) UpdateOrganization(ctx context.Context, p authz.Principal, name string) (*Organization, error) {
	if err := p.Require(authz.RequireAll(authz.PermManageOrganization)); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	org, err := s.repo.GetByID(ctx, p.Scope)
	if err != nil {
		return nil, err
	}
	previous := org.Name
	org.Name = name
	org.UpdatedAt = s.now()

	err = s.repo.Update(ctx, p.Scope, org)
	s.emit(ctx, p, audit.ActionOrganizationUpdated, "organization", org.ID, err,
		map[string]any{"previous_name": previous, "name": name})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// DeleteOrganization soft-disables the principal's organization. Only the
// owner role holds the permission.
func (s *Service) DeleteOrganization(ctx context.Context, p authz.Principal) error {
	if err := p.Require(authz.RequireAll(authz.PermDeleteOrganization)); err != nil {
		s.emit(ctx, p, audit.ActionOrganizationDisabled, "organization", p.Scope.OrgID(), err, nil)
		return err
	}

	org, err := s.repo.GetByID(ctx, p.Scope)
	if err != nil {
		return err
	}
	org.Status = StatusDisabled
	org.UpdatedAt = s.now()

	err = s.repo.Update(ctx, p.Scope, org)
	s.emit(ctx, p, audit.ActionOrganizationDisabled, "organization", org.ID, err, nil)
	return err
}

// ListMembers lists all memberships of the principal's organization
func (s *Service) ListMembers(ctx context.Context, p authz.Principal) ([]*Member, error) {
	if err := p.Require(authz.RequireAll(authz.PermViewDashboard)); err != nil {
		return nil, err
	}
	return s.members.ListMembers(ctx, p.Scope)
}

// InviteMember adds userID to the principal's organization with a pending
// invitation. Only an owner can grant the owner role.
func (s *Service) InviteMember(ctx context.Context, p authz.Principal, userID, email string, role authz.Role) (*Member, error) {
	if err := p.Require(authz.RequireAll(authz.PermManageTeamMembers)); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrInvalidUser
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if role == authz.RoleOwner && p.Role != authz.RoleOwner {
		return nil, authz.ErrAccessDenied
	}

	now := s.now()
	m := &Member{
		OrgID:     p.Scope.OrgID(),
		UserID:    userID,
		Email:     email,
		Role:      role,
		Status:    MemberInvited,
		InvitedBy: p.UserID,
		InvitedAt: now,
		UpdatedAt: now,
	}

	err := s.members.AddMember(ctx, p.Scope, m)
	s.emit(ctx, p, audit.ActionMemberInvited, "member", userID, err, map[string]any{"role": role.String()})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AcceptInvitation activates a pending membership of userID.
func (s *Service) AcceptInvitation(ctx context.Context, scope authz.Scope, userID string) (*Member, error) {
	m, err := s.members.ModifyMember(ctx, scope, userID, func(m *Member, _ authz.AdminStats) error {
		if m.Status != MemberInvited {
			return ErrNotInvited
		}
		now := s.now()
		m.Status = MemberActive
		m.JoinedAt = &now
		m.UpdatedAt = now
		return nil
	})

	s.audit.Emit(ctx, audit.Entry{
		OrgID:        scope.OrgID(),
		ActorID:      userID,
		Action:       audit.ActionMemberJoined,
		ResourceType: "member",
		ResourceID:   userID,
		Outcome:      audit.OutcomeOf(err),
	})
	return m, err
}

// ChangeRole assigns a new role to an existing member. Changes that touch
// the owner role require an owner, and the organization always keeps an
// active owner and administrator.
func (s *Service) ChangeRole(ctx context.Context, p authz.Principal, userID string, role authz.Role) (*Member, error) {
	if err := p.Require(authz.RequireAll(authz.PermManageTeamMembers)); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	var previous authz.Role
	m, err := s.members.ModifyMember(ctx, p.Scope, userID, func(m *Member, stats authz.AdminStats) error {
		if m.Status == MemberRemoved {
			return ErrMemberNotFound
		}
		if (m.Role == authz.RoleOwner || role == authz.RoleOwner) && p.Role != authz.RoleOwner {
			return authz.ErrAccessDenied
		}
		if err := authz.CheckMembershipChange(p.UserID, m.State(), authz.ChangeRole, role, stats); err != nil {
			return err
		}
		previous = m.Role
		m.Role = role
		m.UpdatedAt = s.now()
		return nil
	})

	s.emit(ctx, p, audit.ActionMemberRoleChanged, "member", userID, err,
		map[string]any{"role": role.String(), "previous_role": previous.String()})
	return m, err
}

// DisableMember suspends a membership without removing it.
func (s *Service) DisableMember(ctx context.Context, p authz.Principal, userID string) (*Member, error) {
	return s.deactivate(ctx, p, userID, authz.ChangeDisable)
}

// RemoveMember marks a membership removed. The row is kept for audit
// continuity.
func (s *Service) RemoveMember(ctx context.Context, p authz.Principal, userID string) (*Member, error) {
	return s.deactivate(ctx, p, userID, authz.ChangeRemove)
}

func (s *Service) deactivate(ctx context.Context, p authz.Principal, userID string, change authz.MembershipChange) (*Member, error) {
	action, status := audit.ActionMemberDisabled, MemberDisabled
	if change == authz.ChangeRemove {
		action, status = audit.ActionMemberRemoved, MemberRemoved
	}

	if err := p.Require(authz.RequireAll(authz.PermManageTeamMembers)); err != nil {
		s.emit(ctx, p, action, "member", userID, err, nil)
		return nil, err
	}

	m, err := s.members.ModifyMember(ctx, p.Scope, userID, func(m *Member, stats authz.AdminStats) error {
		if m.Status == MemberRemoved {
			return ErrMemberNotFound
		}
		if m.Role == authz.RoleOwner && p.Role != authz.RoleOwner {
			return authz.ErrAccessDenied
		}
		if err := authz.CheckMembershipChange(p.UserID, m.State(), change, authz.RoleUnknown, stats); err != nil {
			return err
		}
		m.Status = status
		m.UpdatedAt = s.now()
		return nil
	})

	s.emit(ctx, p, action, "member", userID, err, nil)
	return m, err
}

// ResolveRole returns the role of an active member of an active
// organization. Any other state resolves to ErrNotMember.
func (s *Service) ResolveRole(ctx context.Context, scope authz.Scope, userID string) (authz.Role, error) {
	m, err := s.members.GetMember(ctx, scope, userID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return authz.RoleUnknown, ErrNotMember
		}
		return authz.RoleUnknown, err
	}
	if !m.IsActive() || !m.Role.Valid() {
		return authz.RoleUnknown, ErrNotMember
	}

	org, err := s.repo.GetByID(ctx, scope)
	if err != nil {
		if errors.Is(err, ErrOrganizationNotFound) {
			return authz.RoleUnknown, ErrNotMember
		}
		return authz.RoleUnknown, err
	}
	if org.Status != StatusActive {
		return authz.RoleUnknown, ErrNotMember
	}

	return m.Role, nil
}

func (s *Service) emit(ctx context.Context, p authz.Principal, action, resourceType, resourceID string, err error, details map[string]any) {
	if err != nil {
		if details == nil {
			details = map[string]any{}
		}
		details["error"] = authz.MessageOf(err)
	}
	s.audit.Emit(ctx, audit.Entry{
		OrgID:        p.Scope.OrgID(),
		ActorID:      p.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      audit.OutcomeOf(err),
		Details:      details,
	})
}
