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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/tenant"
)

// OrganizationRepository implements tenant.Repository
type OrganizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const orgColumns = `id, name, slug, status, created_at, updated_at`

func scanOrganization(row pgx.Row) (*tenant.Organization, error) {
	var o tenant.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// Create stores the organization and its first owner in one transaction
func (r *OrganizationRepository) Create(ctx context.Context, org *tenant.Organization, owner *tenant.Member) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO organizations (id, name, slug, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, org.ID, org.Name, org.Slug, org.Status, org.CreatedAt, org.UpdatedAt)
		if err != nil {
			if pgCode(err) == codeUniqueViolation {
				return tenant.ErrSlugTaken
			}
			return fmt.Errorf("failed to insert organization: %w", err)
		}

		if err := insertMember(ctx, tx, org.ID, owner); err != nil {
			return fmt.Errorf("failed to insert owner: %w", err)
		}
		return nil
	})
}

// GetByID returns the organization of scope
func (r *OrganizationRepository) GetByID(ctx context.Context, scope authz.Scope) (*tenant.Organization, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	o, err := scanOrganization(r.db.pool.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, org))
	if err != nil {
		if isNoRows(err) {
			return nil, tenant.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return o, nil
}

// GetBySlug looks an organization up by slug. It is only used before a
// scope exists, to check slug availability and during bootstrap.
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Organization, error) {
	o, err := scanOrganization(r.db.pool.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug))
	if err != nil {
		if isNoRows(err) {
			return nil, tenant.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return o, nil
}

// Update stores name and status changes
func (r *OrganizationRepository) Update(ctx context.Context, scope authz.Scope, o *tenant.Organization) error {
	org, err := orgID(scope)
	if err != nil {
		return err
	}
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE organizations SET name = $2, status = $3, updated_at = $4
		WHERE id = $1 AND id = $5
	`, org, o.Name, o.Status, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrOrganizationNotFound
	}
	return nil
}

// ListForUser returns active organizations where userID is an active member
func (r *OrganizationRepository) ListForUser(ctx context.Context, userID string) ([]*tenant.Organization, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT o.id, o.name, o.slug, o.status, o.created_at, o.updated_at
		FROM organizations o
		JOIN organization_members m ON m.org_id = o.id
		WHERE m.user_id = $1 AND m.status = 'active' AND o.status = 'active'
		ORDER BY o.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var out []*tenant.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MemberRepository implements tenant.MemberRepository
type MemberRepository struct {
	db *DB
}

// NewMemberRepository creates a new membership repository
func NewMemberRepository(db *DB) *MemberRepository {
	return &MemberRepository{db: db}
}

const memberColumns = `org_id, user_id, email, role, status, invited_by, invited_at, joined_at, updated_at`

func scanMember(row pgx.Row) (*tenant.Member, error) {
	var (
		m    tenant.Member
		role string
	)
	if err := row.Scan(&m.OrgID, &m.UserID, &m.Email, &role, &m.Status, &m.InvitedBy, &m.InvitedAt, &m.JoinedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Role = authz.ParseRole(role)
	return &m, nil
}

func insertMember(ctx context.Context, tx pgx.Tx, org string, m *tenant.Member) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO organization_members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, org, m.UserID, m.Email, m.Role.String(), m.Status, m.InvitedBy, m.InvitedAt, m.JoinedAt, m.UpdatedAt)
	return err
}

// GetMember returns the membership of userID in scope
func (r *MemberRepository) GetMember(ctx context.Context, scope authz.Scope, userID string) (*tenant.Member, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	m, err := scanMember(r.db.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM organization_members WHERE org_id = $1 AND user_id = $2`, org, userID))
	if err != nil {
		if isNoRows(err) {
			return nil, tenant.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// ListMembers returns every membership of scope
func (r *MemberRepository) ListMembers(ctx context.Context, scope authz.Scope) ([]*tenant.Member, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM organization_members WHERE org_id = $1 ORDER BY invited_at`, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []*tenant.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMember inserts a membership or revives a removed one
func (r *MemberRepository) AddMember(ctx context.Context, scope authz.Scope, m *tenant.Member) error {
	org, err := orgID(scope)
	if err != nil {
		return err
	}
	tag, err := r.db.pool.Exec(ctx, `
		INSERT INTO organization_members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (org_id, user_id) DO UPDATE SET
			email = EXCLUDED.email, role = EXCLUDED.role, status = EXCLUDED.status,
			invited_by = EXCLUDED.invited_by, invited_at = EXCLUDED.invited_at,
			joined_at = EXCLUDED.joined_at, updated_at = EXCLUDED.updated_at
		WHERE organization_members.status = 'removed'
	`, org, m.UserID, m.Email, m.Role.String(), m.Status, m.InvitedBy, m.InvitedAt, m.JoinedAt, m.UpdatedAt)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return tenant.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrMemberExists
	}
	m.OrgID = org
	return nil
}

// ModifyMember locks the organization row, so membership changes of one
// organization are serialized, then reads the member and the administrator
// counts in the same transaction.
func (r *MemberRepository) ModifyMember(ctx context.Context, scope authz.Scope, userID string, fn tenant.MemberMutation) (*tenant.Member, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}

	var out *tenant.Member
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT id FROM organizations WHERE id = $1 FOR UPDATE`, org); err != nil {
			return fmt.Errorf("failed to lock organization: %w", err)
		}

		m, err := scanMember(tx.QueryRow(ctx,
			`SELECT `+memberColumns+` FROM organization_members WHERE org_id = $1 AND user_id = $2`, org, userID))
		if err != nil {
			if isNoRows(err) {
				return tenant.ErrMemberNotFound
			}
			return fmt.Errorf("failed to get member: %w", err)
		}

		var stats authz.AdminStats
		err = tx.QueryRow(ctx, `
			SELECT
				count(*) FILTER (WHERE role = 'owner'),
				count(*) FILTER (WHERE role IN ('owner', 'admin'))
			FROM organization_members
			WHERE org_id = $1 AND status = 'active'
		`, org).Scan(&stats.ActiveOwners, &stats.ActiveAdministrators)
		if err != nil {
			return fmt.Errorf("failed to count administrators: %w", err)
		}

		if err := fn(m, stats); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE organization_members
			SET email = $3, role = $4, status = $5, joined_at = $6, updated_at = $7
			WHERE org_id = $1 AND user_id = $2
		`, org, userID, m.Email, m.Role.String(), m.Status, m.JoinedAt, m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update member: %w", err)
		}
		m.OrgID = org
		m.UserID = userID
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
