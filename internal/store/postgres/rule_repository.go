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
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/rule"
)

// RuleRepository implements rule.Repository. Versions are stored in
// rule_versions as JSONB snapshots of rule.Content.
type RuleRepository struct {
	db *DB
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `id, org_id, name, description, framework, severity, conditions, event, parameters,
	active, version, deleted, created_by, updated_by, created_at, updated_at`

func scanRule(row pgx.Row) (*rule.Rule, error) {
	var (
		r        rule.Rule
		severity string
	)
	err := row.Scan(&r.ID, &r.OrgID, &r.Name, &r.Description, &r.Framework, &severity,
		&r.Conditions, &r.Event, &r.Parameters, &r.Active, &r.Version, &r.Deleted,
		&r.CreatedBy, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Severity = rule.Severity(severity)
	return &r, nil
}

// Insert stores a new rule at its initial version
func (r *RuleRepository) Insert(ctx context.Context, scope authz.Scope, ru *rule.Rule) error {
	org, err := orgID(scope)
	if err != nil {
		return err
	}
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, ru.ID, org, ru.Name, ru.Description, ru.Framework, string(ru.Severity),
		ru.Conditions, ru.Event, ru.Parameters, ru.Active, ru.Version, ru.Deleted,
		ru.CreatedBy, ru.UpdatedBy, ru.CreatedAt, ru.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	ru.OrgID = org
	return nil
}

// Get returns one rule of scope, deleted or not
func (r *RuleRepository) Get(ctx context.Context, scope authz.Scope, id string) (*rule.Rule, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, r.db.pool, org, id, false)
}

func (r *RuleRepository) get(ctx context.Context, q querier, org, id string, lock bool) (*rule.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE org_id = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	ru, err := scanRule(q.QueryRow(ctx, query, org, id))
	if err != nil {
		if isNoRows(err) {
			return nil, rule.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return ru, nil
}

// List returns rules of scope matching filter, oldest first
func (r *RuleRepository) List(ctx context.Context, scope authz.Scope, filter rule.ListFilter) ([]*rule.Rule, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}

	where := []string{"org_id = $1"}
	args := []any{org}
	if !filter.IncludeDeleted {
		where = append(where, "NOT deleted")
	}
	if filter.ActiveOnly {
		where = append(where, "active AND NOT deleted")
	}
	if filter.Framework != "" {
		args = append(args, filter.Framework)
		where = append(where, fmt.Sprintf("framework = $%d", len(args)))
	}

	rows, err := r.db.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	out := []*rule.Rule{}
	for rows.Next() {
		ru, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, ru)
	}
	return out, rows.Err()
}

// Modify locks the rule row, snapshots it into rule_versions, applies fn
// and writes the result at version+1 in one transaction.
func (r *RuleRepository) Modify(ctx context.Context, scope authz.Scope, id, actorID string, fn rule.Mutation) (*rule.Rule, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}

	var out *rule.Rule
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := r.get(ctx, tx, org, id, true)
		if err != nil {
			return err
		}

		next := *cur
		if err := fn(&next); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO rule_versions (rule_id, org_id, version, content, deleted, changed_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`, cur.ID, org, cur.Version, cur.Content, cur.Deleted, actorID)
		if err != nil {
			return fmt.Errorf("failed to snapshot rule: %w", err)
		}

		next.ID = cur.ID
		next.OrgID = cur.OrgID
		next.CreatedAt = cur.CreatedAt
		next.CreatedBy = cur.CreatedBy
		next.Version = cur.Version + 1

		_, err = tx.Exec(ctx, `
			UPDATE rules
			SET name = $3, description = $4, framework = $5, severity = $6, conditions = $7,
				event = $8, parameters = $9, active = $10, version = $11, deleted = $12,
				updated_by = $13, updated_at = $14
			WHERE org_id = $1 AND id = $2
		`, org, id, next.Name, next.Description, next.Framework, string(next.Severity), next.Conditions,
			next.Event, next.Parameters, next.Active, next.Version, next.Deleted, next.UpdatedBy, next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update rule: %w", err)
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const versionColumns = `rule_id, org_id, version, content, deleted, changed_by, created_at`

func scanVersion(row pgx.Row) (*rule.Version, error) {
	var v rule.Version
	if err := row.Scan(&v.RuleID, &v.OrgID, &v.Version, &v.Content, &v.Deleted, &v.ChangedBy, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVersions returns the snapshots of a rule, oldest first
func (r *RuleRepository) ListVersions(ctx context.Context, scope authz.Scope, ruleID string) ([]*rule.Version, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	if _, err := r.get(ctx, r.db.pool, org, ruleID, false); err != nil {
		return nil, err
	}

	rows, err := r.db.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM rule_versions WHERE org_id = $1 AND rule_id = $2 ORDER BY version`, org, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule versions: %w", err)
	}
	defer rows.Close()

	out := []*rule.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersion returns one snapshot of a rule
func (r *RuleRepository) GetVersion(ctx context.Context, scope authz.Scope, ruleID string, version int) (*rule.Version, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	if _, err := r.get(ctx, r.db.pool, org, ruleID, false); err != nil {
		return nil, err
	}

	v, err := scanVersion(r.db.pool.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM rule_versions WHERE org_id = $1 AND rule_id = $2 AND version = $3`,
		org, ruleID, version))
	if err != nil {
		if isNoRows(err) {
			return nil, rule.ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to get rule version: %w", err)
	}
	return v, nil
}
