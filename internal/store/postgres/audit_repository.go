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

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
)

// AuditRepository implements audit.Repository on the append-only
// audit_logs table. Entries of one organization form a hash chain in seq
// order.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `id, org_id, actor_id, action, resource_type, resource_id, outcome, details,
	ip_address, user_agent, timestamp, prev_hash, hash`

func scanEntry(row pgx.Row) (*audit.Entry, error) {
	var (
		e       audit.Entry
		outcome string
	)
	err := row.Scan(&e.ID, &e.OrgID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID, &outcome,
		&e.Details, &e.IPAddress, &e.UserAgent, &e.Timestamp, &e.PrevHash, &e.Hash)
	if err != nil {
		return nil, err
	}
	e.Outcome = audit.Outcome(outcome)
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}

// Append serializes writers of one organization with a transaction-scoped
// advisory lock, links e to the latest entry and inserts it.
func (r *AuditRepository) Append(ctx context.Context, scope authz.Scope, e *audit.Entry) error {
	org, err := orgID(scope)
	if err != nil {
		return err
	}

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, org); err != nil {
			return fmt.Errorf("failed to lock audit chain: %w", err)
		}

		var prev string
		err := tx.QueryRow(ctx,
			`SELECT hash FROM audit_logs WHERE org_id = $1 ORDER BY seq DESC LIMIT 1`, org).Scan(&prev)
		if err != nil && !isNoRows(err) {
			return fmt.Errorf("failed to read audit chain head: %w", err)
		}

		e.OrgID = org
		if err := audit.Seal(prev, e); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO audit_logs (`+auditColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, e.ID, org, e.ActorID, e.Action, e.ResourceType, e.ResourceID, string(e.Outcome), e.Details,
			e.IPAddress, e.UserAgent, e.Timestamp, e.PrevHash, e.Hash)
		if err != nil {
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
		return nil
	})
}

// Get returns one entry of scope
func (r *AuditRepository) Get(ctx context.Context, scope authz.Scope, id string) (*audit.Entry, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	e, err := scanEntry(r.db.pool.QueryRow(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE org_id = $1 AND id = $2`, org, id))
	if err != nil {
		if isNoRows(err) {
			return nil, audit.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return e, nil
}

// List returns entries of scope matching filter in seq order
func (r *AuditRepository) List(ctx context.Context, scope authz.Scope, filter audit.Filter) ([]*audit.Entry, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	where := []string{"org_id = $1"}
	args := []any{org}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", filter.ResourceType)
	}
	if filter.Outcome != "" {
		add("outcome = $%d", string(filter.Outcome))
	}
	if filter.From != nil {
		add("timestamp >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("timestamp <= $%d", *filter.To)
	}

	order := "DESC"
	if filter.Ascending {
		order = "ASC"
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE %s ORDER BY seq %s LIMIT $%d OFFSET $%d`,
		auditColumns, strings.Join(where, " AND "), order, len(args)-1, len(args))

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	out := []*audit.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Update always fails; audit entries are immutable.
func (r *AuditRepository) Update(context.Context, authz.Scope, *audit.Entry) error {
	return audit.ErrImmutable
}

// Delete always fails; audit entries are immutable.
func (r *AuditRepository) Delete(context.Context, authz.Scope, string) error {
	return audit.ErrImmutable
}
