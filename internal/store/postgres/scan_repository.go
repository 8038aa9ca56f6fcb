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
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/scan"
)

// ScanRepository implements scan.Repository and scan.ScheduleSource
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new scan repository
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

const scanColumns = `id, org_id, triggered_by, name, type, priority, targets, schedule, rule_ids,
	status, progress, processed, findings_count, error_message, created_at, updated_at, started_at, completed_at`

func scanScan(row pgx.Row) (*scan.Scan, error) {
	var (
		s                     scan.Scan
		typ, priority, status string
	)
	err := row.Scan(&s.ID, &s.OrgID, &s.TriggeredBy, &s.Name, &typ, &priority, &s.Targets, &s.Schedule, &s.RuleIDs,
		&status, &s.Progress, &s.Processed, &s.FindingsCount, &s.ErrorMessage,
		&s.CreatedAt, &s.UpdatedAt, &s.StartedAt, &s.CompletedAt)
	if err != nil {
		return nil, err
	}
	s.Type = scan.Type(typ)
	s.Priority = scan.Priority(priority)
	s.Status = scan.Status(status)
	return &s, nil
}

func collectScans(rows pgx.Rows) ([]*scan.Scan, error) {
	defer rows.Close()
	out := []*scan.Scan{}
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Insert stores a new scan
func (r *ScanRepository) Insert(ctx context.Context, scope authz.Scope, s *scan.Scan) error {
	org, err := orgID(scope)
	if err != nil {
		return err
	}
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO scans (`+scanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, s.ID, org, s.TriggeredBy, s.Name, string(s.Type), string(s.Priority), nonNilSlice(s.Targets), s.Schedule,
		nonNilSlice(s.RuleIDs), string(s.Status), s.Progress, s.Processed, nonNilMap(s.FindingsCount), s.ErrorMessage,
		s.CreatedAt, s.UpdatedAt, s.StartedAt, s.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	s.OrgID = org
	return nil
}

// Get returns one scan of scope
func (r *ScanRepository) Get(ctx context.Context, scope authz.Scope, id string) (*scan.Scan, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, r.db.pool, org, id, false)
}

func (r *ScanRepository) get(ctx context.Context, q querier, org, id string, lock bool) (*scan.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE org_id = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	s, err := scanScan(q.QueryRow(ctx, query, org, id))
	if err != nil {
		if isNoRows(err) {
			return nil, scan.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return s, nil
}

// List returns scans of scope, newest first
func (r *ScanRepository) List(ctx context.Context, scope authz.Scope, filter scan.ListFilter) ([]*scan.Scan, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + scanColumns + ` FROM scans WHERE org_id = $1`
	args := []any{org}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return collectScans(rows)
}

// Modify locks the scan row, applies fn and stores the result
func (r *ScanRepository) Modify(ctx context.Context, scope authz.Scope, id string, fn scan.Mutation) (*scan.Scan, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}

	var out *scan.Scan
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := r.get(ctx, tx, org, id, true)
		if err != nil {
			return err
		}
		if err := fn(cur); err != nil {
			return err
		}
		cur.ID, cur.OrgID = id, org

		_, err = tx.Exec(ctx, `
			UPDATE scans
			SET name = $3, priority = $4, targets = $5, schedule = $6, rule_ids = $7, status = $8,
				progress = $9, processed = $10, findings_count = $11, error_message = $12,
				updated_at = $13, started_at = $14, completed_at = $15
			WHERE org_id = $1 AND id = $2
		`, org, id, cur.Name, string(cur.Priority), nonNilSlice(cur.Targets), cur.Schedule, nonNilSlice(cur.RuleIDs),
			string(cur.Status), cur.Progress, cur.Processed, nonNilMap(cur.FindingsCount), cur.ErrorMessage,
			cur.UpdatedAt, cur.StartedAt, cur.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to update scan: %w", err)
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListScheduled returns every scan with an enabled schedule across all
// organizations. Only the scheduler calls it.
func (r *ScanRepository) ListScheduled(ctx context.Context) ([]*scan.Scan, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE (schedule->>'enabled')::boolean ORDER BY org_id, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled scans: %w", err)
	}
	return collectScans(rows)
}

const resultColumns = `id, scan_id, org_id, rule_id, finding_id, title, description, severity, category, target,
	evidence, remediation, refs, frameworks, status, created_at, updated_at`

func scanResult(row pgx.Row) (*scan.Result, error) {
	var (
		res              scan.Result
		severity, status string
	)
	err := row.Scan(&res.ID, &res.ScanID, &res.OrgID, &res.RuleID, &res.FindingID, &res.Title, &res.Description,
		&severity, &res.Category, &res.Target, &res.Evidence, &res.Remediation, &res.References, &res.Frameworks,
		&status, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	res.Severity = rule.Severity(severity)
	res.Status = scan.ResultStatus(status)
	return &res, nil
}

// InsertResult stores a finding under its scan. The org_id comes from the
// scan row itself, so a result can never be attributed to another tenant.
func (r *ScanRepository) InsertResult(ctx context.Context, scope authz.Scope, res *scan.Result) error {
	org, err := orgID(scope)
	if err != nil {
		return err
	}
	tag, err := r.db.pool.Exec(ctx, `
		INSERT INTO scan_results (`+resultColumns+`)
		SELECT $1, s.id, s.org_id, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		FROM scans s WHERE s.org_id = $3 AND s.id = $2
	`, res.ID, res.ScanID, org, res.RuleID, res.FindingID, res.Title, res.Description, string(res.Severity),
		res.Category, res.Target, res.Evidence, res.Remediation, nonNilSlice(res.References),
		nonNilSlice(res.Frameworks), string(res.Status), res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scan result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scan.ErrNotFound
	}
	res.OrgID = org
	return nil
}

// ListResults returns the findings of one scan of scope
func (r *ScanRepository) ListResults(ctx context.Context, scope authz.Scope, scanID string) ([]*scan.Result, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	if _, err := r.get(ctx, r.db.pool, org, scanID, false); err != nil {
		return nil, err
	}

	rows, err := r.db.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM scan_results WHERE org_id = $1 AND scan_id = $2 ORDER BY created_at, id`,
		org, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan results: %w", err)
	}
	defer rows.Close()

	out := []*scan.Result{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ModifyResult locks one finding, applies fn and stores its triage state
func (r *ScanRepository) ModifyResult(ctx context.Context, scope authz.Scope, scanID, resultID string, fn scan.ResultMutation) (*scan.Result, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}

	var out *scan.Result
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := r.get(ctx, tx, org, scanID, false); err != nil {
			return err
		}
		cur, err := scanResult(tx.QueryRow(ctx,
			`SELECT `+resultColumns+` FROM scan_results WHERE org_id = $1 AND scan_id = $2 AND id = $3 FOR UPDATE`,
			org, scanID, resultID))
		if err != nil {
			if isNoRows(err) {
				return scan.ErrResultNotFound
			}
			return fmt.Errorf("failed to get scan result: %w", err)
		}
		if err := fn(cur); err != nil {
			return err
		}
		cur.ID, cur.ScanID, cur.OrgID = resultID, scanID, org

		_, err = tx.Exec(ctx, `
			UPDATE scan_results SET status = $4, updated_at = $5
			WHERE org_id = $1 AND scan_id = $2 AND id = $3
		`, org, scanID, resultID, string(cur.Status), cur.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update scan result: %w", err)
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
