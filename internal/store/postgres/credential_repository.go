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
	"github.com/cybervault/cybervault/internal/credential"
	"github.com/cybervault/cybervault/internal/vault"
)

// CredentialRepository implements credential.Repository
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialColumns = `id, org_id, name, type, secret_ref, metadata, status, created_by, created_at, updated_at, rotated_at`

func scanCredential(row pgx.Row) (*credential.Credential, error) {
	var (
		c               credential.Credential
		typ, ref, state string
	)
	err := row.Scan(&c.ID, &c.OrgID, &c.Name, &typ, &ref, &c.Metadata, &state,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt, &c.RotatedAt)
	if err != nil {
		return nil, err
	}
	c.Type = credential.Type(typ)
	c.SecretRef = vault.Ref(ref)
	c.Status = credential.Status(state)
	return &c, nil
}

// Insert stores a new credential
func (r *CredentialRepository) Insert(ctx context.Context, scope authz.Scope, c *credential.Credential) error {
	org, err := orgID(scope)
	if err != nil {
		return err
	}
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, org, c.Name, string(c.Type), c.SecretRef.String(), nonNilMap(c.Metadata), string(c.Status),
		c.CreatedBy, c.CreatedAt, c.UpdatedAt, c.RotatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return credential.ErrNameTaken
		}
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	c.OrgID = org
	return nil
}

// Get returns one credential of scope
func (r *CredentialRepository) Get(ctx context.Context, scope authz.Scope, id string) (*credential.Credential, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	c, err := scanCredential(r.db.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE org_id = $1 AND id = $2`, org, id))
	if err != nil {
		if isNoRows(err) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return c, nil
}

// List returns the credentials of scope ordered by name
func (r *CredentialRepository) List(ctx context.Context, scope authz.Scope) ([]*credential.Credential, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE org_id = $1 ORDER BY name, created_at`, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	out := []*credential.Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update stores status, reference and rotation changes
func (r *CredentialRepository) Update(ctx context.Context, scope authz.Scope, c *credential.Credential) error {
	org, err := orgID(scope)
	if err != nil {
		return err
	}
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE credentials
		SET secret_ref = $3, metadata = $4, status = $5, updated_at = $6, rotated_at = $7
		WHERE org_id = $1 AND id = $2
	`, org, c.ID, c.SecretRef.String(), nonNilMap(c.Metadata), string(c.Status), c.UpdatedAt, c.RotatedAt)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrNotFound
	}
	return nil
}

// SecretRepository implements vault.SecretRepository for the encrypted store
type SecretRepository struct {
	db *DB
}

// NewSecretRepository creates a new secret repository
func NewSecretRepository(db *DB) *SecretRepository {
	return &SecretRepository{db: db}
}

// Insert stores a new encrypted secret
func (r *SecretRepository) Insert(ctx context.Context, scope authz.Scope, s *vault.Secret) error {
	org, err := orgID(scope)
	if err != nil {
		return err
	}
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO vault_secrets (id, org_id, name, ciphertext, metadata, version, created_at, updated_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, org, s.Name, s.Ciphertext, nonNilMap(s.Metadata), s.Version, s.CreatedAt, s.UpdatedAt, s.RevokedAt)
	if err != nil {
		return fmt.Errorf("failed to insert secret: %w", err)
	}
	return nil
}

// Get returns one secret of scope
func (r *SecretRepository) Get(ctx context.Context, scope authz.Scope, id string) (*vault.Secret, error) {
	org, err := orgID(scope)
	if err != nil {
		return nil, err
	}
	var s vault.Secret
	err = r.db.pool.QueryRow(ctx, `
		SELECT id, org_id, name, ciphertext, metadata, version, created_at, updated_at, revoked_at
		FROM vault_secrets WHERE org_id = $1 AND id = $2
	`, org, id).Scan(&s.ID, &s.OrgID, &s.Name, &s.Ciphertext, &s.Metadata, &s.Version, &s.CreatedAt, &s.UpdatedAt, &s.RevokedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, vault.ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	return &s, nil
}

// Update stores rotation and revocation changes
func (r *SecretRepository) Update(ctx context.Context, scope authz.Scope, s *vault.Secret) error {
	org, err := orgID(scope)
	if err != nil {
		return err
	}
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE vault_secrets SET ciphertext = $3, version = $4, updated_at = $5, revoked_at = $6
		WHERE org_id = $1 AND id = $2
	`, org, s.ID, s.Ciphertext, s.Version, s.UpdatedAt, s.RevokedAt)
	if err != nil {
		return fmt.Errorf("failed to update secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vault.ErrSecretNotFound
	}
	return nil
}
