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

// Package credential manages organization credentials. The secret value
// lives in a vault provider; a Credential only carries its opaque reference.
package credential

import (
	"context"
	"time"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/vault"
)

// Type is the kind of secret a credential holds
type Type string

const (
	TypeAPIKey       Type = "api_key"
	TypeClientSecret Type = "client_secret"
	TypePassword     Type = "password"
	TypeCertificate  Type = "certificate"
	TypeToken        Type = "token"
)

// Status of a credential
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Credential is a named secret scoped to an organization. There is no
// plaintext field: the value is only reachable through the vault.
type Credential struct {
	ID        string            `json:"id"`
	OrgID     string            `json:"org_id"`
	Name      string            `json:"name"`
	Type      Type              `json:"type"`
	SecretRef vault.Ref         `json:"secret_ref"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Status    Status            `json:"status"`
	CreatedBy string            `json:"created_by"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	RotatedAt *time.Time        `json:"rotated_at,omitempty"`
}

var (
	ErrNotFound  = authz.NewError(authz.KindForbidden, "credential not found")
	ErrNameTaken = authz.NewError(authz.KindConflict, "a credential with this name already exists")
	ErrRevoked   = authz.NewError(authz.KindConflict, "credential has been revoked")
)

// Repository persists credential rows. Names are unique among the active
// credentials of one organization.
type Repository interface {
	Insert(ctx context.Context, scope authz.Scope, c *Credential) error
	Get(ctx context.Context, scope authz.Scope, id string) (*Credential, error)
	List(ctx context.Context, scope authz.Scope) ([]*Credential, error)
	Update(ctx context.Context, scope authz.Scope, c *Credential) error
}
