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

// Package vault stores credential secrets behind opaque references. Callers
// only ever hold a Ref; the plaintext is reachable through a Provider and
// only for the organization the secret was stored under.
package vault

import (
	"context"
	"strings"
	"time"

	"github.com/cybervault/cybervault/internal/authz"
)

// Ref is an opaque reference to a stored secret: "<provider>:<id>".
type Ref string

// NewRef builds a reference for provider and id.
func NewRef(provider, id string) Ref {
	return Ref(provider + ":" + id)
}

// Split returns the provider and id parts of r.
func (r Ref) Split() (provider, id string, ok bool) {
	provider, id, ok = strings.Cut(string(r), ":")
	if !ok || provider == "" || id == "" {
		return "", "", false
	}
	return provider, id, true
}

func (r Ref) String() string {
	return string(r)
}

var (
	ErrSecretNotFound = authz.NewError(authz.KindForbidden, "secret not found")
	ErrSecretRevoked  = authz.NewError(authz.KindConflict, "secret has been revoked")
	ErrInvalidRef     = authz.NewError(authz.KindBadRequest, "invalid secret reference")
	ErrEmptySecret    = authz.NewError(authz.KindBadRequest, "secret value is required")
)

// Provider is the contract shared by every secret backend. Every operation
// is scoped by organization: a reference presented under another
// organization behaves exactly like an unknown reference.
type Provider interface {
	Name() string
	StoreSecret(ctx context.Context, orgID, name, value string, meta map[string]string) (Ref, error)
	GetSecret(ctx context.Context, orgID string, ref Ref) (string, error)
	// RotateSecret replaces the value. The returned Ref may differ from ref.
	RotateSecret(ctx context.Context, orgID string, ref Ref, newValue string) (Ref, error)
	RevokeSecret(ctx context.Context, orgID string, ref Ref) error
}

// Secret is an encrypted secret at rest.
type Secret struct {
	ID         string
	OrgID      string
	Name       string
	Ciphertext string
	Metadata   map[string]string
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	RevokedAt  *time.Time
}

// SecretRepository persists encrypted secrets for EncryptedStore.
type SecretRepository interface {
	Insert(ctx context.Context, scope authz.Scope, s *Secret) error
	Get(ctx context.Context, scope authz.Scope, id string) (*Secret, error)
	Update(ctx context.Context, scope authz.Scope, s *Secret) error
}
