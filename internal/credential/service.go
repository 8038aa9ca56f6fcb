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

package credential

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/id"
	"github.com/cybervault/cybervault/internal/observability/logger"
	"github.com/cybervault/cybervault/internal/validate"
	"github.com/cybervault/cybervault/internal/vault"
)

var manage = authz.RequireAll(authz.PermManageCredentials)

// CreateInput describes a new credential
type CreateInput struct {
	Name     string            `json:"name" validate:"required,max=128"`
	Type     Type              `json:"type" validate:"required,oneof=api_key client_secret password certificate token"`
	Value    string            `json:"value" validate:"required"`
	Metadata map[string]string `json:"metadata" validate:"max=32"`
}

// Service manages credentials and their vault secrets
type Service struct {
	repo  Repository
	vault vault.Provider
	audit audit.Emitter
	now   func() time.Time
}

// NewService creates a new credential service
func NewService(repo Repository, provider vault.Provider, auditEmitter audit.Emitter) *Service {
	return &Service{
		repo:  repo,
		vault: provider,
		audit: auditEmitter,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the secret in the vault, then records the credential row.
func (s *Service) Create(ctx context.Context, p authz.Principal, in CreateInput) (*Credential, error) {
	if err := p.Require(manage); err != nil {
		s.emit(ctx, p, audit.ActionCredentialCreated, "", err, map[string]any{"name": in.Name})
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	orgID := p.Scope.OrgID()
	ref, err := s.vault.StoreSecret(ctx, orgID, in.Name, in.Value, in.Metadata)
	if err != nil {
		s.emit(ctx, p, audit.ActionCredentialCreated, "", err, map[string]any{"name": in.Name})
		return nil, authz.Internal("failed to store secret", err)
	}

	now := s.now()
	c := &Credential{
		ID:        id.NewUUIDv7(),
		OrgID:     orgID,
		Name:      in.Name,
		Type:      in.Type,
		SecretRef: ref,
		Metadata:  in.Metadata,
		Status:    StatusActive,
		CreatedBy: p.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.repo.Insert(ctx, p.Scope, c)
	s.emit(ctx, p, audit.ActionCredentialCreated, c.ID, err, map[string]any{"name": c.Name, "type": string(c.Type)})
	if err != nil {
		// The row was not written, so the stored secret is unreachable.
		if rerr := s.vault.RevokeSecret(ctx, orgID, ref); rerr != nil {
			slog.WarnContext(ctx, "failed to revoke orphaned secret",
				logger.Component("credential"),
				logger.OrgID(orgID),
				logger.Error(rerr),
			)
		}
		return nil, err
	}
	return c, nil
}

// List returns the organization's credentials without secret values
func (s *Service) List(ctx context.Context, p authz.Principal) ([]*Credential, error) {
	if err := p.Require(manage); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, p.Scope)
}

// Get returns one credential without its secret value
func (s *Service) Get(ctx context.Context, p authz.Principal, credentialID string) (*Credential, error) {
	if err := p.Require(manage); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, p.Scope, credentialID)
}

// Rotate replaces the secret value of an active credential
func (s *Service) Rotate(ctx context.Context, p authz.Principal, credentialID, newValue string) (*Credential, error) {
	if err := p.Require(manage); err != nil {
		s.emit(ctx, p, audit.ActionCredentialRotated, credentialID, err, nil)
		return nil, err
	}
	if newValue == "" {
		return nil, vault.ErrEmptySecret
	}

	c, err := s.repo.Get(ctx, p.Scope, credentialID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, ErrRevoked
	}

	ref, err := s.vault.RotateSecret(ctx, c.OrgID, c.SecretRef, newValue)
	if err == nil {
		now := s.now()
		c.SecretRef = ref
		c.RotatedAt = &now
		c.UpdatedAt = now
		err = s.repo.Update(ctx, p.Scope, c)
	}
	s.emit(ctx, p, audit.ActionCredentialRotated, c.ID, err, map[string]any{"name": c.Name})
	if err != nil {
		return nil, wrapVault(err)
	}
	return c, nil
}

// Revoke revokes the vault secret and marks the credential revoked
func (s *Service) Revoke(ctx context.Context, p authz.Principal, credentialID string) error {
	if err := p.Require(manage); err != nil {
		s.emit(ctx, p, audit.ActionCredentialRevoked, credentialID, err, nil)
		return err
	}

	c, err := s.repo.Get(ctx, p.Scope, credentialID)
	if err != nil {
		return err
	}
	if c.Status == StatusRevoked {
		return nil
	}

	err = s.vault.RevokeSecret(ctx, c.OrgID, c.SecretRef)
	if err == nil {
		c.Status = StatusRevoked
		c.UpdatedAt = s.now()
		err = s.repo.Update(ctx, p.Scope, c)
	}
	s.emit(ctx, p, audit.ActionCredentialRevoked, c.ID, err, map[string]any{"name": c.Name})
	return wrapVault(err)
}

// wrapVault classifies provider failures that are not already classified.
func wrapVault(err error) error {
	if err == nil {
		return nil
	}
	var ae *authz.Error
	if errors.As(err, &ae) {
		return err
	}
	return authz.Internal("vault operation failed", err)
}

func (s *Service) emit(ctx context.Context, p authz.Principal, action, resourceID string, err error, details map[string]any) {
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
		ResourceType: "credential",
		ResourceID:   resourceID,
		Outcome:      audit.OutcomeOf(err),
		Details:      details,
	})
}
