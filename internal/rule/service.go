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

package rule

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/id"
	"github.com/cybervault/cybervault/internal/validate"
)

var (
	viewRules   = authz.RequireAll(authz.PermViewRules)
	manageRules = authz.RequireAll(authz.PermManageRules)
)

// Service manages rules and their version history
type Service struct {
	repo  Repository
	audit audit.Emitter
	now   func() time.Time
}

// NewService creates a new rule service
func NewService(repo Repository, auditEmitter audit.Emitter) *Service {
	return &Service{
		repo:  repo,
		audit: auditEmitter,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func checkContent(c *Content) error {
	c.Name = strings.TrimSpace(c.Name)
	if err := validate.Struct(c); err != nil {
		return err
	}
	_, err := Compile(c.Conditions)
	return err
}

// Create stores a new rule at version 1
func (s *Service) Create(ctx context.Context, p authz.Principal, content Content) (*Rule, error) {
	if err := p.Require(manageRules); err != nil {
		s.emit(ctx, p, audit.ActionRuleCreated, "", err, map[string]any{"name": content.Name})
		return nil, err
	}
	if err := checkContent(&content); err != nil {
		return nil, err
	}

	now := s.now()
	r := &Rule{
		ID:        id.NewUUIDv7(),
		OrgID:     p.Scope.OrgID(),
		Content:   content,
		Version:   1,
		CreatedBy: p.UserID,
		UpdatedBy: p.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.repo.Insert(ctx, p.Scope, r)
	s.emit(ctx, p, audit.ActionRuleCreated, r.ID, err, map[string]any{"name": r.Name, "version": r.Version})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns a rule, including a deleted one
func (s *Service) Get(ctx context.Context, p authz.Principal, ruleID string) (*Rule, error) {
	if err := p.Require(viewRules); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, p.Scope, ruleID)
}

// List returns the organization's rules
func (s *Service) List(ctx context.Context, p authz.Principal, filter ListFilter) ([]*Rule, error) {
	if err := p.Require(viewRules); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, p.Scope, filter)
}

// Update replaces the content of a live rule
func (s *Service) Update(ctx context.Context, p authz.Principal, ruleID string, content Content) (*Rule, error) {
	if err := p.Require(manageRules); err != nil {
		s.emit(ctx, p, audit.ActionRuleUpdated, ruleID, err, nil)
		return nil, err
	}
	if err := checkContent(&content); err != nil {
		return nil, err
	}

	r, err := s.repo.Modify(ctx, p.Scope, ruleID, p.UserID, func(r *Rule) error {
		if r.Deleted {
			return ErrDeleted
		}
		r.Content = content
		r.UpdatedBy = p.UserID
		r.UpdatedAt = s.now()
		return nil
	})
	s.emit(ctx, p, audit.ActionRuleUpdated, ruleID, err, versionDetails(r))
	return r, err
}

// Delete marks a rule deleted. The prior state stays restorable.
func (s *Service) Delete(ctx context.Context, p authz.Principal, ruleID string) (*Rule, error) {
	if err := p.Require(manageRules); err != nil {
		s.emit(ctx, p, audit.ActionRuleDeleted, ruleID, err, nil)
		return nil, err
	}

	r, err := s.repo.Modify(ctx, p.Scope, ruleID, p.UserID, func(r *Rule) error {
		if r.Deleted {
			return ErrDeleted
		}
		r.Deleted = true
		r.UpdatedBy = p.UserID
		r.UpdatedAt = s.now()
		return nil
	})
	s.emit(ctx, p, audit.ActionRuleDeleted, ruleID, err, versionDetails(r))
	return r, err
}

// Versions returns the snapshots of earlier versions, oldest first
func (s *Service) Versions(ctx context.Context, p authz.Principal, ruleID string) ([]*Version, error) {
	if err := p.Require(viewRules); err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, p.Scope, ruleID); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, p.Scope, ruleID)
}

// Restore applies the content of an earlier version as a new version. A
// deleted rule is undeleted. Version numbers are never reused.
func (s *Service) Restore(ctx context.Context, p authz.Principal, ruleID string, version int) (*Rule, error) {
	if err := p.Require(manageRules); err != nil {
		s.emit(ctx, p, audit.ActionRuleRestored, ruleID, err, nil)
		return nil, err
	}

	current, err := s.repo.Get(ctx, p.Scope, ruleID)
	if err != nil {
		return nil, err
	}

	var content Content
	switch {
	case version == current.Version:
		content = current.Content
	case version >= 1 && version < current.Version:
		snap, err := s.repo.GetVersion(ctx, p.Scope, ruleID, version)
		if err != nil {
			return nil, err
		}
		content = snap.Content
	default:
		return nil, ErrVersionNotFound
	}

	r, err := s.repo.Modify(ctx, p.Scope, ruleID, p.UserID, func(r *Rule) error {
		r.Content = content
		r.Deleted = false
		r.UpdatedBy = p.UserID
		r.UpdatedAt = s.now()
		return nil
	})
	details := versionDetails(r)
	details["restored_from"] = strconv.Itoa(version)
	s.emit(ctx, p, audit.ActionRuleRestored, ruleID, err, details)
	return r, err
}

// Evaluate runs a rule's conditions against facts without side effects
func (s *Service) Evaluate(ctx context.Context, p authz.Principal, ruleID string, facts map[string]any) (bool, error) {
	if err := p.Require(viewRules); err != nil {
		return false, err
	}
	r, err := s.repo.Get(ctx, p.Scope, ruleID)
	if err != nil {
		return false, err
	}
	ev, err := Compile(r.Conditions)
	if err != nil {
		return false, err
	}
	return ev.Match(facts)
}

func versionDetails(r *Rule) map[string]any {
	if r == nil {
		return map[string]any{}
	}
	return map[string]any{"version": r.Version, "name": r.Name}
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
		ResourceType: "rule",
		ResourceID:   resourceID,
		Outcome:      audit.OutcomeOf(err),
		Details:      details,
	})
}
