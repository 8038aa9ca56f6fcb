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

package audit

import (
	"context"

	"github.com/cybervault/cybervault/internal/authz"
)

// Service exposes the read side of the audit trail. Entries are only
// created through an Emitter.
type Service struct {
	repo Repository
}

// NewService creates a new audit service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns entries of the principal's organization matching filter.
func (s *Service) List(ctx context.Context, p authz.Principal, filter Filter) ([]*Entry, error) {
	if err := p.Require(authz.RequireAll(authz.PermViewAuditLogs)); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, p.Scope, filter.Normalize())
}

// VerifyResult reports the state of an organization's hash chain.
type VerifyResult struct {
	Entries  int    `json:"entries"`
	Valid    bool   `json:"valid"`
	BrokenAt string `json:"broken_at,omitempty"`
}

// Verify walks the whole chain of the principal's organization in append
// order.
func (s *Service) Verify(ctx context.Context, p authz.Principal) (*VerifyResult, error) {
	if err := p.Require(authz.RequireAll(authz.PermViewAuditLogs)); err != nil {
		return nil, err
	}

	var all []*Entry
	filter := Filter{Limit: MaxLimit, Ascending: true}
	for {
		page, err := s.repo.List(ctx, p.Scope, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += len(page)
	}

	brokenAt, err := Verify(all)
	if err != nil && brokenAt == "" {
		return nil, err
	}
	return &VerifyResult{
		Entries:  len(all),
		Valid:    err == nil,
		BrokenAt: brokenAt,
	}, nil
}
