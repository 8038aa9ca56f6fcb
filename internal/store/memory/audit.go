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

package memory

import (
	"context"
	"maps"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
)

type auditRepo struct{ s *Store }

func cloneEntry(e *audit.Entry) *audit.Entry {
	cp := *e
	cp.Details = maps.Clone(e.Details)
	return &cp
}

func (r auditRepo) Append(_ context.Context, scope authz.Scope, e *audit.Entry) error {
	if !scope.Valid() {
		return authz.ErrMissingOrganization
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	chain := r.s.auditLogs[scope.OrgID()]
	prev := ""
	if len(chain) > 0 {
		prev = chain[len(chain)-1].Hash
	}

	e.OrgID = scope.OrgID()
	if err := audit.Seal(prev, e); err != nil {
		return err
	}
	r.s.auditLogs[scope.OrgID()] = append(chain, cloneEntry(e))
	return nil
}

func (r auditRepo) Get(_ context.Context, scope authz.Scope, id string) (*audit.Entry, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, e := range r.s.auditLogs[scope.OrgID()] {
		if e.ID == id {
			return cloneEntry(e), nil
		}
	}
	return nil, audit.ErrEntryNotFound
}

func (r auditRepo) List(_ context.Context, scope authz.Scope, filter audit.Filter) ([]*audit.Entry, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	filter = filter.Normalize()

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	chain := r.s.auditLogs[scope.OrgID()]
	out := []*audit.Entry{}
	for i := range chain {
		e := chain[i]
		if !filter.Ascending {
			e = chain[len(chain)-1-i]
		}
		if filter.Match(e) {
			out = append(out, cloneEntry(e))
		}
	}
	return page(out, filter.Offset, filter.Limit), nil
}

func (r auditRepo) Update(context.Context, authz.Scope, *audit.Entry) error {
	return audit.ErrImmutable
}

func (r auditRepo) Delete(context.Context, authz.Scope, string) error {
	return audit.ErrImmutable
}
