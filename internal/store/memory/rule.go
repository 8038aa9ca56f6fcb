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
	"sort"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/rule"
)

type ruleRepo struct{ s *Store }

func (r ruleRepo) Insert(_ context.Context, scope authz.Scope, ru *rule.Rule) error {
	if !scope.Valid() {
		return authz.ErrMissingOrganization
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *ru
	cp.OrgID = scope.OrgID()
	r.s.rules[cp.ID] = &cp
	return nil
}

func (r ruleRepo) get(scope authz.Scope, id string) (*rule.Rule, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	ru, ok := r.s.rules[id]
	if !ok || ru.OrgID != scope.OrgID() {
		return nil, rule.ErrNotFound
	}
	return ru, nil
}

func (r ruleRepo) Get(_ context.Context, scope authz.Scope, id string) (*rule.Rule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ru, err := r.get(scope, id)
	if err != nil {
		return nil, err
	}
	out := *ru
	return &out, nil
}

func (r ruleRepo) List(_ context.Context, scope authz.Scope, filter rule.ListFilter) ([]*rule.Rule, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*rule.Rule{}
	for _, ru := range r.s.rules {
		if ru.OrgID == scope.OrgID() && filter.Match(ru) {
			cp := *ru
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r ruleRepo) Modify(_ context.Context, scope authz.Scope, id, actorID string, fn rule.Mutation) (*rule.Rule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, err := r.get(scope, id)
	if err != nil {
		return nil, err
	}

	next := *cur
	if err := fn(&next); err != nil {
		return nil, err
	}

	r.s.ruleVersions[id] = append(r.s.ruleVersions[id], &rule.Version{
		RuleID:    cur.ID,
		OrgID:     cur.OrgID,
		Version:   cur.Version,
		Content:   cur.Content,
		Deleted:   cur.Deleted,
		ChangedBy: actorID,
		CreatedAt: r.s.now(),
	})

	next.ID = cur.ID
	next.OrgID = cur.OrgID
	next.CreatedAt = cur.CreatedAt
	next.CreatedBy = cur.CreatedBy
	next.Version = cur.Version + 1
	r.s.rules[id] = &next

	out := next
	return &out, nil
}

func (r ruleRepo) ListVersions(_ context.Context, scope authz.Scope, ruleID string) ([]*rule.Version, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if _, err := r.get(scope, ruleID); err != nil {
		return nil, err
	}
	out := make([]*rule.Version, 0, len(r.s.ruleVersions[ruleID]))
	for _, v := range r.s.ruleVersions[ruleID] {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (r ruleRepo) GetVersion(_ context.Context, scope authz.Scope, ruleID string, version int) (*rule.Version, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if _, err := r.get(scope, ruleID); err != nil {
		return nil, err
	}
	for _, v := range r.s.ruleVersions[ruleID] {
		if v.Version == version {
			cp := *v
			return &cp, nil
		}
	}
	return nil, rule.ErrVersionNotFound
}
