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
	"github.com/cybervault/cybervault/internal/tenant"
)

type orgRepo struct{ s *Store }

func (r orgRepo) Create(_ context.Context, org *tenant.Organization, owner *tenant.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, o := range r.s.orgs {
		if o.Slug == org.Slug {
			return tenant.ErrSlugTaken
		}
	}
	o := *org
	m := *owner
	r.s.orgs[o.ID] = &o
	r.s.members[memberKey{o.ID, m.UserID}] = &m
	return nil
}

func (r orgRepo) GetByID(_ context.Context, scope authz.Scope) (*tenant.Organization, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	o, ok := r.s.orgs[scope.OrgID()]
	if !ok {
		return nil, tenant.ErrOrganizationNotFound
	}
	out := *o
	return &out, nil
}

func (r orgRepo) GetBySlug(_ context.Context, slug string) (*tenant.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, o := range r.s.orgs {
		if o.Slug == slug {
			out := *o
			return &out, nil
		}
	}
	return nil, tenant.ErrOrganizationNotFound
}

func (r orgRepo) Update(_ context.Context, scope authz.Scope, org *tenant.Organization) error {
	if !scope.Valid() {
		return authz.ErrMissingOrganization
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if org.ID != scope.OrgID() {
		return tenant.ErrOrganizationNotFound
	}
	if _, ok := r.s.orgs[org.ID]; !ok {
		return tenant.ErrOrganizationNotFound
	}
	o := *org
	r.s.orgs[o.ID] = &o
	return nil
}

func (r orgRepo) ListForUser(_ context.Context, userID string) ([]*tenant.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*tenant.Organization
	for key, m := range r.s.members {
		if key.userID != userID || !m.IsActive() {
			continue
		}
		o, ok := r.s.orgs[key.orgID]
		if !ok || o.Status != tenant.StatusActive {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memberRepo struct{ s *Store }

func (r memberRepo) GetMember(_ context.Context, scope authz.Scope, userID string) (*tenant.Member, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.members[memberKey{scope.OrgID(), userID}]
	if !ok {
		return nil, tenant.ErrMemberNotFound
	}
	out := *m
	return &out, nil
}

func (r memberRepo) ListMembers(_ context.Context, scope authz.Scope) ([]*tenant.Member, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*tenant.Member
	for key, m := range r.s.members {
		if key.orgID == scope.OrgID() {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvitedAt.Before(out[j].InvitedAt) })
	return out, nil
}

func (r memberRepo) AddMember(_ context.Context, scope authz.Scope, m *tenant.Member) error {
	if !scope.Valid() {
		return authz.ErrMissingOrganization
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.orgs[scope.OrgID()]; !ok {
		return tenant.ErrOrganizationNotFound
	}
	key := memberKey{scope.OrgID(), m.UserID}
	if cur, ok := r.s.members[key]; ok && cur.Status != tenant.MemberRemoved {
		return tenant.ErrMemberExists
	}
	cp := *m
	cp.OrgID = scope.OrgID()
	r.s.members[key] = &cp
	return nil
}

func (r memberRepo) ModifyMember(_ context.Context, scope authz.Scope, userID string, fn tenant.MemberMutation) (*tenant.Member, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{scope.OrgID(), userID}
	cur, ok := r.s.members[key]
	if !ok {
		return nil, tenant.ErrMemberNotFound
	}

	var stats authz.AdminStats
	for k, m := range r.s.members {
		if k.orgID != scope.OrgID() || !m.IsActive() {
			continue
		}
		if m.Role == authz.RoleOwner {
			stats.ActiveOwners++
		}
		if m.Role.IsAdministrative() {
			stats.ActiveAdministrators++
		}
	}

	next := *cur
	if err := fn(&next, stats); err != nil {
		return nil, err
	}
	next.OrgID = cur.OrgID
	next.UserID = cur.UserID
	r.s.members[key] = &next

	out := next
	return &out, nil
}
