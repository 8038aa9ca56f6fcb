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
	"github.com/cybervault/cybervault/internal/credential"
	"github.com/cybervault/cybervault/internal/vault"
)

type credentialRepo struct{ s *Store }

func (r credentialRepo) Insert(_ context.Context, scope authz.Scope, c *credential.Credential) error {
	if !scope.Valid() {
		return authz.ErrMissingOrganization
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, cur := range r.s.credentials {
		if cur.OrgID == scope.OrgID() && cur.Name == c.Name && cur.Status == credential.StatusActive {
			return credential.ErrNameTaken
		}
	}
	cp := *c
	cp.OrgID = scope.OrgID()
	r.s.credentials[cp.ID] = &cp
	return nil
}

func (r credentialRepo) Get(_ context.Context, scope authz.Scope, id string) (*credential.Credential, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.credentials[id]
	if !ok || c.OrgID != scope.OrgID() {
		return nil, credential.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r credentialRepo) List(_ context.Context, scope authz.Scope) ([]*credential.Credential, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*credential.Credential{}
	for _, c := range r.s.credentials {
		if c.OrgID == scope.OrgID() {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r credentialRepo) Update(_ context.Context, scope authz.Scope, c *credential.Credential) error {
	if !scope.Valid() {
		return authz.ErrMissingOrganization
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.credentials[c.ID]
	if !ok || cur.OrgID != scope.OrgID() {
		return credential.ErrNotFound
	}
	cp := *c
	cp.OrgID = cur.OrgID
	r.s.credentials[cp.ID] = &cp
	return nil
}

type secretRepo struct{ s *Store }

func (r secretRepo) Insert(_ context.Context, scope authz.Scope, sec *vault.Secret) error {
	if !scope.Valid() {
		return authz.ErrMissingOrganization
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *sec
	cp.OrgID = scope.OrgID()
	r.s.secrets[cp.ID] = &cp
	return nil
}

func (r secretRepo) Get(_ context.Context, scope authz.Scope, id string) (*vault.Secret, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sec, ok := r.s.secrets[id]
	if !ok || sec.OrgID != scope.OrgID() {
		return nil, vault.ErrSecretNotFound
	}
	out := *sec
	return &out, nil
}

func (r secretRepo) Update(_ context.Context, scope authz.Scope, sec *vault.Secret) error {
	if !scope.Valid() {
		return authz.ErrMissingOrganization
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.secrets[sec.ID]
	if !ok || cur.OrgID != scope.OrgID() {
		return vault.ErrSecretNotFound
	}
	cp := *sec
	cp.OrgID = cur.OrgID
	r.s.secrets[cp.ID] = &cp
	return nil
}
