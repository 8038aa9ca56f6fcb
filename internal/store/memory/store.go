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

// Package memory implements every repository in process. It honors the
// same organization-scoping contract as the Postgres store and backs the
// tests and the dev server.
package memory

import (
	"sync"
	"time"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/credential"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/scan"
	"github.com/cybervault/cybervault/internal/store"
	"github.com/cybervault/cybervault/internal/tenant"
	"github.com/cybervault/cybervault/internal/vault"
)

// Store holds all entities behind a single lock.
type Store struct {
	mu sync.RWMutex

	orgs         map[string]*tenant.Organization
	members      map[memberKey]*tenant.Member
	credentials  map[string]*credential.Credential
	secrets      map[string]*vault.Secret
	rules        map[string]*rule.Rule
	ruleVersions map[string][]*rule.Version
	scans        map[string]*scan.Scan
	results      map[string][]*scan.Result
	auditLogs    map[string][]*audit.Entry

	now func() time.Time
}

type memberKey struct {
	orgID  string
	userID string
}

// New creates an empty store
func New() *Store {
	return &Store{
		orgs:         make(map[string]*tenant.Organization),
		members:      make(map[memberKey]*tenant.Member),
		credentials:  make(map[string]*credential.Credential),
		secrets:      make(map[string]*vault.Secret),
		rules:        make(map[string]*rule.Rule),
		ruleVersions: make(map[string][]*rule.Version),
		scans:        make(map[string]*scan.Scan),
		results:      make(map[string][]*scan.Result),
		auditLogs:    make(map[string][]*audit.Entry),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Organizations returns the organization repository
func (s *Store) Organizations() tenant.Repository { return orgRepo{s} }

// Members returns the membership repository
func (s *Store) Members() tenant.MemberRepository { return memberRepo{s} }

// Credentials returns the credential repository
func (s *Store) Credentials() credential.Repository { return credentialRepo{s} }

// Secrets returns the encrypted secret repository
func (s *Store) Secrets() vault.SecretRepository { return secretRepo{s} }

// Rules returns the rule repository
func (s *Store) Rules() rule.Repository { return ruleRepo{s} }

// Scans returns the scan repository
func (s *Store) Scans() store.ScanRepository { return scanRepo{s} }

// AuditLogs returns the append-only audit repository
func (s *Store) AuditLogs() audit.Repository { return auditRepo{s} }

var _ store.Store = (*Store)(nil)

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
