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

package postgres

import (
	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/credential"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/store"
	"github.com/cybervault/cybervault/internal/tenant"
	"github.com/cybervault/cybervault/internal/vault"
)

// Store hands out the PostgreSQL repositories over one pool.
type Store struct {
	db *DB
}

// NewStore creates a store on db
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Organizations() tenant.Repository { return NewOrganizationRepository(s.db) }
func (s *Store) Members() tenant.MemberRepository { return NewMemberRepository(s.db) }
func (s *Store) Credentials() credential.Repository { return NewCredentialRepository(s.db) }
func (s *Store) Secrets() vault.SecretRepository { return NewSecretRepository(s.db) }
func (s *Store) Rules() rule.Repository { return NewRuleRepository(s.db) }
func (s *Store) Scans() store.ScanRepository { return NewScanRepository(s.db) }
func (s *Store) AuditLogs() audit.Repository { return NewAuditRepository(s.db) }
