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

// Package store defines the repository set shared by the memory and
// PostgreSQL backends.
package store

import (
	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/credential"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/scan"
	"github.com/cybervault/cybervault/internal/tenant"
	"github.com/cybervault/cybervault/internal/vault"
)

// ScanRepository combines scan storage with schedule listing.
type ScanRepository interface {
	scan.Repository
	scan.ScheduleSource
}

// Store hands out the repositories of one backend.
type Store interface {
	Organizations() tenant.Repository
	Members() tenant.MemberRepository
	Credentials() credential.Repository
	Secrets() vault.SecretRepository
	Rules() rule.Repository
	Scans() ScanRepository
	AuditLogs() audit.Repository
}
