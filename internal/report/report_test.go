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

package report_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/report"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/scan"
)

type mockAuditLister struct {
	mock.Mock
}

func (m *mockAuditLister) List(ctx context.Context, p authz.Principal, filter audit.Filter) ([]*audit.Entry, error) {
	args := m.Called(ctx, p, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Entry), args.Error(1)
}

type mockScanReader struct {
	mock.Mock
}

func (m *mockScanReader) Results(ctx context.Context, p authz.Principal, scanID string) ([]*scan.Result, error) {
	args := m.Called(ctx, p, scanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*scan.Result), args.Error(1)
}

func (m *mockScanReader) AllResults(ctx context.Context, p authz.Principal) ([]*scan.Result, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*scan.Result), args.Error(1)
}

type mockRuleLister struct {
	mock.Mock
}

func (m *mockRuleLister) List(ctx context.Context, p authz.Principal, filter rule.ListFilter) ([]*rule.Rule, error) {
	args := m.Called(ctx, p, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*rule.Rule), args.Error(1)
}

type recordingEmitter struct {
	entries []audit.Entry
}

func (r *recordingEmitter) Emit(_ context.Context, e audit.Entry) {
	r.entries = append(r.entries, e)
}

func principal(role authz.Role) authz.Principal {
	return authz.Principal{UserID: "user-1", Role: role, Scope: authz.MustScope("org-a"), Type: authz.ActorUser}
}

// TestPurpose: Validates export format parsing and HTTP metadata.
// Scope: Unit Test
// Security: Unsupported formats are rejected as BadRequest
// Expected: Known formats map to their MIME type and file extension.
// Test Case ID: RPT-01
func TestParseFormat(t *testing.T) {
	tests := []struct {
		in          string
		contentType string
		filename    string
	}{
		{"csv", "text/csv", "audit-report.csv"},
		{"PDF", "application/pdf", "audit-report.pdf"},
		{"excel", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "audit-report.xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := report.ParseFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.contentType, f.ContentType())
			assert.Equal(t, tt.filename, report.Filename(report.TypeAudit, f))
		})
	}

	_, err := report.ParseFormat("invalid")
	assert.ErrorIs(t, err, report.ErrUnsupportedFormat)
	assert.Equal(t, authz.KindBadRequest, authz.KindOf(err))

	_, err = report.ParseType("weekly")
	assert.ErrorIs(t, err, report.ErrUnsupportedType)
}

// TestPurpose: Validates every renderer produces a non-empty document.
// Scope: Unit Test
// Security: N/A
// Expected: Headers are written even with zero rows, and each format has its signature.
// Test Case ID: RPT-02
func TestRenderersNeverEmpty(t *testing.T) {
	empty := &report.Table{Title: "Empty", Columns: []string{"A", "B"}}
	filled := &report.Table{
		Title:       "Filled",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Columns:     []string{"Name", "Value"},
		Rows:        [][]string{{"alpha", "1"}, {"beta, with comma", "2"}},
	}

	signatures := map[report.Format][]byte{
		report.FormatCSV:   []byte("A,B"),
		report.FormatPDF:   []byte("%PDF"),
		report.FormatExcel: []byte("PK"),
	}

	for format, sig := range signatures {
		t.Run(string(format), func(t *testing.T) {
			body, err := report.Render(format, empty)
			require.NoError(t, err)
			assert.NotEmpty(t, body)
			assert.True(t, bytes.HasPrefix(body, sig), "unexpected prefix %q", body[:min(len(body), 8)])

			body, err = report.Render(format, filled)
			require.NoError(t, err)
			assert.NotEmpty(t, body)
		})
	}

	body, err := report.Render(report.FormatCSV, filled)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Name", "Value"}, {"alpha", "1"}, {"beta, with comma", "2"}}, records)
}

// TestPurpose: Validates an authorized auditor can export the audit trail.
// Scope: Unit Test
// Security: Export gating by permission
// Expected: CSV body with one row per entry, and the export is audited.
// Test Case ID: RPT-03
func TestExportAuditReport(t *testing.T) {
	lister := new(mockAuditLister)
	emitter := &recordingEmitter{}
	svc := report.NewService(lister, new(mockScanReader), new(mockRuleLister), emitter)

	p := principal(authz.RoleAuditor)
	lister.On("List", mock.Anything, p, audit.Filter{Limit: audit.MaxLimit}).Return([]*audit.Entry{
		{ID: "e1", ActorID: "alice", Action: audit.ActionCredentialCreated, ResourceType: "credential", Outcome: audit.OutcomeSuccess, Timestamp: time.Now()},
	}, nil)

	out, err := svc.Export(context.Background(), p, report.Request{Type: report.TypeAudit, Format: report.FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", out.ContentType)
	assert.Equal(t, "audit-report.csv", out.Filename)
	assert.Equal(t, 1, out.Rows)
	assert.Contains(t, string(out.Body), audit.ActionCredentialCreated)

	require.Len(t, emitter.entries, 1)
	assert.Equal(t, audit.ActionReportExported, emitter.entries[0].Action)
	assert.Equal(t, audit.OutcomeSuccess, emitter.entries[0].Outcome)
	lister.AssertExpectations(t)
}

// TestPurpose: Validates export permission checks.
// Scope: Unit Test
// Security: Roles without the export permissions never reach the data layer
// Expected: Forbidden, and no collaborator is called.
// Test Case ID: RPT-04
func TestExportDenied(t *testing.T) {
	lister := new(mockAuditLister)
	scans := new(mockScanReader)
	rules := new(mockRuleLister)
	svc := report.NewService(lister, scans, rules, &recordingEmitter{})

	tests := []struct {
		name string
		role authz.Role
		typ  report.Type
	}{
		{"member cannot export", authz.RoleMember, report.TypeCompliance},
		{"developer cannot export", authz.RoleDeveloper, report.TypeScan},
		{"compliance officer cannot export audit", authz.RoleComplianceOfficer, report.TypeAudit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Export(context.Background(), principal(tt.role), report.Request{Type: tt.typ, Format: report.FormatCSV})
			assert.ErrorIs(t, err, authz.ErrAccessDenied)
		})
	}

	lister.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
	scans.AssertNotCalled(t, "AllResults", mock.Anything, mock.Anything)
	rules.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: Validates scan and compliance reports in every format.
// Scope: Unit Test
// Security: N/A
// Expected: Each format renders a non-empty body with the right content type.
// Test Case ID: RPT-05
func TestExportScanAndComplianceReports(t *testing.T) {
	scans := new(mockScanReader)
	rules := new(mockRuleLister)
	svc := report.NewService(new(mockAuditLister), scans, rules, &recordingEmitter{})
	p := principal(authz.RoleSecurityTeam)

	scans.On("Results", mock.Anything, p, "scan-1").Return([]*scan.Result{
		{ScanID: "scan-1", FindingID: "f1", Title: "TLS disabled", Severity: rule.SeverityHigh, Status: scan.ResultOpen},
	}, nil)
	rules.On("List", mock.Anything, p, rule.ListFilter{ActiveOnly: true}).Return([]*rule.Rule{}, nil)

	for _, format := range []report.Format{report.FormatCSV, report.FormatPDF, report.FormatExcel} {
		out, err := svc.Export(context.Background(), p, report.Request{Type: report.TypeScan, Format: format, ScanID: "scan-1"})
		require.NoError(t, err)
		assert.Equal(t, format.ContentType(), out.ContentType)
		assert.NotEmpty(t, out.Body)

		out, err = svc.Export(context.Background(), p, report.Request{Type: report.TypeCompliance, Format: format})
		require.NoError(t, err)
		assert.Equal(t, 0, out.Rows)
		assert.NotEmpty(t, out.Body)
	}
}
