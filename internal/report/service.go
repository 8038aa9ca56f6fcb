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

package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/scan"
)

// ExportRequirement admits callers holding either export permission. The
// audit report additionally requires export_audit_logs.
var ExportRequirement = authz.RequireAny(authz.PermExportReports, authz.PermExportAuditLogs)

// maxAuditRows bounds an audit export.
const maxAuditRows = 10000

// AuditLister reads audit entries
type AuditLister interface {
	List(ctx context.Context, p authz.Principal, filter audit.Filter) ([]*audit.Entry, error)
}

// ScanReader reads scan results
type ScanReader interface {
	Results(ctx context.Context, p authz.Principal, scanID string) ([]*scan.Result, error)
	AllResults(ctx context.Context, p authz.Principal) ([]*scan.Result, error)
}

// RuleLister reads rules
type RuleLister interface {
	List(ctx context.Context, p authz.Principal, filter rule.ListFilter) ([]*rule.Rule, error)
}

// Request selects what to export
type Request struct {
	Type   Type
	Format Format
	// ScanID limits a scan report to one scan.
	ScanID string
}

// Export is a rendered report
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// Service builds and renders reports
type Service struct {
	audit   AuditLister
	scans   ScanReader
	rules   RuleLister
	emitter audit.Emitter
	now     func() time.Time
}

// NewService creates a new report service
func NewService(auditLister AuditLister, scans ScanReader, rules RuleLister, emitter audit.Emitter) *Service {
	return &Service{
		audit:   auditLister,
		scans:   scans,
		rules:   rules,
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Export builds the requested report for the principal's organization.
func (s *Service) Export(ctx context.Context, p authz.Principal, req Request) (*Export, error) {
	if err := p.Require(ExportRequirement); err != nil {
		return nil, err
	}
	if req.Type == TypeAudit {
		if err := p.Require(authz.RequireAll(authz.PermExportAuditLogs)); err != nil {
			s.emit(ctx, p, req, 0, err)
			return nil, err
		}
	} else if err := p.Require(authz.RequireAll(authz.PermExportReports)); err != nil {
		s.emit(ctx, p, req, 0, err)
		return nil, err
	}

	table, err := s.build(ctx, p, req)
	if err != nil {
		s.emit(ctx, p, req, 0, err)
		return nil, err
	}

	body, err := Render(req.Format, table)
	s.emit(ctx, p, req, len(table.Rows), err)
	if err != nil {
		return nil, err
	}

	return &Export{
		Filename:    Filename(req.Type, req.Format),
		ContentType: req.Format.ContentType(),
		Body:        body,
		Rows:        len(table.Rows),
	}, nil
}

func (s *Service) build(ctx context.Context, p authz.Principal, req Request) (*Table, error) {
	switch req.Type {
	case TypeAudit:
		return s.auditTable(ctx, p)
	case TypeScan:
		return s.scanTable(ctx, p, req.ScanID)
	case TypeCompliance:
		return s.complianceTable(ctx, p)
	}
	return nil, ErrUnsupportedType
}

func (s *Service) auditTable(ctx context.Context, p authz.Principal) (*Table, error) {
	var entries []*audit.Entry
	filter := audit.Filter{Limit: audit.MaxLimit}
	for len(entries) < maxAuditRows {
		page, err := s.audit.List(ctx, p, filter)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += len(page)
	}

	return &Table{
		Title:       "Audit Log",
		GeneratedAt: s.now(),
		Columns:     []string{"Timestamp", "Actor", "Action", "Resource Type", "Resource ID", "Outcome", "IP Address", "Details"},
		Rows: lo.Map(entries, func(e *audit.Entry, _ int) []string {
			return []string{
				e.Timestamp.UTC().Format(time.RFC3339),
				e.ActorID,
				e.Action,
				e.ResourceType,
				e.ResourceID,
				string(e.Outcome),
				e.IPAddress,
				detailString(e.Details),
			}
		}),
	}, nil
}

func (s *Service) scanTable(ctx context.Context, p authz.Principal, scanID string) (*Table, error) {
	var (
		results []*scan.Result
		err     error
	)
	if scanID != "" {
		results, err = s.scans.Results(ctx, p, scanID)
	} else {
		results, err = s.scans.AllResults(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	return &Table{
		Title:       "Scan Results",
		GeneratedAt: s.now(),
		Columns:     []string{"Scan", "Finding", "Title", "Severity", "Target", "Status", "Frameworks", "Remediation", "Detected"},
		Rows: lo.Map(results, func(r *scan.Result, _ int) []string {
			return []string{
				r.ScanID,
				r.FindingID,
				r.Title,
				string(r.Severity),
				r.Target,
				string(r.Status),
				strings.Join(r.Frameworks, ", "),
				r.Remediation,
				r.CreatedAt.UTC().Format(time.RFC3339),
			}
		}),
	}, nil
}

func (s *Service) complianceTable(ctx context.Context, p authz.Principal) (*Table, error) {
	rules, err := s.rules.List(ctx, p, rule.ListFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	return &Table{
		Title:       "Compliance Rules",
		GeneratedAt: s.now(),
		Columns:     []string{"Rule", "Framework", "Severity", "Version", "Description", "Updated"},
		Rows: lo.Map(rules, func(r *rule.Rule, _ int) []string {
			return []string{
				r.Name,
				r.Framework,
				string(r.Severity),
				strconv.Itoa(r.Version),
				r.Description,
				r.UpdatedAt.UTC().Format(time.RFC3339),
			}
		}),
	}, nil
}

func detailString(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	b, err := json.Marshal(details)
	if err != nil {
		return fmt.Sprint(details)
	}
	return string(b)
}

func (s *Service) emit(ctx context.Context, p authz.Principal, req Request, rows int, err error) {
	details := map[string]any{
		"report_type": string(req.Type),
		"format":      string(req.Format),
		"rows":        rows,
	}
	if err != nil {
		details["error"] = authz.MessageOf(err)
	}
	s.emitter.Emit(ctx, audit.Entry{
		OrgID:        p.Scope.OrgID(),
		ActorID:      p.UserID,
		Action:       audit.ActionReportExported,
		ResourceType: "report",
		ResourceID:   string(req.Type),
		Outcome:      audit.OutcomeOf(err),
		Details:      details,
	})
}
