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

// Package scan runs compliance scans: rules evaluated against the facts of
// each target, producing findings scoped to the scan's organization.
package scan

import (
	"context"
	"time"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/rule"
)

// Type of scan
type Type string

const (
	TypeCompliance    Type = "compliance"
	TypeSecurity      Type = "security"
	TypeVulnerability Type = "vulnerability"
	TypeConfiguration Type = "configuration"
	TypeCustom        Type = "custom"
)

// Priority of a scan
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// TargetType is the kind of asset a target names
type TargetType string

const (
	TargetDomain     TargetType = "domain"
	TargetIPRange    TargetType = "ip_range"
	TargetURL        TargetType = "url"
	TargetFile       TargetType = "file"
	TargetRepository TargetType = "repository"
)

// Target is one asset to scan. Facts are observations supplied with the
// target and are what rules are evaluated against.
type Target struct {
	Type  TargetType     `json:"type" validate:"required,oneof=domain ip_range url file repository"`
	Value string         `json:"value" validate:"required,max=2048"`
	Facts map[string]any `json:"facts,omitempty"`
}

// Schedule repeats a scan on a cron expression
type Schedule struct {
	Enabled  bool   `json:"enabled"`
	Cron     string `json:"cron,omitempty" validate:"required_if=Enabled true"`
	Timezone string `json:"timezone,omitempty"`
}

// Status of a scan
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusCancelled},
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:  {StatusRunning, StatusCancelled},
}

// CanTransition reports whether a scan may move from one status to another
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Scan is a unit of scanning work of one organization
type Scan struct {
	ID            string                `json:"id"`
	OrgID         string                `json:"org_id"`
	TriggeredBy   string                `json:"triggered_by"`
	Name          string                `json:"name"`
	Type          Type                  `json:"type"`
	Priority      Priority              `json:"priority"`
	Targets       []Target              `json:"targets"`
	Schedule      Schedule              `json:"schedule"`
	RuleIDs       []string              `json:"rule_ids,omitempty"`
	Status        Status                `json:"status"`
	Progress      int                   `json:"progress"`
	Processed     int                   `json:"processed_targets"`
	FindingsCount map[rule.Severity]int `json:"findings_count"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
}

// ResultStatus is the triage state of a finding
type ResultStatus string

const (
	ResultOpen          ResultStatus = "open"
	ResultAcknowledged  ResultStatus = "acknowledged"
	ResultResolved      ResultStatus = "resolved"
	ResultFalsePositive ResultStatus = "false_positive"
)

// ValidResultStatus reports whether s is a known triage state
func ValidResultStatus(s ResultStatus) bool {
	switch s {
	case ResultOpen, ResultAcknowledged, ResultResolved, ResultFalsePositive:
		return true
	}
	return false
}

// Result is one finding of a scan. It always carries its scan's OrgID.
type Result struct {
	ID          string         `json:"id"`
	ScanID      string         `json:"scan_id"`
	OrgID       string         `json:"org_id"`
	RuleID      string         `json:"rule_id"`
	FindingID   string         `json:"finding_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Severity    rule.Severity  `json:"severity"`
	Category    string         `json:"category,omitempty"`
	Target      string         `json:"target"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	Remediation string         `json:"remediation,omitempty"`
	References  []string       `json:"references,omitempty"`
	Frameworks  []string       `json:"frameworks,omitempty"`
	Status      ResultStatus   `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

var (
	ErrNotFound          = authz.NewError(authz.KindForbidden, "scan not found")
	ErrResultNotFound    = authz.NewError(authz.KindForbidden, "scan result not found")
	ErrInvalidTransition = authz.NewError(authz.KindConflict, "invalid scan status transition")
	ErrUnknownAction     = authz.NewError(authz.KindBadRequest, "action must be one of start, pause, resume, cancel")
	ErrUnknownRule       = authz.NewError(authz.KindBadRequest, "rule_ids references an unknown rule")
	ErrInvalidSchedule   = authz.NewError(authz.KindBadRequest, "invalid cron schedule")
	ErrInvalidStatus     = authz.NewError(authz.KindBadRequest, "invalid result status")
)

// ListFilter narrows scan listings
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Mutation changes a loaded scan in place
type Mutation func(s *Scan) error

// ResultMutation changes a loaded result in place
type ResultMutation func(r *Result) error

// Repository persists scans and their results. Results are only reachable
// through their scan and organization.
type Repository interface {
	Insert(ctx context.Context, scope authz.Scope, s *Scan) error
	Get(ctx context.Context, scope authz.Scope, id string) (*Scan, error)
	List(ctx context.Context, scope authz.Scope, filter ListFilter) ([]*Scan, error)
	Modify(ctx context.Context, scope authz.Scope, id string, fn Mutation) (*Scan, error)

	// InsertResult fails with ErrNotFound unless r.ScanID is a scan of scope.
	InsertResult(ctx context.Context, scope authz.Scope, r *Result) error
	ListResults(ctx context.Context, scope authz.Scope, scanID string) ([]*Result, error)
	ModifyResult(ctx context.Context, scope authz.Scope, scanID, resultID string, fn ResultMutation) (*Result, error)
}

// ScheduleSource lists scans that carry an enabled schedule. It is the
// scheduler's only cross-organization read; every scan it returns is then
// handled under its own organization scope.
type ScheduleSource interface {
	ListScheduled(ctx context.Context) ([]*Scan, error)
}
