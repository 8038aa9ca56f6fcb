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

package scan

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/id"
	"github.com/cybervault/cybervault/internal/observability/logger"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/validate"
)

var (
	viewScans = authz.RequireAll(authz.PermViewScans)
	runScans  = authz.RequireAll(authz.PermRunScans)
)

// Action is a user-requested status change
type Action string

const (
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

var actionTargets = map[Action]Status{
	ActionStart:  StatusRunning,
	ActionPause:  StatusPaused,
	ActionResume: StatusRunning,
	ActionCancel: StatusCancelled,
}

// CreateInput describes a new scan
type CreateInput struct {
	Name     string   `json:"name" validate:"required,max=200"`
	Type     Type     `json:"type" validate:"required,oneof=compliance security vulnerability configuration custom"`
	Priority Priority `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Targets  []Target `json:"targets" validate:"required,min=1,max=100,dive"`
	Schedule Schedule `json:"schedule"`
	RuleIDs  []string `json:"rule_ids" validate:"max=200,dive,required"`
}

// Service manages scans and their results
type Service struct {
	scans    Repository
	rules    rule.Repository
	executor *Executor
	audit    audit.Emitter
	dispatch func(func())
	now      func() time.Time
}

// NewService creates a new scan service. Started scans run on their own
// goroutine through executor.
func NewService(scans Repository, rules rule.Repository, executor *Executor, auditEmitter audit.Emitter) *Service {
	return &Service{
		scans:    scans,
		rules:    rules,
		executor: executor,
		audit:    auditEmitter,
		dispatch: func(fn func()) { go fn() },
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// cronParser accepts standard five-field expressions, descriptors and a
// CRON_TZ prefix.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func scheduleSpec(s Schedule) string {
	if s.Timezone == "" {
		return s.Cron
	}
	return "CRON_TZ=" + s.Timezone + " " + s.Cron
}

func checkSchedule(s Schedule) error {
	if !s.Enabled {
		return nil
	}
	if _, err := cronParser.Parse(scheduleSpec(s)); err != nil {
		return ErrInvalidSchedule
	}
	return nil
}

// Create records a pending scan
func (s *Service) Create(ctx context.Context, p authz.Principal, in CreateInput) (*Scan, error) {
	if err := p.Require(runScans); err != nil {
		s.emit(ctx, p, audit.ActionScanCreated, "", err, map[string]any{"name": in.Name})
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if err := checkSchedule(in.Schedule); err != nil {
		return nil, err
	}
	for _, ruleID := range in.RuleIDs {
		if _, err := s.rules.Get(ctx, p.Scope, ruleID); err != nil {
			if authz.KindOf(err) == authz.KindForbidden {
				return nil, ErrUnknownRule
			}
			return nil, err
		}
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}

	sc := s.newScan(p, in)
	err := s.scans.Insert(ctx, p.Scope, sc)
	s.emit(ctx, p, audit.ActionScanCreated, sc.ID, err, map[string]any{
		"name":    sc.Name,
		"type":    string(sc.Type),
		"targets": len(sc.Targets),
	})
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Service) newScan(p authz.Principal, in CreateInput) *Scan {
	now := s.now()
	findings := make(map[rule.Severity]int, len(rule.Severities))
	for _, sev := range rule.Severities {
		findings[sev] = 0
	}
	return &Scan{
		ID:            id.NewUUIDv7(),
		OrgID:         p.Scope.OrgID(),
		TriggeredBy:   p.UserID,
		Name:          in.Name,
		Type:          in.Type,
		Priority:      in.Priority,
		Targets:       in.Targets,
		Schedule:      in.Schedule,
		RuleIDs:       in.RuleIDs,
		Status:        StatusPending,
		FindingsCount: findings,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Get returns one scan
func (s *Service) Get(ctx context.Context, p authz.Principal, scanID string) (*Scan, error) {
	if err := p.Require(viewScans); err != nil {
		return nil, err
	}
	return s.scans.Get(ctx, p.Scope, scanID)
}

// List returns the organization's scans, newest first
func (s *Service) List(ctx context.Context, p authz.Principal, filter ListFilter) ([]*Scan, error) {
	if err := p.Require(viewScans); err != nil {
		return nil, err
	}
	return s.scans.List(ctx, p.Scope, filter)
}

// Transition applies a user action. Starting or resuming hands the scan to
// the executor.
func (s *Service) Transition(ctx context.Context, p authz.Principal, scanID string, action Action) (*Scan, error) {
	if err := p.Require(runScans); err != nil {
		s.emit(ctx, p, audit.ActionScanTransitioned, scanID, err, map[string]any{"action": string(action)})
		return nil, err
	}
	to, ok := actionTargets[action]
	if !ok {
		return nil, ErrUnknownAction
	}

	var from Status
	sc, err := s.scans.Modify(ctx, p.Scope, scanID, func(sc *Scan) error {
		// start only applies to pending scans and resume only to paused ones.
		if (action == ActionStart && sc.Status != StatusPending) ||
			(action == ActionResume && sc.Status != StatusPaused) ||
			!CanTransition(sc.Status, to) {
			return ErrInvalidTransition
		}
		now := s.now()
		from = sc.Status
		sc.Status = to
		sc.UpdatedAt = now
		if action == ActionStart {
			sc.StartedAt = &now
		}
		if to.Terminal() {
			sc.CompletedAt = &now
		}
		return nil
	})
	s.emit(ctx, p, audit.ActionScanTransitioned, scanID, err, map[string]any{
		"action": string(action),
		"from":   string(from),
		"to":     string(to),
	})
	if err != nil {
		return nil, err
	}

	if to == StatusRunning && s.executor != nil {
		scope := p.Scope
		runCtx := context.WithoutCancel(ctx)
		s.dispatch(func() {
			if err := s.executor.Run(runCtx, scope, scanID); err != nil {
				slog.WarnContext(runCtx, "scan run ended with error",
					logger.Component("scan"), logger.ScanID(scanID), logger.Error(err))
			}
		})
	}
	return sc, nil
}

// RunScheduled clones a schedule template into a fresh scan of the same
// organization, starts it and runs it to completion.
func (s *Service) RunScheduled(ctx context.Context, template *Scan) (*Scan, error) {
	scope, err := authz.NewScope(template.OrgID)
	if err != nil {
		return nil, err
	}
	p := authz.SystemPrincipal(scope)

	sc := s.newScan(p, CreateInput{
		Name:     template.Name,
		Type:     template.Type,
		Priority: template.Priority,
		Targets:  template.Targets,
		RuleIDs:  template.RuleIDs,
	})
	now := s.now()
	sc.Status = StatusRunning
	sc.StartedAt = &now

	err = s.scans.Insert(ctx, scope, sc)
	s.emit(ctx, p, audit.ActionScanCreated, sc.ID, err, map[string]any{
		"name":        sc.Name,
		"schedule_of": template.ID,
	})
	if err != nil {
		return nil, err
	}
	if s.executor != nil {
		if err := s.executor.Run(ctx, scope, sc.ID); err != nil {
			return nil, err
		}
	}
	return s.scans.Get(ctx, scope, sc.ID)
}

// Results lists the findings of a scan
func (s *Service) Results(ctx context.Context, p authz.Principal, scanID string) ([]*Result, error) {
	if err := p.Require(viewScans); err != nil {
		return nil, err
	}
	return s.scans.ListResults(ctx, p.Scope, scanID)
}

// AllResults lists the findings of every scan of the organization
func (s *Service) AllResults(ctx context.Context, p authz.Principal) ([]*Result, error) {
	if err := p.Require(viewScans); err != nil {
		return nil, err
	}
	scans, err := s.scans.List(ctx, p.Scope, ListFilter{})
	if err != nil {
		return nil, err
	}
	var all []*Result
	for _, sc := range scans {
		results, err := s.scans.ListResults(ctx, p.Scope, sc.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}
	return all, nil
}

// UpdateResultStatus triages one finding
func (s *Service) UpdateResultStatus(ctx context.Context, p authz.Principal, scanID, resultID string, status ResultStatus) (*Result, error) {
	if err := p.Require(runScans); err != nil {
		s.emit(ctx, p, audit.ActionResultUpdated, resultID, err, nil)
		return nil, err
	}
	if !ValidResultStatus(status) {
		return nil, ErrInvalidStatus
	}

	var previous ResultStatus
	r, err := s.scans.ModifyResult(ctx, p.Scope, scanID, resultID, func(r *Result) error {
		previous = r.Status
		r.Status = status
		r.UpdatedAt = s.now()
		return nil
	})
	s.emit(ctx, p, audit.ActionResultUpdated, resultID, err, map[string]any{
		"scan_id":         scanID,
		"status":          string(status),
		"previous_status": string(previous),
	})
	return r, err
}

func (s *Service) emit(ctx context.Context, p authz.Principal, action, resourceID string, err error, details map[string]any) {
	if err != nil {
		if details == nil {
			details = map[string]any{}
		}
		details["error"] = authz.MessageOf(err)
	}
	resourceType := "scan"
	if action == audit.ActionResultUpdated {
		resourceType = "scan_result"
	}
	s.audit.Emit(ctx, audit.Entry{
		OrgID:        p.Scope.OrgID(),
		ActorID:      p.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      audit.OutcomeOf(err),
		Details:      details,
	})
}
