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
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/id"
	"github.com/cybervault/cybervault/internal/observability/logger"
	"github.com/cybervault/cybervault/internal/observability/tracing"
	"github.com/cybervault/cybervault/internal/rule"
)

// FactCollector gathers the facts rules are evaluated against
type FactCollector interface {
	Collect(ctx context.Context, t Target) (map[string]any, error)
}

// TargetFacts uses the facts supplied with the target, plus a "target" fact
// holding its type and value.
type TargetFacts struct{}

func (TargetFacts) Collect(_ context.Context, t Target) (map[string]any, error) {
	facts := maps.Clone(t.Facts)
	if facts == nil {
		facts = map[string]any{}
	}
	facts["target"] = map[string]any{"type": string(t.Type), "value": t.Value}
	return facts, nil
}

// Executor runs scans. A scan is processed one target at a time; its
// status is re-read after each target so pause and cancel take effect
// between targets, and a resumed scan continues where it stopped.
type Executor struct {
	scans    Repository
	rules    rule.Repository
	facts    FactCollector
	duration metric.Float64Histogram
	now      func() time.Time

	active sync.Map
}

// NewExecutor creates an executor. A nil collector uses TargetFacts and a
// nil histogram records nothing.
func NewExecutor(scans Repository, rules rule.Repository, facts FactCollector, duration metric.Float64Histogram) *Executor {
	if facts == nil {
		facts = TargetFacts{}
	}
	if duration == nil {
		duration, _ = noop.NewMeterProvider().Meter("scan").Float64Histogram("scan.duration")
	}
	return &Executor{
		scans:    scans,
		rules:    rules,
		facts:    facts,
		duration: duration,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type compiledRule struct {
	rule *rule.Rule
	eval *rule.Evaluator
}

// Run executes a running scan until it completes, fails or is paused or
// cancelled. Concurrent calls for the same scan are collapsed.
func (e *Executor) Run(ctx context.Context, scope authz.Scope, scanID string) error {
	if _, busy := e.active.LoadOrStore(scanID, struct{}{}); busy {
		return nil
	}
	defer e.active.Delete(scanID)

	ctx, span := tracing.StartSpan(ctx, "scan.execute", tracing.OrgAttributes(scope.OrgID(), ""))
	defer span.End()

	started := time.Now()
	sc, err := e.scans.Get(ctx, scope, scanID)
	if err != nil {
		return err
	}
	if sc.Status != StatusRunning {
		return nil
	}

	log := slog.With(logger.Component("scan"), logger.OrgID(scope.OrgID()), logger.ScanID(scanID))

	rules, err := e.loadRules(ctx, scope, sc)
	if err != nil {
		return e.fail(ctx, scope, scanID, started, err)
	}

	total := len(sc.Targets)
	for i := sc.Processed; i < total; i++ {
		target := sc.Targets[i]
		facts, err := e.facts.Collect(ctx, target)
		if err != nil {
			return e.fail(ctx, scope, scanID, started, err)
		}

		var found []rule.Severity
		for _, cr := range rules {
			matched, err := cr.eval.Match(facts)
			if err != nil {
				log.WarnContext(ctx, "rule evaluation failed", slog.String("rule_id", cr.rule.ID), logger.Error(err))
				continue
			}
			if !matched {
				continue
			}
			if err := e.scans.InsertResult(ctx, scope, e.newResult(sc, cr.rule, target, facts)); err != nil {
				return e.fail(ctx, scope, scanID, started, err)
			}
			found = append(found, cr.rule.Severity)
		}

		stop := false
		processed := i + 1
		_, err = e.scans.Modify(ctx, scope, scanID, func(s *Scan) error {
			if s.FindingsCount == nil {
				s.FindingsCount = map[rule.Severity]int{}
			}
			for _, sev := range found {
				s.FindingsCount[sev]++
			}
			s.Processed = processed
			s.Progress = processed * 100 / total
			s.UpdatedAt = e.now()
			stop = s.Status != StatusRunning
			return nil
		})
		if err != nil {
			return e.fail(ctx, scope, scanID, started, err)
		}
		if stop {
			log.InfoContext(ctx, "scan stopped before completion", slog.Int("processed_targets", processed))
			return nil
		}
	}

	sc, err = e.scans.Modify(ctx, scope, scanID, func(s *Scan) error {
		if !CanTransition(s.Status, StatusCompleted) {
			return ErrInvalidTransition
		}
		now := e.now()
		s.Status = StatusCompleted
		s.Progress = 100
		s.CompletedAt = &now
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		if authz.KindOf(err) == authz.KindConflict {
			// Paused or cancelled after the last target.
			return nil
		}
		return e.fail(ctx, scope, scanID, started, err)
	}

	e.duration.Record(ctx, time.Since(started).Seconds(),
		metric.WithAttributes(attribute.String("status", string(StatusCompleted)), attribute.String("type", string(sc.Type))))
	log.InfoContext(ctx, "scan completed", slog.Any("findings", sc.FindingsCount))
	return nil
}

func (e *Executor) loadRules(ctx context.Context, scope authz.Scope, sc *Scan) ([]compiledRule, error) {
	var rules []*rule.Rule
	if len(sc.RuleIDs) > 0 {
		for _, ruleID := range sc.RuleIDs {
			r, err := e.rules.Get(ctx, scope, ruleID)
			if err != nil {
				return nil, err
			}
			if r.Active && !r.Deleted {
				rules = append(rules, r)
			}
		}
	} else {
		var err error
		rules, err = e.rules.List(ctx, scope, rule.ListFilter{ActiveOnly: true})
		if err != nil {
			return nil, err
		}
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		ev, err := rule.Compile(r.Conditions)
		if err != nil {
			slog.WarnContext(ctx, "skipping rule with invalid conditions",
				logger.Component("scan"), slog.String("rule_id", r.ID), logger.Error(err))
			continue
		}
		compiled = append(compiled, compiledRule{rule: r, eval: ev})
	}
	return compiled, nil
}

func (e *Executor) newResult(sc *Scan, r *rule.Rule, t Target, facts map[string]any) *Result {
	now := e.now()
	res := &Result{
		ID:          id.NewUUIDv7(),
		ScanID:      sc.ID,
		OrgID:       sc.OrgID,
		RuleID:      r.ID,
		FindingID:   r.ID + ":" + string(t.Type) + ":" + t.Value,
		Title:       r.Name,
		Description: r.Description,
		Severity:    r.Severity,
		Category:    r.Event.Type,
		Target:      t.Value,
		Evidence:    facts,
		Status:      ResultOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if r.Framework != "" {
		res.Frameworks = []string{r.Framework}
	}
	if v, ok := r.Event.Params["remediation"].(string); ok {
		res.Remediation = v
	}
	if refs, ok := r.Event.Params["references"].([]any); ok {
		for _, ref := range refs {
			if s, ok := ref.(string); ok {
				res.References = append(res.References, s)
			}
		}
	}
	return res
}

func (e *Executor) fail(ctx context.Context, scope authz.Scope, scanID string, started time.Time, cause error) error {
	slog.ErrorContext(ctx, "scan failed",
		logger.Component("scan"),
		logger.OrgID(scope.OrgID()),
		logger.ScanID(scanID),
		logger.Error(cause),
	)

	_, err := e.scans.Modify(ctx, scope, scanID, func(s *Scan) error {
		if !CanTransition(s.Status, StatusFailed) {
			return ErrInvalidTransition
		}
		now := e.now()
		s.Status = StatusFailed
		s.ErrorMessage = authz.MessageOf(cause)
		s.CompletedAt = &now
		s.UpdatedAt = now
		return nil
	})
	if err != nil && authz.KindOf(err) != authz.KindConflict {
		return err
	}

	e.duration.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(attribute.String("status", string(StatusFailed))))
	return cause
}
