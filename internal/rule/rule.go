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

// Package rule manages versioned compliance rules. Every mutation
// snapshots the prior state, so deletes and edits can be undone by
// restoring an earlier version.
package rule

import (
	"context"
	"fmt"
	"time"

	"github.com/cybervault/cybervault/internal/authz"
)

// Severity of a rule and of the findings it produces
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Operator compares a fact against a value
type Operator string

const (
	OpEqual                Operator = "equal"
	OpNotEqual             Operator = "notEqual"
	OpLessThan             Operator = "lessThan"
	OpLessThanInclusive    Operator = "lessThanInclusive"
	OpGreaterThan          Operator = "greaterThan"
	OpGreaterThanInclusive Operator = "greaterThanInclusive"
	OpIn                   Operator = "in"
	OpNotIn                Operator = "notIn"
	OpContains             Operator = "contains"
	OpDoesNotContain       Operator = "doesNotContain"
	OpExists               Operator = "exists"
)

// Condition is a node of a condition tree. A node is either a leaf
// comparison (Fact, Operator, Value, Path) or exactly one of All, Any, Not.
type Condition struct {
	Fact     string      `json:"fact,omitempty"`
	Operator Operator    `json:"operator,omitempty"`
	Value    any         `json:"value,omitempty"`
	Path     string      `json:"path,omitempty"`
	All      []Condition `json:"all,omitempty"`
	Any      []Condition `json:"any,omitempty"`
	Not      *Condition  `json:"not,omitempty"`
}

// Event is fired when a rule's conditions match
type Event struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Content is the user-editable part of a rule. Versions snapshot it.
type Content struct {
	Name        string         `json:"name" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=4000"`
	Framework   string         `json:"framework" validate:"max=64"`
	Severity    Severity       `json:"severity" validate:"required,oneof=critical high medium low info"`
	Conditions  Condition      `json:"conditions"`
	Event       Event          `json:"event"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Active      bool           `json:"active"`
}

// Rule is a compliance rule of one organization
type Rule struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Content
	Version   int       `json:"version"`
	Deleted   bool      `json:"deleted"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Version is an immutable snapshot of a rule as it was at Version.
type Version struct {
	RuleID    string    `json:"rule_id"`
	OrgID     string    `json:"org_id"`
	Version   int       `json:"version"`
	Content   Content   `json:"content"`
	Deleted   bool      `json:"deleted"`
	ChangedBy string    `json:"changed_by"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound         = authz.NewError(authz.KindForbidden, "rule not found")
	ErrVersionNotFound  = authz.NewError(authz.KindBadRequest, "rule version does not exist")
	ErrDeleted          = authz.NewError(authz.KindConflict, "rule is deleted")
	ErrInvalidCondition = authz.NewError(authz.KindBadRequest, "invalid rule conditions")
)

// ListFilter narrows List results
type ListFilter struct {
	IncludeDeleted bool
	ActiveOnly     bool
	Framework      string
}

// Match reports whether r passes the filter
func (f ListFilter) Match(r *Rule) bool {
	if r.Deleted && !f.IncludeDeleted {
		return false
	}
	if f.ActiveOnly && (!r.Active || r.Deleted) {
		return false
	}
	if f.Framework != "" && r.Framework != f.Framework {
		return false
	}
	return true
}

// Mutation changes a loaded rule in place.
type Mutation func(r *Rule) error

// Repository persists rules and their version history.
type Repository interface {
	Insert(ctx context.Context, scope authz.Scope, r *Rule) error
	Get(ctx context.Context, scope authz.Scope, id string) (*Rule, error)
	List(ctx context.Context, scope authz.Scope, filter ListFilter) ([]*Rule, error)
	// Modify atomically snapshots the current state into the version
	// history, applies fn and stores the result with the version
	// incremented by one.
	Modify(ctx context.Context, scope authz.Scope, id, actorID string, fn Mutation) (*Rule, error)
	ListVersions(ctx context.Context, scope authz.Scope, ruleID string) ([]*Version, error)
	GetVersion(ctx context.Context, scope authz.Scope, ruleID string, version int) (*Version, error)
}

// Validate checks the shape of a condition tree
func (c Condition) Validate() error {
	return c.validate(0)
}

const maxDepth = 16

func (c Condition) validate(depth int) error {
	if depth > maxDepth {
		return invalidCondition(fmt.Sprintf("nesting deeper than %d", maxDepth))
	}

	kinds := 0
	if c.Fact != "" || c.Operator != "" {
		kinds++
	}
	if len(c.All) > 0 {
		kinds++
	}
	if len(c.Any) > 0 {
		kinds++
	}
	if c.Not != nil {
		kinds++
	}
	if kinds != 1 {
		return invalidCondition("each node needs exactly one of fact, all, any or not")
	}

	switch {
	case len(c.All) > 0:
		for _, child := range c.All {
			if err := child.validate(depth + 1); err != nil {
				return err
			}
		}
	case len(c.Any) > 0:
		for _, child := range c.Any {
			if err := child.validate(depth + 1); err != nil {
				return err
			}
		}
	case c.Not != nil:
		return c.Not.validate(depth + 1)
	default:
		if c.Fact == "" {
			return invalidCondition("fact is required")
		}
		if _, ok := operatorFuncs[c.Operator]; !ok {
			return invalidCondition(fmt.Sprintf("unknown operator %q", c.Operator))
		}
	}
	return nil
}

// invalidCondition keeps ErrInvalidCondition in the chain while carrying
// the specific reason as the public message.
func invalidCondition(reason string) error {
	return &authz.Error{
		Kind:    authz.KindBadRequest,
		Message: ErrInvalidCondition.Message + ": " + reason,
		Err:     ErrInvalidCondition,
	}
}
