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

package audit

import (
	"context"
	"time"

	"github.com/cybervault/cybervault/internal/authz"
)

// Actions
const (
	ActionOrganizationCreated  = "organization.created"
	ActionOrganizationUpdated  = "organization.updated"
	ActionOrganizationDisabled = "organization.disabled"
	ActionMemberInvited        = "member.invited"
	ActionMemberJoined         = "member.joined"
	ActionMemberRoleChanged    = "member.role_changed"
	ActionMemberDisabled       = "member.disabled"
	ActionMemberRemoved        = "member.removed"
	ActionCredentialCreated    = "credential.created"
	ActionCredentialRotated    = "credential.rotated"
	ActionCredentialRevoked    = "credential.revoked"
	ActionRuleCreated          = "rule.created"
	ActionRuleUpdated          = "rule.updated"
	ActionRuleDeleted          = "rule.deleted"
	ActionRuleRestored         = "rule.restored"
	ActionScanCreated          = "scan.created"
	ActionScanTransitioned     = "scan.transitioned"
	ActionResultUpdated        = "scan_result.updated"
	ActionReportExported       = "report.exported"
	ActionAccessDenied         = "access.denied"
)

// Outcome records whether the audited operation succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// OutcomeOf maps an operation error to an Outcome.
func OutcomeOf(err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Entry is an immutable record of a privileged action.
type Entry struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	ActorID      string         `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Outcome      Outcome        `json:"outcome"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	PrevHash     string         `json:"prev_hash,omitempty"`
	Hash         string         `json:"hash,omitempty"`
}

// Emitter accepts entries for best-effort recording. Emit never blocks on
// the underlying write and never reports its failure to the caller.
type Emitter interface {
	Emit(ctx context.Context, entry Entry)
}

// Sink persists or forwards entries. Implementations may fail; the
// Dispatcher owns retries, timeouts and failure reporting.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// Filter narrows an audit log listing.
type Filter struct {
	Action       string
	ActorID      string
	ResourceType string
	Outcome      Outcome
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
	Ascending    bool
}

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Normalize applies default and maximum page sizes.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Match reports whether e passes the filter. Stores that cannot push the
// filter down to a query use it directly.
func (f Filter) Match(e *Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

var (
	ErrImmutable     = authz.NewError(authz.KindForbidden, "audit entries are immutable")
	ErrEntryNotFound = authz.NewError(authz.KindForbidden, "audit entry not found")
	ErrChainBroken   = authz.NewError(authz.KindConflict, "audit hash chain is broken")
)

// Repository is the append-only audit store. Update and Delete exist only
// to make the refusal explicit: every implementation returns ErrImmutable
// and leaves the stored entry unchanged.
type Repository interface {
	// Append seals e against the organization's latest entry and stores it.
	Append(ctx context.Context, scope authz.Scope, e *Entry) error
	Get(ctx context.Context, scope authz.Scope, id string) (*Entry, error)
	List(ctx context.Context, scope authz.Scope, filter Filter) ([]*Entry, error)
	Update(ctx context.Context, scope authz.Scope, e *Entry) error
	Delete(ctx context.Context, scope authz.Scope, id string) error
}
