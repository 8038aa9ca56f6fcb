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

package authz

import "strings"

// Scope identifies the single organization an operation is confined to. The
// zero value is invalid and every repository rejects it, so a data access
// path cannot be expressed without an organization filter.
type Scope struct {
	orgID string
}

// ErrMissingOrganization is returned when no organization identifier is given.
var ErrMissingOrganization = NewError(KindBadRequest, "org_id is required")

// NewScope returns a Scope for orgID.
func NewScope(orgID string) (Scope, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return Scope{}, ErrMissingOrganization
	}
	return Scope{orgID: orgID}, nil
}

// MustScope is NewScope for identifiers known to be non-empty.
func MustScope(orgID string) Scope {
	s, err := NewScope(orgID)
	if err != nil {
		panic(err)
	}
	return s
}

// OrgID returns the organization identifier.
func (s Scope) OrgID() string {
	return s.orgID
}

// Valid reports whether the scope names an organization.
func (s Scope) Valid() bool {
	return s.orgID != ""
}

// ActorType identifies who is making a request.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Principal is an authorized caller: an identity whose role was resolved
// for exactly one organization during the current request.
type Principal struct {
	UserID string
	Email  string
	Role   Role
	Scope  Scope
	Type   ActorType
}

// SystemPrincipal is used by internal jobs such as scheduled scans.
func SystemPrincipal(scope Scope) Principal {
	return Principal{
		UserID: "system",
		Role:   RoleAdmin,
		Scope:  scope,
		Type:   ActorSystem,
	}
}

// Require checks the principal's role against req.
func (p Principal) Require(req Requirement) error {
	if !p.Scope.Valid() {
		return ErrAccessDenied
	}
	return req.Check(p.Role)
}
