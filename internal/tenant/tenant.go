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

package tenant

import (
	"regexp"
	"strings"
	"time"

	"github.com/cybervault/cybervault/internal/authz"
)

// Organization is a tenant: the unit of data isolation.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Organization statuses. Organizations are never hard-deleted.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Member associates a user with an organization under exactly one role.
type Member struct {
	OrgID     string     `json:"org_id"`
	UserID    string     `json:"user_id"`
	Email     string     `json:"email,omitempty"`
	Role      authz.Role `json:"role"`
	Status    string     `json:"status"`
	InvitedBy string     `json:"invited_by,omitempty"`
	InvitedAt time.Time  `json:"invited_at"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Member statuses. Removal is a status, not a row deletion.
const (
	MemberActive   = "active"
	MemberInvited  = "invited"
	MemberDisabled = "disabled"
	MemberRemoved  = "removed"
)

// IsActive reports whether the membership currently grants access.
func (m *Member) IsActive() bool {
	return m.Status == MemberActive
}

// State returns the view of m used by the membership policies.
func (m *Member) State() authz.MemberState {
	return authz.MemberState{UserID: m.UserID, Role: m.Role, Active: m.IsActive()}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

const maxSlugLength = 63

// ValidSlug reports whether s is a URL-safe organization slug.
func ValidSlug(s string) bool {
	return len(s) <= maxSlugLength && slugPattern.MatchString(s)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a slug from a display name.
func Slugify(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	return s
}
