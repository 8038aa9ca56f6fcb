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

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/cybervault/cybervault/internal/authz"
)

// CreateOrganizationRequest represents organization creation data
type CreateOrganizationRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"omitempty,max=64"`
}

// CreateOrganization creates an organization owned by the caller
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		respondErr(w, r, authz.Unauthenticated("invalid credential"))
		return
	}

	var req CreateOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	org, err := h.tenants.CreateOrganization(r.Context(), id.UserID, id.Email, req.Name, req.Slug)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, org)
}

// ListOrganizations lists the organizations the caller is an active member of
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		respondErr(w, r, authz.Unauthenticated("invalid credential"))
		return
	}

	orgs, err := h.tenants.ListOrganizations(r.Context(), id.UserID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

// GetOrganization returns the organization
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	org, err := h.tenants.GetOrganization(r.Context(), p)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, org)
}

// UpdateOrganizationRequest represents organization changes
type UpdateOrganizationRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// UpdateOrganization renames the organization
func (h *Handler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req UpdateOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	org, err := h.tenants.UpdateOrganization(r.Context(), p, req.Name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, org)
}

// DeleteOrganization disables the organization
func (h *Handler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.tenants.DeleteOrganization(r.Context(), p); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PermissionsResponse lists what the caller may do in the organization.
// Clients use it to disable controls; the server re-checks every request.
type PermissionsResponse struct {
	OrgID       string             `json:"org_id"`
	Role        authz.Role         `json:"role"`
	Permissions []authz.Permission `json:"permissions"`
}

// GetPermissions returns the caller's role and granted permissions
func (h *Handler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, PermissionsResponse{
		OrgID:       p.Scope.OrgID(),
		Role:        p.Role,
		Permissions: authz.PermissionsFor(p.Role),
	})
}

// CheckOrgRoleRequest asks whether the caller holds at least the
// permissions of RequiredRole
type CheckOrgRoleRequest struct {
	OrgID        string `json:"org_id" validate:"required"`
	RequiredRole string `json:"required_role"`
}

// CheckOrgRole returns the caller's role in org_id. With required_role set,
// it answers 403 unless the caller's permissions cover that role's.
func (h *Handler) CheckOrgRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req CheckOrgRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	if req.RequiredRole != "" {
		required := authz.ParseRole(req.RequiredRole)
		if !required.Valid() {
			respondErr(w, r, authz.BadRequest("unknown required_role"))
			return
		}
		granted := authz.PermissionsFor(p.Role)
		if !lo.Every(granted, authz.PermissionsFor(required)) {
			respondErr(w, r, authz.ErrAccessDenied)
			return
		}
	}

	respondJSON(w, http.StatusOK, PermissionsResponse{
		OrgID:       p.Scope.OrgID(),
		Role:        p.Role,
		Permissions: authz.PermissionsFor(p.Role),
	})
}

// ListMembers lists the organization's memberships
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	members, err := h.tenants.ListMembers(r.Context(), p)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"members": members})
}

// InviteMemberRequest represents an invitation
type InviteMemberRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Email  string `json:"email" validate:"omitempty,email"`
	Role   string `json:"role" validate:"required"`
}

// InviteMember invites a user with a role
func (h *Handler) InviteMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req InviteMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	m, err := h.tenants.InviteMember(r.Context(), p, req.UserID, req.Email, authz.ParseRole(req.Role))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// AcceptInvitation activates the caller's pending membership
func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		respondErr(w, r, authz.Unauthenticated("invalid credential"))
		return
	}
	scope, err := authz.NewScope(chi.URLParam(r, "orgID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}

	m, err := h.tenants.AcceptInvitation(r.Context(), scope, id.UserID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// ChangeRoleRequest represents a role change
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// ChangeMemberRole assigns a new role to a member
func (h *Handler) ChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	m, err := h.tenants.ChangeRole(r.Context(), p, chi.URLParam(r, "userID"), authz.ParseRole(req.Role))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// DisableMember suspends a membership
func (h *Handler) DisableMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	m, err := h.tenants.DisableMember(r.Context(), p, chi.URLParam(r, "userID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// RemoveMember removes a membership
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	m, err := h.tenants.RemoveMember(r.Context(), p, chi.URLParam(r, "userID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}
