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
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/rule"
)

// RuleRequest is the body of rule create and update calls. OrgID is only
// read by the authorization middleware on routes without {orgID}.
type RuleRequest struct {
	OrgID string `json:"org_id,omitempty"`
	rule.Content
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// ListRules lists the organization's rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	rules, err := h.rules.List(r.Context(), p, rule.ListFilter{
		IncludeDeleted: queryBool(r, "include_deleted"),
		ActiveOnly:     queryBool(r, "active"),
		Framework:      r.URL.Query().Get("framework"),
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// CreateRule creates a rule at version 1
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req RuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	created, err := h.rules.Create(r.Context(), p, req.Content)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// GetRule returns one rule
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	found, err := h.rules.Get(r.Context(), p, chi.URLParam(r, "ruleID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, found)
}

// UpdateRule replaces a rule's content as a new version
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req RuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	updated, err := h.rules.Update(r.Context(), p, chi.URLParam(r, "ruleID"), req.Content)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// DeleteRule marks a rule deleted
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	deleted, err := h.rules.Delete(r.Context(), p, chi.URLParam(r, "ruleID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, deleted)
}

// ListRuleVersions lists the snapshots of a rule
func (h *Handler) ListRuleVersions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	versions, err := h.rules.Versions(r.Context(), p, chi.URLParam(r, "ruleID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// RestoreRuleRequest names the version to restore
type RestoreRuleRequest struct {
	OrgID   string `json:"org_id,omitempty"`
	Version int    `json:"version" validate:"required,min=1"`
}

// RestoreRule applies an earlier version's content as a new version
func (h *Handler) RestoreRule(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req RestoreRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	restored, err := h.rules.Restore(r.Context(), p, chi.URLParam(r, "ruleID"), req.Version)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, restored)
}

// EvaluateRuleRequest carries the facts for a dry run
type EvaluateRuleRequest struct {
	OrgID string         `json:"org_id,omitempty"`
	Facts map[string]any `json:"facts"`
}

// EvaluateRule reports whether a rule matches the given facts
func (h *Handler) EvaluateRule(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req EvaluateRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	if req.Facts == nil {
		respondErr(w, r, authz.BadRequest("facts is required"))
		return
	}

	matched, err := h.rules.Evaluate(r.Context(), p, chi.URLParam(r, "ruleID"), req.Facts)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"matched": matched})
}
