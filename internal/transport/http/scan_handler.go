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
	"github.com/cybervault/cybervault/internal/scan"
)

// ScanRequest is the body of a scan create call
type ScanRequest struct {
	OrgID string `json:"org_id,omitempty"`
	scan.CreateInput
}

// ResultStatusRequest updates the triage status of a finding
type ResultStatusRequest struct {
	OrgID  string            `json:"org_id,omitempty"`
	Status scan.ResultStatus `json:"status" validate:"required"`
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, authz.BadRequest(name + " must be a non-negative integer")
	}
	return n, nil
}

// ListScans lists the organization's scans, newest first
func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		respondErr(w, r, err)
		return
	}

	scans, err := h.scans.List(r.Context(), p, scan.ListFilter{
		Status: scan.Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"scans": scans})
}

// CreateScan creates a pending scan
func (h *Handler) CreateScan(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req ScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	created, err := h.scans.Create(r.Context(), p, req.CreateInput)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// GetScan returns one scan
func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	found, err := h.scans.Get(r.Context(), p, chi.URLParam(r, "scanID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, found)
}

// TransitionScan starts, pauses, resumes or cancels a scan
func (h *Handler) TransitionScan(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	action := scan.Action(chi.URLParam(r, "action"))

	updated, err := h.scans.Transition(r.Context(), p, chi.URLParam(r, "scanID"), action)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// ListScanResults lists the findings of one scan
func (h *Handler) ListScanResults(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	results, err := h.scans.Results(r.Context(), p, chi.URLParam(r, "scanID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ListAllResults lists the findings of every scan in the organization
func (h *Handler) ListAllResults(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	results, err := h.scans.AllResults(r.Context(), p)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// UpdateScanResult changes the triage status of a finding
func (h *Handler) UpdateScanResult(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req ResultStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	updated, err := h.scans.UpdateResultStatus(r.Context(), p,
		chi.URLParam(r, "scanID"), chi.URLParam(r, "resultID"), req.Status)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
