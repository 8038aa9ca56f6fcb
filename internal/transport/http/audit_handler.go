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
	"time"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
)

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, authz.BadRequest(name + " must be an RFC 3339 timestamp")
	}
	return &t, nil
}

// ListAuditLogs lists the organization's audit entries, newest first
// unless order=asc is given.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:       q.Get("action"),
		ActorID:      q.Get("actor"),
		ResourceType: q.Get("resource"),
		Outcome:      audit.Outcome(q.Get("outcome")),
		Ascending:    q.Get("order") == "asc",
	}

	var err error
	if filter.From, err = queryTime(r, "from"); err != nil {
		respondErr(w, r, err)
		return
	}
	if filter.To, err = queryTime(r, "to"); err != nil {
		respondErr(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		respondErr(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		respondErr(w, r, err)
		return
	}

	entries, err := h.audit.List(r.Context(), p, filter)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// VerifyAuditLogs checks the organization's hash chain
func (h *Handler) VerifyAuditLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	result, err := h.audit.Verify(r.Context(), p)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
