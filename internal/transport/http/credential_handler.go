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

	"github.com/cybervault/cybervault/internal/credential"
)

// ListCredentials lists the organization's credentials without secrets
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	creds, err := h.credentials.List(r.Context(), p)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}

// CreateCredential stores a secret in the vault and records the credential
func (h *Handler) CreateCredential(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req credential.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	c, err := h.credentials.Create(r.Context(), p, req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// GetCredential returns one credential without its secret
func (h *Handler) GetCredential(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	c, err := h.credentials.Get(r.Context(), p, chi.URLParam(r, "credentialID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// RotateCredentialRequest carries the replacement secret
type RotateCredentialRequest struct {
	Value string `json:"value" validate:"required"`
}

// RotateCredential replaces the secret value
func (h *Handler) RotateCredential(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req RotateCredentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	c, err := h.credentials.Rotate(r.Context(), p, chi.URLParam(r, "credentialID"), req.Value)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// RevokeCredential revokes the credential and its secret
func (h *Handler) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.credentials.Revoke(r.Context(), p, chi.URLParam(r, "credentialID")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
