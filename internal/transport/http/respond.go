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
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/observability/logger"
	"github.com/cybervault/cybervault/internal/validate"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind authz.Kind) int {
	switch kind {
	case authz.KindUnauthenticated:
		return http.StatusUnauthorized
	case authz.KindForbidden:
		return http.StatusForbidden
	case authz.KindBadRequest:
		return http.StatusBadRequest
	case authz.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err with its kind's status. Every Forbidden error,
// whether a role denial, a missing row or another tenant's row, carries the
// same body.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := authz.KindOf(err)
	status := statusOf(kind)

	message := authz.MessageOf(err)
	if kind == authz.KindForbidden {
		message = authz.ErrAccessDenied.Message
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
	}
	respondError(w, status, message)
}

// decodeJSON reads a bounded JSON body into dst and validates its struct tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return authz.BadRequest("request body is required")
		}
		return authz.BadRequest("invalid request body")
	}
	return validate.Struct(dst)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address without its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
