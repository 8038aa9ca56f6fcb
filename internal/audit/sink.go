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
	"log/slog"
	"strings"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/observability/logger"
)

// SlogSink mirrors audit entries to the structured log.
type SlogSink struct{}

// NewSlogSink creates a new slog audit sink
func NewSlogSink() *SlogSink {
	return &SlogSink{}
}

// Write logs the entry as an AUDIT_EVENT record
func (s *SlogSink) Write(ctx context.Context, e Entry) error {
	attrs := []any{
		slog.String("audit_id", e.ID),
		slog.String("audit_action", e.Action),
		logger.OrgID(e.OrgID),
		slog.String("actor_id", e.ActorID),
		logger.ResourceType(e.ResourceType),
		slog.String("outcome", string(e.Outcome)),
		slog.Time("timestamp", e.Timestamp),
	}

	if e.ResourceID != "" {
		attrs = append(attrs, logger.ResourceID(e.ResourceID))
	}
	if e.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", e.IPAddress))
	}
	if e.UserAgent != "" {
		attrs = append(attrs, logger.UserAgent(e.UserAgent))
	}

	if len(e.Details) > 0 {
		group := []any{}
		for k, v := range e.Details {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("details", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, logger.Component("audit"))...)
	return nil
}

// isSecret checks if a detail key likely holds a secret
func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, s := range []string{"password", "secret", "token", "authorization", "api_key", "value"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// RepositorySink appends entries to an audit Repository.
type RepositorySink struct {
	repo Repository
}

// NewRepositorySink creates a sink backed by repo
func NewRepositorySink(repo Repository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

// Write appends the entry. Entries without an organization are not
// persisted; they only reach the log.
func (s *RepositorySink) Write(ctx context.Context, e Entry) error {
	scope, err := authz.NewScope(e.OrgID)
	if err != nil {
		return nil
	}
	return s.repo.Append(ctx, scope, &e)
}
