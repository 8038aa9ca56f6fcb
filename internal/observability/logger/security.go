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

package logger

import (
	"context"
	"log/slog"
)

// SecurityEvent is an authentication or authorization decision worth
// recording in the operational log. It is not an audit entry: denials happen
// before an organization is confirmed, so they cannot be tenant-attributed.
type SecurityEvent struct {
	EventType   string
	UserID      string
	OrgID       string
	IPAddress   string
	Path        string
	Step        string
	Requirement string
	Result      string // granted, denied
	Reason      string
}

// SecurityLogger records authentication and authorization decisions
type SecurityLogger struct {
	logger *slog.Logger
}

// NewSecurityLogger creates a new security logger
func NewSecurityLogger(logger *slog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With(Component("authz")),
	}
}

// Log logs a security event
func (s *SecurityLogger) Log(ctx context.Context, level slog.Level, event SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.String("result", event.Result),
	}

	if event.UserID != "" {
		attrs = append(attrs, UserID(event.UserID))
	}
	if event.OrgID != "" {
		attrs = append(attrs, OrgID(event.OrgID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Path != "" {
		attrs = append(attrs, Path(event.Path))
	}
	if event.Step != "" {
		attrs = append(attrs, Step(event.Step))
	}
	if event.Requirement != "" {
		attrs = append(attrs, Requirement(event.Requirement))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	s.logger.LogAttrs(ctx, level, "security_event", attrs...)
}

// AuthenticationFailed records a rejected bearer credential
func (s *SecurityLogger) AuthenticationFailed(ctx context.Context, path, reason, ipAddr string) {
	s.Log(ctx, slog.LevelWarn, SecurityEvent{
		EventType: "authentication",
		IPAddress: ipAddr,
		Path:      path,
		Step:      "identity",
		Result:    "denied",
		Reason:    reason,
	})
}

// AccessDenied records a rejected authorization step
func (s *SecurityLogger) AccessDenied(ctx context.Context, userID, orgID, step, requirement, reason string) {
	s.Log(ctx, slog.LevelWarn, SecurityEvent{
		EventType:   "authorization",
		UserID:      userID,
		OrgID:       orgID,
		Step:        step,
		Requirement: requirement,
		Result:      "denied",
		Reason:      reason,
	})
}

// AccessGranted records a successful authorization at debug level
func (s *SecurityLogger) AccessGranted(ctx context.Context, userID, orgID, role, requirement string) {
	s.Log(ctx, slog.LevelDebug, SecurityEvent{
		EventType:   "authorization",
		UserID:      userID,
		OrgID:       orgID,
		Requirement: requirement,
		Result:      "granted",
		Reason:      "role " + role,
	})
}
