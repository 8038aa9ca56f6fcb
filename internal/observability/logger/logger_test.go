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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// TestPurpose: Validates level parsing and JSON output with service attributes.
// Scope: Unit Test
// Expected: Debug records are filtered at info level; records carry service and version.
// Test Case ID: LOG-01
func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", ServiceName: "cybervault", ServiceVersion: "1.2.3", Output: &buf})

	l.Debug("hidden")
	l.Info("visible", OrgID("org-a"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "visible", rec["msg"])
	assert.Equal(t, "cybervault", rec["service"])
	assert.Equal(t, "1.2.3", rec["version"])
	assert.Equal(t, "org-a", rec["org_id"])

	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

// TestPurpose: Validates that trace context is attached to log records.
// Scope: Unit Test
// Expected: A record logged under a span context carries its trace_id and span_id.
// Test Case ID: LOG-02
func TestTraceContextHandler(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Output: &buf})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.InfoContext(ctx, "traced")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, traceID.String(), rec["trace_id"])
	assert.Equal(t, spanID.String(), rec["span_id"])
}

// TestPurpose: Validates security events are emitted at the right level with the failing step.
// Scope: Unit Test
// Security: Denials are observable without logging credentials
// Expected: AccessDenied logs a WARN record with authz_step and requirement.
// Test Case ID: LOG-03
func TestSecurityLogger_AccessDenied(t *testing.T) {
	var buf bytes.Buffer
	sec := NewSecurityLogger(New(Config{Format: "json", Output: &buf}))

	sec.AccessDenied(context.Background(), "bob", "org-a", "permission", "manage_credentials", "insufficient role")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "permission", rec["authz_step"])
	assert.Equal(t, "manage_credentials", rec["requirement"])
	assert.Equal(t, "authz", rec["component"])
}
