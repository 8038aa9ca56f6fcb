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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/credential"
	"github.com/cybervault/cybervault/internal/identity"
	"github.com/cybervault/cybervault/internal/report"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/scan"
	"github.com/cybervault/cybervault/internal/store/memory"
	"github.com/cybervault/cybervault/internal/tenant"
	"github.com/cybervault/cybervault/internal/vault"
)

const testSecret = "router-test-secret-with-at-least-32-bytes"

type testServer struct {
	t        *testing.T
	router   http.Handler
	store    *memory.Store
	resolver *identity.JWTResolver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()

	dispatcher := audit.NewDispatcher(audit.DispatcherConfig{}, audit.NewRepositorySink(store.AuditLogs()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = dispatcher.Close(ctx)
	})

	provider, err := vault.NewEncryptedStore("router-test-master-key", store.Secrets())
	require.NoError(t, err)
	resolver, err := identity.NewJWTResolver(testSecret, "cybervault-test", "cybervault")
	require.NoError(t, err)

	tenants := tenant.NewService(store.Organizations(), store.Members(), dispatcher)
	rules := rule.NewService(store.Rules(), dispatcher)
	executor := scan.NewExecutor(store.Scans(), store.Rules(), nil, nil)
	scans := scan.NewService(store.Scans(), store.Rules(), executor, dispatcher)
	audits := audit.NewService(store.AuditLogs())

	h := NewHandler(Services{
		Tenants:     tenants,
		Credentials: credential.NewService(store.Credentials(), provider, dispatcher),
		Rules:       rules,
		Scans:       scans,
		Audit:       audits,
		Reports:     report.NewService(audits, scans, rules, dispatcher),
	})
	router := NewRouter(h, RouterConfig{
		Authorizer: NewAuthorizer(resolver, tenants, AuthorizerConfig{}),
	})

	return &testServer{t: t, router: router, store: store, resolver: resolver}
}

func (s *testServer) token(userID string) string {
	s.t.Helper()
	tok, err := s.resolver.IssueToken(userID, userID+"@example.com", time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) call(method, path, userID string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(userID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

// createOrg creates an organization owned by userID and returns its id.
func (s *testServer) createOrg(userID, name string) string {
	s.t.Helper()
	w := s.call(http.MethodPost, "/api/v1/orgs", userID, map[string]string{"name": name})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var org tenant.Organization
	decodeInto(s.t, w, &org)
	return org.ID
}

// join invites userID into orgID with role and accepts the invitation.
func (s *testServer) join(orgID, ownerID, userID, role string) {
	s.t.Helper()
	w := s.call(http.MethodPost, "/api/v1/orgs/"+orgID+"/members", ownerID,
		map[string]string{"user_id": userID, "email": userID + "@example.com", "role": role})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	w = s.call(http.MethodPost, "/api/v1/orgs/"+orgID+"/members/accept", userID, nil)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
}

func credentialNames(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var payload struct {
		Credentials []credential.Credential `json:"credentials"`
	}
	decodeInto(t, w, &payload)
	names := make([]string, 0, len(payload.Credentials))
	for _, c := range payload.Credentials {
		names = append(names, c.Name)
	}
	return names
}

func newCredential(name string) credential.CreateInput {
	return credential.CreateInput{Name: name, Type: credential.TypeAPIKey, Value: "s3cr3t-value"}
}

// TestPurpose: Validates a credential created in one organization is visible only there.
// Scope: Integration Test (HTTP, memory store)
// Security: Tenant isolation of credentials; secrets never returned
// Expected: 201 with an opaque reference; listed in org A and absent from org B.
// Test Case ID: HTTP-RT-01
func TestRouter_CredentialIsolation(t *testing.T) {
	s := newTestServer(t)
	orgA := s.createOrg("alice", "Org A")
	orgB := s.createOrg("dave", "Org B")

	w := s.call(http.MethodPost, "/api/v1/orgs/"+orgA+"/credentials", "alice", newCredential("e2e-cred"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "s3cr3t-value")
	var created credential.Credential
	decodeInto(t, w, &created)
	assert.NotEmpty(t, created.SecretRef)

	w = s.call(http.MethodGet, "/api/v1/orgs/"+orgA+"/credentials", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, credentialNames(t, w), "e2e-cred")

	w = s.call(http.MethodGet, "/api/v1/orgs/"+orgB+"/credentials", "dave", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, credentialNames(t, w), "e2e-cred")
}

// TestPurpose: Validates a member cannot create credentials and a foreign admin gets the same denial.
// Scope: Integration Test (HTTP, memory store)
// Security: Role enforcement and cross-tenant denial are indistinguishable
// Expected: Both are 403 with identical bodies and no credential row is created.
// Test Case ID: HTTP-RT-02
func TestRouter_MemberDeniedAndCrossOrgIdentical(t *testing.T) {
	s := newTestServer(t)
	orgA := s.createOrg("alice", "Org A")
	orgB := s.createOrg("dave", "Org B")
	s.join(orgA, "alice", "bob", "member")

	denied := s.call(http.MethodPost, "/api/v1/orgs/"+orgA+"/credentials", "bob", newCredential("bob-cred"))
	assert.Equal(t, http.StatusForbidden, denied.Code)

	foreign := s.call(http.MethodGet, "/api/v1/orgs/"+orgB+"/credentials", "alice", nil)
	assert.Equal(t, http.StatusForbidden, foreign.Code)
	assert.Equal(t, denied.Body.String(), foreign.Body.String())

	w := s.call(http.MethodGet, "/api/v1/orgs/"+orgA+"/credentials", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, credentialNames(t, w))
}

// TestPurpose: Validates a resource id from another organization is denied like a missing one.
// Scope: Integration Test (HTTP, memory store)
// Security: Resource routes scope lookups to the authorized organization
// Expected: Naming org B is 403 for alice, naming org A with B's rule id is 403 with the same body.
// Test Case ID: HTTP-RT-03
func TestRouter_CrossOrgRuleLookup(t *testing.T) {
	s := newTestServer(t)
	orgA := s.createOrg("alice", "Org A")
	orgB := s.createOrg("dave", "Org B")

	w := s.call(http.MethodPost, "/api/v1/orgs/"+orgB+"/rules", "dave", RuleRequest{Content: rule.Content{
		Name:     "tls",
		Severity: rule.SeverityHigh,
		Conditions: rule.Condition{All: []rule.Condition{
			{Fact: "tls_version", Operator: rule.OpLessThan, Value: 1.2},
		}},
		Event:  rule.Event{Type: "weak-tls"},
		Active: true,
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var r rule.Rule
	decodeInto(t, w, &r)

	viaB := s.call(http.MethodGet, "/api/v1/rules/"+r.ID+"?org_id="+orgB, "alice", nil)
	viaA := s.call(http.MethodGet, "/api/v1/rules/"+r.ID+"?org_id="+orgA, "alice", nil)
	assert.Equal(t, http.StatusForbidden, viaB.Code)
	assert.Equal(t, http.StatusForbidden, viaA.Code)
	assert.Equal(t, viaB.Body.String(), viaA.Body.String())

	own := s.call(http.MethodGet, "/api/v1/rules/"+r.ID+"?org_id="+orgB, "dave", nil)
	assert.Equal(t, http.StatusOK, own.Code)
}

// TestPurpose: Validates the sole administrator cannot disable their own membership.
// Scope: Integration Test (HTTP, memory store)
// Security: Organization lockout prevention
// Expected: 409 and carol is still the active owner afterwards.
// Test Case ID: HTTP-RT-04
func TestRouter_SoleAdministratorCannotBeDisabled(t *testing.T) {
	s := newTestServer(t)
	orgA := s.createOrg("carol", "Org A")

	w := s.call(http.MethodPost, "/api/v1/orgs/"+orgA+"/members/carol/disable", "carol", nil)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = s.call(http.MethodGet, "/api/v1/orgs/"+orgA+"/members", "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var payload struct {
		Members []tenant.Member `json:"members"`
	}
	decodeInto(t, w, &payload)
	require.Len(t, payload.Members, 1)
	assert.Equal(t, "carol", payload.Members[0].UserID)
	assert.Equal(t, "owner", payload.Members[0].Role.String())
	assert.True(t, payload.Members[0].IsActive())
}

// TestPurpose: Validates export format handling and the export permission.
// Scope: Integration Test (HTTP, memory store)
// Security: Report exports require an export permission
// Expected: Invalid format 400; csv by an auditor 200 text/csv with a body; a member 403.
// Test Case ID: HTTP-RT-05
func TestRouter_ReportExport(t *testing.T) {
	s := newTestServer(t)
	orgA := s.createOrg("alice", "Org A")
	s.join(orgA, "alice", "erin", "auditor")
	s.join(orgA, "alice", "bob", "member")

	w := s.call(http.MethodPost, "/api/v1/reports/export", "erin",
		ExportRequest{OrgID: orgA, ReportType: "audit", Format: "invalid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.call(http.MethodPost, "/api/v1/reports/export", "erin",
		ExportRequest{OrgID: orgA, ReportType: "audit", Format: "csv"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;"))
	assert.NotEmpty(t, w.Body.Bytes())

	w = s.call(http.MethodPost, "/api/v1/reports/export", "bob",
		ExportRequest{OrgID: orgA, ReportType: "audit", Format: "csv"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// TestPurpose: Validates unauthenticated, unimplemented and introspection routes.
// Scope: Integration Test (HTTP, memory store)
// Security: Every organization route requires a credential
// Expected: 401 without a token, 501 for scheduled exports, permissions list the role's grants.
// Test Case ID: HTTP-RT-06
func TestRouter_SurfaceBasics(t *testing.T) {
	s := newTestServer(t)
	orgA := s.createOrg("alice", "Org A")
	s.join(orgA, "alice", "bob", "member")

	assert.Equal(t, http.StatusOK, s.call(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		s.call(http.MethodGet, "/api/v1/orgs/"+orgA+"/credentials", "", nil).Code)
	assert.Equal(t, http.StatusNotImplemented,
		s.call(http.MethodPost, "/api/v1/reports/scheduled-exports", "alice",
			map[string]string{"org_id": orgA}).Code)

	w := s.call(http.MethodGet, "/api/v1/orgs/"+orgA+"/permissions", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var perms struct {
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	decodeInto(t, w, &perms)
	assert.Equal(t, "member", perms.Role)
	assert.Contains(t, perms.Permissions, "view_dashboard")
	assert.NotContains(t, perms.Permissions, "manage_credentials")
}

// TestPurpose: Validates check-org-role compares permission sets.
// Scope: Integration Test (HTTP, memory store)
// Security: Role introspection cannot be used to escalate
// Expected: An admin satisfies member, a member does not satisfy admin, an unknown role is 400.
// Test Case ID: HTTP-RT-07
func TestRouter_CheckOrgRole(t *testing.T) {
	s := newTestServer(t)
	orgA := s.createOrg("alice", "Org A")
	s.join(orgA, "alice", "bob", "member")

	check := func(userID, role string) int {
		return s.call(http.MethodPost, "/api/v1/auth/check-org-role", userID,
			CheckOrgRoleRequest{OrgID: orgA, RequiredRole: role}).Code
	}
	assert.Equal(t, http.StatusOK, check("alice", "member"))
	assert.Equal(t, http.StatusForbidden, check("bob", "admin"))
	assert.Equal(t, http.StatusBadRequest, check("bob", "superuser"))
}
