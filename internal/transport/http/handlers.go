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

// Package http is the HTTP surface of CyberVault. Every organization route
// runs behind the Authorizer, which resolves the caller's role for the
// target organization before any handler touches data.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/credential"
	"github.com/cybervault/cybervault/internal/observability/metrics"
	"github.com/cybervault/cybervault/internal/report"
	"github.com/cybervault/cybervault/internal/rule"
	"github.com/cybervault/cybervault/internal/scan"
	"github.com/cybervault/cybervault/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tenants     *tenant.Service
	credentials *credential.Service
	rules       *rule.Service
	scans       *scan.Service
	audit       *audit.Service
	reports     *report.Service
}

// Services groups the domain services the handlers call
type Services struct {
	Tenants     *tenant.Service
	Credentials *credential.Service
	Rules       *rule.Service
	Scans       *scan.Service
	Audit       *audit.Service
	Reports     *report.Service
}

// NewHandler creates a new HTTP handler
func NewHandler(s Services) *Handler {
	return &Handler{
		tenants:     s.Tenants,
		credentials: s.Credentials,
		rules:       s.Rules,
		scans:       s.Scans,
		audit:       s.Audit,
		reports:     s.Reports,
	}
}

// RouterConfig holds the cross-cutting collaborators of the router
type RouterConfig struct {
	Authorizer *Authorizer
	// Limiter is optional.
	Limiter Limiter
	// Metrics is optional; when set, /metrics is served.
	Metrics        *metrics.HTTPMetrics
	RequestTimeout time.Duration
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	az := cfg.Authorizer
	org := OrgFromRequest
	need := func(perms ...authz.Permission) func(http.Handler) http.Handler {
		return az.Authorize(authz.RequireAll(perms...), org)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if cfg.Limiter != nil {
		r.Use(RateLimitMiddleware(cfg.Limiter))
	}
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Instrument)
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", h.HealthCheck)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Caller-scoped routes: authentication only.
		r.Group(func(r chi.Router) {
			r.Use(az.Authenticate)
			r.Post("/orgs", h.CreateOrganization)
			r.Get("/orgs", h.ListOrganizations)
		})

		r.Route("/orgs/{orgID}", func(r chi.Router) {
			r.With(need(authz.PermViewDashboard)).Get("/", h.GetOrganization)
			r.With(need(authz.PermManageOrganization)).Patch("/", h.UpdateOrganization)
			r.With(need(authz.PermDeleteOrganization)).Delete("/", h.DeleteOrganization)
			r.With(az.Authorize(authz.MembershipOnly, org)).Get("/permissions", h.GetPermissions)

			r.Route("/members", func(r chi.Router) {
				r.With(need(authz.PermViewDashboard)).Get("/", h.ListMembers)
				r.With(need(authz.PermManageTeamMembers)).Post("/", h.InviteMember)
				r.With(az.Authenticate).Post("/accept", h.AcceptInvitation)
				r.With(need(authz.PermManageTeamMembers)).Patch("/{userID}", h.ChangeMemberRole)
				r.With(need(authz.PermManageTeamMembers)).Post("/{userID}/disable", h.DisableMember)
				r.With(need(authz.PermManageTeamMembers)).Delete("/{userID}", h.RemoveMember)
			})

			r.Route("/credentials", func(r chi.Router) {
				r.Use(need(authz.PermManageCredentials))
				r.Get("/", h.ListCredentials)
				r.Post("/", h.CreateCredential)
				r.Get("/{credentialID}", h.GetCredential)
				r.Post("/{credentialID}/rotate", h.RotateCredential)
				r.Delete("/{credentialID}", h.RevokeCredential)
			})

			r.With(need(authz.PermViewRules)).Get("/rules", h.ListRules)
			r.With(need(authz.PermManageRules)).Post("/rules", h.CreateRule)
			r.With(need(authz.PermViewScans)).Get("/scans", h.ListScans)
			r.With(need(authz.PermRunScans)).Post("/scans", h.CreateScan)
			r.With(need(authz.PermViewScans)).Get("/findings", h.ListAllResults)

			r.With(need(authz.PermViewAuditLogs)).Get("/audit-logs", h.ListAuditLogs)
			r.With(need(authz.PermViewAuditLogs)).Get("/audit-logs/verify", h.VerifyAuditLogs)
		})

		// Resource routes name their organization in the body or the
		// org_id query parameter.
		r.Route("/rules/{ruleID}", func(r chi.Router) {
			r.With(need(authz.PermViewRules)).Get("/", h.GetRule)
			r.With(need(authz.PermManageRules)).Put("/", h.UpdateRule)
			r.With(need(authz.PermManageRules)).Delete("/", h.DeleteRule)
			r.With(need(authz.PermViewRules)).Get("/versions", h.ListRuleVersions)
			r.With(need(authz.PermManageRules)).Post("/restore", h.RestoreRule)
			r.With(need(authz.PermViewRules)).Post("/evaluate", h.EvaluateRule)
		})

		r.Route("/scans/{scanID}", func(r chi.Router) {
			r.With(need(authz.PermViewScans)).Get("/", h.GetScan)
			r.With(need(authz.PermViewScans)).Get("/results", h.ListScanResults)
			r.With(need(authz.PermRunScans)).Patch("/results/{resultID}", h.UpdateScanResult)
			r.With(need(authz.PermRunScans)).Post("/{action}", h.TransitionScan)
		})

		r.With(az.Authorize(report.ExportRequirement, org)).Post("/reports/export", h.ExportReport)
		r.With(az.Authorize(report.ExportRequirement, org)).HandleFunc("/reports/scheduled-exports", NotImplemented)

		r.With(az.Authorize(authz.MembershipOnly, org)).Post("/auth/check-org-role", h.CheckOrgRole)
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "cybervault",
	})
}

// principal returns the request's principal. The Authorizer guarantees it
// for every route that reaches a handler using it.
func principal(w http.ResponseWriter, r *http.Request) (authz.Principal, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		respondErr(w, r, authz.ErrAccessDenied)
	}
	return p, ok
}
