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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cybervault/cybervault/internal/audit"
	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/identity"
	"github.com/cybervault/cybervault/internal/observability/logger"
)

// RoleResolver looks up the role of an active member.
type RoleResolver interface {
	ResolveRole(ctx context.Context, scope authz.Scope, userID string) (authz.Role, error)
}

// OrgSource extracts the target organization from a request. An empty
// result means none was supplied.
type OrgSource func(r *http.Request) string

// Authorization steps, in the order they run. Used in denial logs and
// metrics.
const (
	stepCredential = "credential"
	stepIdentity   = "identity"
	stepOrg        = "organization"
	stepMembership = "membership"
	stepPermission = "permission"
)

// AuthorizerConfig bounds the lookups the middleware performs.
type AuthorizerConfig struct {
	IdentityTimeout   time.Duration
	MembershipTimeout time.Duration
	// DataTimeout bounds the handler's work after authorization. Zero
	// leaves only the request timeout.
	DataTimeout time.Duration
	// Denials counts rejected requests by step. Optional.
	Denials metric.Int64Counter
	// Security receives every decision. Defaults to the default logger.
	Security *logger.SecurityLogger
}

// Authorizer is the edge authorization middleware. It runs the credential,
// identity, organization, membership and permission checks in that order
// and touches no data before all of them pass.
type Authorizer struct {
	resolver identity.Resolver
	roles    RoleResolver
	cfg      AuthorizerConfig
}

// NewAuthorizer creates a new authorizer
func NewAuthorizer(resolver identity.Resolver, roles RoleResolver, cfg AuthorizerConfig) *Authorizer {
	if cfg.IdentityTimeout <= 0 {
		cfg.IdentityTimeout = 5 * time.Second
	}
	if cfg.MembershipTimeout <= 0 {
		cfg.MembershipTimeout = 5 * time.Second
	}
	if cfg.Security == nil {
		cfg.Security = logger.NewSecurityLogger(slog.Default())
	}
	return &Authorizer{resolver: resolver, roles: roles, cfg: cfg}
}

// Authenticate runs only the credential and identity steps. It guards
// routes that act on the caller rather than on an organization.
func (a *Authorizer) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		ctx := withIdentity(r.Context(), id)
		ctx = audit.WithRequestInfo(ctx, clientIP(r), r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authorize returns middleware that admits a request only when its caller
// is an active member of the organization named by orgFrom and the
// member's role satisfies req.
func (a *Authorizer) Authorize(req authz.Requirement, orgFrom OrgSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Steps 1 and 2.
			id, ok := a.authenticate(w, r)
			if !ok {
				return
			}

			// Step 3.
			orgID := orgFrom(r)
			if orgID == "" {
				a.deny(r, stepOrg, "", id.UserID, "", authz.ErrMissingOrganization)
				respondErr(w, r, authz.ErrMissingOrganization)
				return
			}
			scope, err := authz.NewScope(orgID)
			if err != nil {
				a.deny(r, stepOrg, "", id.UserID, "", err)
				respondErr(w, r, err)
				return
			}

			// Step 4.
			role, err := a.resolveRole(r.Context(), scope, id.UserID)
			if err != nil {
				a.deny(r, stepMembership, orgID, id.UserID, "", err)
				if authz.KindOf(err) == authz.KindInternal {
					respondErr(w, r, err)
					return
				}
				respondErr(w, r, authz.ErrAccessDenied)
				return
			}

			// Step 5.
			if !req.Allows(role) {
				a.deny(r, stepPermission, orgID, id.UserID, req.String(),
					fmt.Errorf("insufficient role %s", role))
				respondErr(w, r, authz.ErrAccessDenied)
				return
			}

			// Step 6.
			a.cfg.Security.AccessGranted(r.Context(), id.UserID, orgID, role.String(), req.String())
			ctx := withIdentity(r.Context(), id)
			ctx = withPrincipal(ctx, authz.Principal{
				UserID: id.UserID,
				Email:  id.Email,
				Role:   role,
				Scope:  scope,
				Type:   authz.ActorUser,
			})
			ctx = audit.WithRequestInfo(ctx, clientIP(r), r.UserAgent())
			if a.cfg.DataTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.cfg.DataTimeout)
				defer cancel()
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authorizer) authenticate(w http.ResponseWriter, r *http.Request) (*identity.Identity, bool) {
	token, ok := bearerToken(r)
	if !ok {
		a.deny(r, stepCredential, "", "", "", errors.New("missing bearer credential"))
		respondErr(w, r, authz.Unauthenticated("missing bearer credential"))
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.IdentityTimeout)
	defer cancel()

	id, err := a.resolver.Resolve(ctx, token)
	if err != nil || id == nil || id.UserID == "" {
		a.deny(r, stepIdentity, "", "", "", identity.ErrInvalidCredential)
		respondErr(w, r, authz.Unauthenticated("invalid credential"))
		return nil, false
	}
	return id, true
}

// resolveRole bounds the membership lookup. A timeout is a denial, never an
// implicit allow.
func (a *Authorizer) resolveRole(ctx context.Context, scope authz.Scope, userID string) (authz.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.MembershipTimeout)
	defer cancel()

	role, err := a.roles.ResolveRole(ctx, scope, userID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return authz.RoleUnknown, authz.ErrAccessDenied
		}
		return authz.RoleUnknown, err
	}
	if !role.Valid() {
		return authz.RoleUnknown, authz.ErrAccessDenied
	}
	return role, nil
}

func (a *Authorizer) deny(r *http.Request, step, orgID, userID, requirement string, err error) {
	ctx := r.Context()
	switch step {
	case stepCredential, stepIdentity:
		a.cfg.Security.AuthenticationFailed(ctx, r.URL.Path, err.Error(), clientIP(r))
	default:
		a.cfg.Security.AccessDenied(ctx, userID, orgID, step, requirement, err.Error())
	}

	if a.cfg.Denials != nil {
		a.cfg.Denials.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// OrgFromRequest looks for the organization in the {orgID} path parameter,
// then the org_id field of a JSON body, then the org_id query parameter.
// A consumed body is restored for the handler.
func OrgFromRequest(r *http.Request) string {
	if orgID := chi.URLParam(r, "orgID"); orgID != "" {
		return orgID
	}
	if orgID := orgFromBody(r); orgID != "" {
		return orgID
	}
	return r.URL.Query().Get("org_id")
}

func orgFromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(buf))
	if err != nil || len(buf) == 0 {
		return ""
	}

	var payload struct {
		OrgID string `json:"org_id"`
	}
	if err := json.Unmarshal(buf, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.OrgID)
}
