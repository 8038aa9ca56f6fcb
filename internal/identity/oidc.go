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

package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCResolver verifies tokens issued by an OpenID Connect provider.
type OIDCResolver struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCResolver discovers the provider at issuerURL
func NewOIDCResolver(ctx context.Context, issuerURL, clientID string) (*OIDCResolver, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCResolver{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// NewOIDCResolverWithVerifier wraps an existing verifier
func NewOIDCResolverWithVerifier(verifier *oidc.IDTokenVerifier) *OIDCResolver {
	return &OIDCResolver{verifier: verifier}
}

// Resolve verifies the token against the provider's keys.
func (r *OIDCResolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	idToken, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, ErrInvalidCredential
	}
	if idToken.Subject == "" {
		return nil, ErrInvalidCredential
	}

	email := ""
	if claims.EmailVerified {
		email = claims.Email
	}

	return &Identity{
		UserID:  idToken.Subject,
		Email:   email,
		Subject: idToken.Subject,
		Issuer:  idToken.Issuer,
	}, nil
}
