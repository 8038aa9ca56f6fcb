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

// Package identity resolves bearer credentials to user identities. The token
// format belongs to the external auth provider; this package only verifies
// it and extracts the subject.
package identity

import (
	"context"
	"errors"
)

// ErrInvalidCredential is returned for every resolution failure. Callers
// must not distinguish expired, malformed and forged tokens.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is an authenticated user.
type Identity struct {
	UserID  string
	Email   string
	Subject string
	Issuer  string
}

// Resolver turns a bearer token into an Identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, token string) (*Identity, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}
