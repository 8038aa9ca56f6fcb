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
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// TestPurpose: Validates that a token issued for the API resolves to its subject.
// Scope: Unit Test
// Expected: UserID and Email come from the sub and email claims.
// Test Case ID: IDN-01
func TestJWTResolver_RoundTrip(t *testing.T) {
	r, err := NewJWTResolver(testSecret, "cybervault", "cybervault-api")
	require.NoError(t, err)

	token, err := r.IssueToken("alice", "alice@example.com", time.Hour)
	require.NoError(t, err)

	ident, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", ident.UserID)
	assert.Equal(t, "alice@example.com", ident.Email)
}

// TestPurpose: Validates rejection of forged, expired, misdirected and algorithm-confused tokens.
// Scope: Unit Test
// Security: Credential verification (CWE-347, CWE-613)
// Expected: Every variant resolves to ErrInvalidCredential.
// Test Case ID: IDN-02
func TestJWTResolver_Rejects(t *testing.T) {
	r, err := NewJWTResolver(testSecret, "cybervault", "cybervault-api")
	require.NoError(t, err)
	other, err := NewJWTResolver("ffffffffffffffffffffffffffffffff", "cybervault", "cybervault-api")
	require.NoError(t, err)
	wrongAud, err := NewJWTResolver(testSecret, "cybervault", "other-api")
	require.NoError(t, err)

	forged, _ := other.IssueToken("alice", "", time.Hour)
	expired, _ := r.IssueToken("alice", "", -time.Hour)
	misdirected, _ := wrongAud.IssueToken("alice", "", time.Hour)
	noSubject, _ := r.IssueToken("", "", time.Hour)
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "alice", "iss": "cybervault", "aud": "cybervault-api", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"forged":      forged,
		"expired":     expired,
		"misdirected": misdirected,
		"no subject":  noSubject,
		"alg none":    unsigned,
		"garbage":     "not-a-jwt",
		"empty":       "",
	} {
		t.Run(name, func(t *testing.T) {
			ident, err := r.Resolve(context.Background(), token)
			assert.Nil(t, ident)
			assert.ErrorIs(t, err, ErrInvalidCredential)
		})
	}
}

// TestPurpose: Validates that a canceled lookup never resolves an identity.
// Scope: Unit Test
// Security: Timeouts are rejections, never implicit allows
// Expected: Resolve on a canceled context fails.
// Test Case ID: IDN-03
func TestJWTResolver_Canceled(t *testing.T) {
	r, err := NewJWTResolver(testSecret, "cybervault", "cybervault-api")
	require.NoError(t, err)
	token, _ := r.IssueToken("alice", "", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

// TestPurpose: Validates OIDC token verification against the provider's signing keys.
// Scope: Unit Test
// Expected: Tokens signed by the provider key resolve; others are rejected.
// Test Case ID: IDN-04
func TestOIDCResolver(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rogue, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issuer := "https://login.example.com"
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}}
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: "cybervault"})
	r := NewOIDCResolverWithVerifier(verifier)

	sign := func(k *rsa.PrivateKey) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":            issuer,
			"sub":            "bob",
			"aud":            "cybervault",
			"email":          "bob@example.com",
			"email_verified": true,
			"iat":            time.Now().Unix(),
			"exp":            time.Now().Add(time.Hour).Unix(),
		}).SignedString(k)
		require.NoError(t, err)
		return s
	}

	ident, err := r.Resolve(context.Background(), sign(key))
	require.NoError(t, err)
	assert.Equal(t, "bob", ident.UserID)
	assert.Equal(t, "bob@example.com", ident.Email)

	_, err = r.Resolve(context.Background(), sign(rogue))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
