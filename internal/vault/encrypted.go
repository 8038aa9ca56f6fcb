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

package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/id"
	"golang.org/x/crypto/hkdf"
)

const (
	// ProviderEncrypted names EncryptedStore references.
	ProviderEncrypted = "enc"

	hkdfInfoPrefix   = "cybervault/v1/credential-secret/"
	ciphertextPrefix = "enc:v1:"
)

// EncryptedStore keeps AES-256-GCM ciphertext in a SecretRepository. Each
// organization gets its own key derived from the master key with HKDF, so a
// ciphertext copied into another tenant's row does not decrypt.
type EncryptedStore struct {
	master []byte
	repo   SecretRepository
	now    func() time.Time
}

// NewEncryptedStore creates a provider using masterKey
func NewEncryptedStore(masterKey string, repo SecretRepository) (*EncryptedStore, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("vault: master key must not be empty")
	}
	return &EncryptedStore{
		master: []byte(masterKey),
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name returns the provider name
func (s *EncryptedStore) Name() string {
	return ProviderEncrypted
}

// StoreSecret encrypts value and stores it under a new reference
func (s *EncryptedStore) StoreSecret(ctx context.Context, orgID, name, value string, meta map[string]string) (Ref, error) {
	scope, err := authz.NewScope(orgID)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", ErrEmptySecret
	}

	ciphertext, err := s.encrypt(orgID, value)
	if err != nil {
		return "", err
	}

	now := s.now()
	secret := &Secret{
		ID:         id.NewUUIDv7(),
		OrgID:      orgID,
		Name:       name,
		Ciphertext: ciphertext,
		Metadata:   meta,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, scope, secret); err != nil {
		return "", fmt.Errorf("vault: failed to store secret: %w", err)
	}

	return NewRef(ProviderEncrypted, secret.ID), nil
}

// GetSecret decrypts the secret behind ref
func (s *EncryptedStore) GetSecret(ctx context.Context, orgID string, ref Ref) (string, error) {
	secret, err := s.load(ctx, orgID, ref)
	if err != nil {
		return "", err
	}
	if secret.RevokedAt != nil {
		return "", ErrSecretRevoked
	}
	return s.decrypt(orgID, secret.Ciphertext)
}

// RotateSecret re-encrypts a new value in place. The reference is stable.
func (s *EncryptedStore) RotateSecret(ctx context.Context, orgID string, ref Ref, newValue string) (Ref, error) {
	if newValue == "" {
		return "", ErrEmptySecret
	}
	secret, err := s.load(ctx, orgID, ref)
	if err != nil {
		return "", err
	}
	if secret.RevokedAt != nil {
		return "", ErrSecretRevoked
	}

	ciphertext, err := s.encrypt(orgID, newValue)
	if err != nil {
		return "", err
	}
	secret.Ciphertext = ciphertext
	secret.Version++
	secret.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, authz.MustScope(orgID), secret); err != nil {
		return "", fmt.Errorf("vault: failed to rotate secret: %w", err)
	}
	return ref, nil
}

// RevokeSecret marks the secret revoked and discards its ciphertext
func (s *EncryptedStore) RevokeSecret(ctx context.Context, orgID string, ref Ref) error {
	secret, err := s.load(ctx, orgID, ref)
	if err != nil {
		return err
	}
	if secret.RevokedAt != nil {
		return nil
	}

	now := s.now()
	secret.RevokedAt = &now
	secret.Ciphertext = ""
	secret.UpdatedAt = now

	if err := s.repo.Update(ctx, authz.MustScope(orgID), secret); err != nil {
		return fmt.Errorf("vault: failed to revoke secret: %w", err)
	}
	return nil
}

func (s *EncryptedStore) load(ctx context.Context, orgID string, ref Ref) (*Secret, error) {
	scope, err := authz.NewScope(orgID)
	if err != nil {
		return nil, err
	}
	provider, secretID, ok := ref.Split()
	if !ok || provider != ProviderEncrypted {
		return nil, ErrInvalidRef
	}
	return s.repo.Get(ctx, scope, secretID)
}

// deriveKey derives the 32-byte AES key of one organization.
func (s *EncryptedStore) deriveKey(orgID string) ([]byte, error) {
	reader := hkdf.New(sha256.New, s.master, nil, []byte(hkdfInfoPrefix+orgID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("vault: hkdf key derivation failed: %w", err)
	}
	return key, nil
}

func (s *EncryptedStore) gcm(orgID string) (cipher.AEAD, error) {
	key, err := s.deriveKey(orgID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithRandomNonce(block)
	if err != nil {
		return nil, fmt.Errorf("vault: NewGCMWithRandomNonce: %w", err)
	}
	return gcm, nil
}

func (s *EncryptedStore) encrypt(orgID, plaintext string) (string, error) {
	gcm, err := s.gcm(orgID)
	if err != nil {
		return "", err
	}
	// The org ID is bound as additional data as well as through the key.
	sealed := gcm.Seal(nil, nil, []byte(plaintext), []byte(orgID))
	return ciphertextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *EncryptedStore) decrypt(orgID, value string) (string, error) {
	if !strings.HasPrefix(value, ciphertextPrefix) {
		return "", fmt.Errorf("vault: unsupported ciphertext format")
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, ciphertextPrefix))
	if err != nil {
		return "", fmt.Errorf("vault: base64 decode: %w", err)
	}
	gcm, err := s.gcm(orgID)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nil, sealed, []byte(orgID))
	if err != nil {
		return "", fmt.Errorf("vault: decryption failed: %w", err)
	}
	return string(plaintext), nil
}
