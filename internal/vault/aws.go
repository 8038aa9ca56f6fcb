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
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/id"
)

// ProviderAWS names AWSSecretsManager references.
const ProviderAWS = "aws"

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(ctx context.Context, in *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// AWSSecretsManager stores each secret as "<prefix>/<orgID>/<id>". The name
// is always rebuilt from the caller's organization, so a reference from
// another tenant resolves to a secret that does not exist.
type AWSSecretsManager struct {
	client         SecretsManagerAPI
	prefix         string
	recoveryWindow int64
}

// AWSConfig configures NewAWSSecretsManager.
type AWSConfig struct {
	Region             string
	Prefix             string
	RecoveryWindowDays int
}

// NewAWSSecretsManager builds a client from the default credential chain
func NewAWSSecretsManager(ctx context.Context, cfg AWSConfig) (*AWSSecretsManager, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSSecretsManagerWithClient(secretsmanager.NewFromConfig(awsConfig), cfg), nil
}

// NewAWSSecretsManagerWithClient wraps an existing client
func NewAWSSecretsManagerWithClient(client SecretsManagerAPI, cfg AWSConfig) *AWSSecretsManager {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "cybervault"
	}
	// Secrets Manager accepts 7 to 30 days.
	window := int64(cfg.RecoveryWindowDays)
	if window < 7 {
		window = 7
	}
	if window > 30 {
		window = 30
	}
	return &AWSSecretsManager{client: client, prefix: prefix, recoveryWindow: window}
}

// Name returns the provider name
func (a *AWSSecretsManager) Name() string {
	return ProviderAWS
}

func (a *AWSSecretsManager) secretName(orgID, secretID string) string {
	return a.prefix + "/" + orgID + "/" + secretID
}

func (a *AWSSecretsManager) resolve(orgID string, ref Ref) (string, error) {
	if _, err := authz.NewScope(orgID); err != nil {
		return "", err
	}
	provider, secretID, ok := ref.Split()
	if !ok || provider != ProviderAWS {
		return "", ErrInvalidRef
	}
	return a.secretName(orgID, secretID), nil
}

// StoreSecret creates a new secret tagged with its organization
func (a *AWSSecretsManager) StoreSecret(ctx context.Context, orgID, name, value string, meta map[string]string) (Ref, error) {
	if _, err := authz.NewScope(orgID); err != nil {
		return "", err
	}
	if value == "" {
		return "", ErrEmptySecret
	}

	secretID := id.NewUUIDv7()
	tags := []types.Tag{
		{Key: aws.String("org_id"), Value: aws.String(orgID)},
		{Key: aws.String("credential_name"), Value: aws.String(name)},
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(meta[k])})
	}

	_, err := a.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(a.secretName(orgID, secretID)),
		SecretString: aws.String(value),
		Tags:         tags,
	})
	if err != nil {
		return "", fmt.Errorf("vault: failed to create secret: %w", err)
	}
	return NewRef(ProviderAWS, secretID), nil
}

// GetSecret reads the current secret value
func (a *AWSSecretsManager) GetSecret(ctx context.Context, orgID string, ref Ref) (string, error) {
	name, err := a.resolve(orgID, ref)
	if err != nil {
		return "", err
	}
	out, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		return "", mapAWSError(err)
	}
	return aws.ToString(out.SecretString), nil
}

// RotateSecret stores a new version under the same name. The reference is stable.
func (a *AWSSecretsManager) RotateSecret(ctx context.Context, orgID string, ref Ref, newValue string) (Ref, error) {
	if newValue == "" {
		return "", ErrEmptySecret
	}
	name, err := a.resolve(orgID, ref)
	if err != nil {
		return "", err
	}
	_, err = a.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(newValue),
	})
	if err != nil {
		return "", mapAWSError(err)
	}
	return ref, nil
}

// RevokeSecret schedules deletion within the recovery window
func (a *AWSSecretsManager) RevokeSecret(ctx context.Context, orgID string, ref Ref) error {
	name, err := a.resolve(orgID, ref)
	if err != nil {
		return err
	}
	_, err = a.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:             aws.String(name),
		RecoveryWindowInDays: aws.Int64(a.recoveryWindow),
	})
	if err != nil {
		mapped := mapAWSError(err)
		if errors.Is(mapped, ErrSecretRevoked) {
			return nil
		}
		return mapped
	}
	return nil
}

func mapAWSError(err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return ErrSecretNotFound
	}
	// Secrets scheduled for deletion reject reads and writes as invalid requests.
	var invalid *types.InvalidRequestException
	if errors.As(err, &invalid) {
		return ErrSecretRevoked
	}
	return fmt.Errorf("vault: secrets manager: %w", err)
}
