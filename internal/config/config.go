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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Store         StoreConfig
	Auth          AuthConfig
	Timeouts      TimeoutConfig
	Vault         VaultConfig
	Audit         AuditConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string // postgres, memory
}

// AuthConfig holds bearer credential resolution configuration
type AuthConfig struct {
	Provider      string // jwt, oidc
	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	OIDCIssuerURL string
	OIDCClientID  string
}

// TimeoutConfig bounds each external lookup independently
type TimeoutConfig struct {
	Identity   time.Duration
	Membership time.Duration
	Data       time.Duration
}

// VaultConfig holds secret storage configuration
type VaultConfig struct {
	Provider     string // encrypted, aws
	MasterKey    string
	AWSRegion    string
	SecretPrefix string
	// RecoveryWindowDays applies to revoked AWS secrets.
	RecoveryWindowDays int
}

// AuditConfig holds audit dispatch configuration
type AuditConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// SchedulerConfig holds scan scheduling configuration
type SchedulerConfig struct {
	Enabled      bool
	SyncInterval time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	OTELEndpoint   string
	OTELInsecure   bool
	MetricsEnabled bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// RedisURL switches to the shared fixed-window limiter when set.
	RedisURL string
	Window   time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:   parseDuration("SERVER_WRITE_TIMEOUT", "30s"),
			IdleTimeout:    parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			RequestTimeout: parseDuration("SERVER_REQUEST_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "cybervault"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "cybervault"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "postgres"),
		},
		Auth: AuthConfig{
			Provider:      getEnv("AUTH_PROVIDER", "jwt"),
			JWTSecret:     getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer:     getEnv("AUTH_JWT_ISSUER", "cybervault"),
			JWTAudience:   getEnv("AUTH_JWT_AUDIENCE", "cybervault-api"),
			OIDCIssuerURL: getEnv("AUTH_OIDC_ISSUER_URL", ""),
			OIDCClientID:  getEnv("AUTH_OIDC_CLIENT_ID", ""),
		},
		Timeouts: TimeoutConfig{
			Identity:   parseDuration("TIMEOUT_IDENTITY", "3s"),
			Membership: parseDuration("TIMEOUT_MEMBERSHIP", "2s"),
			Data:       parseDuration("TIMEOUT_DATA", "10s"),
		},
		Vault: VaultConfig{
			Provider:           getEnv("VAULT_PROVIDER", "encrypted"),
			MasterKey:          getEnv("VAULT_MASTER_KEY", ""),
			AWSRegion:          getEnv("VAULT_AWS_REGION", ""),
			SecretPrefix:       getEnv("VAULT_SECRET_PREFIX", "cybervault"),
			RecoveryWindowDays: parseInt("VAULT_RECOVERY_WINDOW_DAYS", 7),
		},
		Audit: AuditConfig{
			QueueSize:    parseInt("AUDIT_QUEUE_SIZE", 1024),
			Workers:      parseInt("AUDIT_WORKERS", 2),
			WriteTimeout: parseDuration("AUDIT_WRITE_TIMEOUT", "5s"),
		},
		Scheduler: SchedulerConfig{
			Enabled:      parseBool("SCHEDULER_ENABLED", true),
			SyncInterval: parseDuration("SCHEDULER_SYNC_INTERVAL", "1m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			OTELEndpoint:   getEnv("OTEL_ENDPOINT", ""),
			OTELInsecure:   parseBool("OTEL_INSECURE", false),
			MetricsEnabled: parseBool("METRICS_ENABLED", true),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "cybervault"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
			Environment:    getEnv("DEPLOYMENT_ENV", "development"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: parseFloat("RATELIMIT_RPS", 10),
			Burst:             parseInt("RATELIMIT_BURST", 20),
			RedisURL:          getEnv("RATELIMIT_REDIS_URL", ""),
			Window:            parseDuration("RATELIMIT_WINDOW", "1m"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.Store.Driver)
	}

	switch c.Auth.Provider {
	case "jwt":
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes")
		}
	case "oidc":
		if c.Auth.OIDCIssuerURL == "" || c.Auth.OIDCClientID == "" {
			return fmt.Errorf("AUTH_OIDC_ISSUER_URL and AUTH_OIDC_CLIENT_ID are required")
		}
	default:
		return fmt.Errorf("AUTH_PROVIDER must be jwt or oidc, got %q", c.Auth.Provider)
	}

	switch c.Vault.Provider {
	case "encrypted":
		if c.Vault.MasterKey == "" {
			return fmt.Errorf("VAULT_MASTER_KEY is required for the encrypted vault")
		}
	case "aws":
	default:
		return fmt.Errorf("VAULT_PROVIDER must be encrypted or aws, got %q", c.Vault.Provider)
	}

	for name, d := range map[string]time.Duration{
		"TIMEOUT_IDENTITY":    c.Timeouts.Identity,
		"TIMEOUT_MEMBERSHIP":  c.Timeouts.Membership,
		"TIMEOUT_DATA":        c.Timeouts.Data,
		"AUDIT_WRITE_TIMEOUT": c.Audit.WriteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
