// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// SchedulerConfig provides settings for the asynq-based cron host.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// DispatchConfig provides tuning knobs for the message dispatchers.
type DispatchConfig interface {
	GetDispatchBatchSize() int
	GetCampaignItemDelay() time.Duration
	GetNurturingStepDelay() time.Duration
	GetNurturingRetryDelay() time.Duration
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetOpsToken() string
}

// SecretsConfig provides the key used to encrypt stored SMTP credentials.
type SecretsConfig interface {
	GetSMTPSecretKey() []byte
}

// EmailConfig provides settings for outbound email delivery.
type EmailConfig interface {
	GetSMTPAllowSelfSigned() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	DispatchBatchSize   int
	CampaignItemDelay   time.Duration
	NurturingStepDelay  time.Duration
	NurturingRetryDelay time.Duration
	CORSAllowAll        bool
	CORSOrigins         []string
	OpsToken            string
	SMTPSecretKey       []byte
	SMTPAllowSelfSigned bool
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// DispatchConfig implementation
func (c *Config) GetDispatchBatchSize() int             { return c.DispatchBatchSize }
func (c *Config) GetCampaignItemDelay() time.Duration   { return c.CampaignItemDelay }
func (c *Config) GetNurturingStepDelay() time.Duration  { return c.NurturingStepDelay }
func (c *Config) GetNurturingRetryDelay() time.Duration { return c.NurturingRetryDelay }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetOpsToken() string      { return c.OpsToken }

// SecretsConfig implementation
func (c *Config) GetSMTPSecretKey() []byte { return c.SMTPSecretKey }

// EmailConfig implementation
func (c *Config) GetSMTPAllowSelfSigned() bool { return c.SMTPAllowSelfSigned }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpKey := []byte(getEnv("SMTP_SECRET_KEY", ""))
	if len(smtpKey) > 0 && len(smtpKey) != 32 {
		return nil, fmt.Errorf("SMTP_SECRET_KEY must be exactly 32 bytes, got %d", len(smtpKey))
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "dispatch"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		DispatchBatchSize:   mustInt(getEnv("DISPATCH_BATCH_SIZE", "50")),
		CampaignItemDelay:   mustDuration(getEnv("CAMPAIGN_ITEM_DELAY", "1500ms")),
		NurturingStepDelay:  mustDuration(getEnv("NURTURING_STEP_DELAY", "300ms")),
		NurturingRetryDelay: mustDuration(getEnv("NURTURING_RETRY_DELAY", "1h")),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		OpsToken:            getEnv("OPS_TOKEN", ""),
		SMTPSecretKey:       smtpKey,
		SMTPAllowSelfSigned: strings.EqualFold(getEnv("SMTP_ALLOW_SELF_SIGNED", "true"), "true"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func mustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
