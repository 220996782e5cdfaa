package config

import (
	"strings"
	"time"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Generator GeneratorConfig `mapstructure:"generator" validate:"required"`
	Task      TaskConfig      `mapstructure:"task"      validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage"   validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// Driver selects the task store backing: "postgres" for the durable store,
// "memory" for the in-process store used in development and tests.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL    string `mapstructure:"url"    validate:"required_if=Driver postgres,omitempty,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`

	// APIKeyHashes is a comma-separated list of bcrypt hashes of accepted
	// service API keys. Empty disables API-key authentication.
	APIKeyHashes string `mapstructure:"api_key_hashes"`
}

// APIKeyHashList splits the configured hash list into individual hashes,
// dropping empty entries.
func (c AuthConfig) APIKeyHashList() []string {
	if c.APIKeyHashes == "" {
		return nil
	}
	parts := strings.Split(c.APIKeyHashes, ",")
	hashes := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			hashes = append(hashes, trimmed)
		}
	}
	return hashes
}

// TokenLifetime returns the configured JWT lifetime as a duration.
func (c AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeMinutes) * time.Minute
}

// GeneratorConfig contains all image-generation provider settings.
type GeneratorConfig struct {
	Provider string `mapstructure:"provider" validate:"required,oneof=ark gemini"`
	APIKey   string `mapstructure:"api_key"  validate:"required"`

	// BaseURL overrides the provider endpoint. Only meaningful for the ark
	// provider; empty selects the provider default.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`

	Model             string `mapstructure:"model"               validate:"required"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"     validate:"required,gt=0"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"required,gt=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"required,gt=0"`
}

// RequestTimeout returns the per-attempt timeout as a duration.
func (c GeneratorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the backoff base delay as a duration.
func (c GeneratorConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// TaskConfig contains the background task processing settings.
type TaskConfig struct {
	WorkerCount         int `mapstructure:"worker_count"           validate:"required,gt=0"`
	QueueSize           int `mapstructure:"queue_size"             validate:"required,gt=0"`
	StuckTaskAgeMinutes int `mapstructure:"stuck_task_age_minutes" validate:"required,gt=0"`
}

// StuckTaskAge returns the stuck-task threshold as a duration.
func (c TaskConfig) StuckTaskAge() time.Duration {
	return time.Duration(c.StuckTaskAgeMinutes) * time.Minute
}

// StorageConfig contains the artifact storage settings.
type StorageConfig struct {
	Path              string `mapstructure:"path"                 validate:"required"`
	MaxArtifactSizeMB int    `mapstructure:"max_artifact_size_mb" validate:"required,gt=0"`
}

// MaxArtifactBytes returns the artifact size cap in bytes.
func (c StorageConfig) MaxArtifactBytes() int64 {
	return int64(c.MaxArtifactSizeMB) * 1024 * 1024
}
