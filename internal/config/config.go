// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrPipelineURLRequired is returned when PIPELINE_URL is not set.
	ErrPipelineURLRequired = errors.New("config: PIPELINE_URL is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`
	// SyncMode switches POST /generate to inline generation returning the
	// binary instead of a task handle.
	SyncMode bool `env:"SYNC_MODE, default=false" json:"sync_mode"`

	// Model settings
	DefaultModel string `env:"DEFAULT_MODEL" json:"default_model,omitempty"` // Empty selects the registry default

	// Inference sidecar settings
	PipelineURL    string `env:"PIPELINE_URL, required" json:"pipeline_url"`
	PipelineAPIKey string `env:"PIPELINE_API_KEY" json:"-"` // Masked in JSON

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/videogen" json:"temp_dir"`

	// Task lifecycle settings
	QueueSize       int           `env:"QUEUE_SIZE, default=16" json:"queue_size"`
	RetentionWindow time.Duration `env:"RETENTION_WINDOW, default=2h" json:"retention_window"`
	SweepSpec       string        `env:"SWEEP_SPEC, default=@hourly" json:"sweep_spec"`

	// Auth settings
	AuthToken string `env:"AUTH_TOKEN" json:"-"` // Masked in JSON

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		if strings.Contains(err.Error(), "PIPELINE_URL") {
			return nil, ErrPipelineURLRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.PipelineURL == "" {
		return ErrPipelineURLRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, SyncMode: %t, DefaultModel: %s, PipelineURL: %s, TempDir: %s, QueueSize: %d, RetentionWindow: %s, SweepSpec: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.SyncMode,
		c.DefaultModel,
		c.PipelineURL,
		c.TempDir,
		c.QueueSize,
		c.RetentionWindow,
		c.SweepSpec,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
