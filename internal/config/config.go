// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel           string         `mapstructure:"LOG_LEVEL"`
	HTTPAddr           string         `mapstructure:"HTTP_ADDR"`
	DBURL              string         `mapstructure:"DB_URL"`
	GithubClientID     string         `mapstructure:"GITHUB_CLIENT_ID"`
	GithubClientSecret string         `mapstructure:"GITHUB_CLIENT_SECRET"`
	GithubRedirectURL  string         `mapstructure:"GITHUB_REDIRECT_URL"`
	GithubOAuthScopes  []string       `mapstructure:"GITHUB_OAUTH_SCOPES"`
	GithubAPIURL       string         `mapstructure:"GITHUB_API_URL"`
	CronSecret         string         `mapstructure:"CRON_SECRET"`
	SweepSchedule      string         `mapstructure:"SWEEP_SCHEDULE"`
	SweepBatchSize     int            `mapstructure:"SWEEP_BATCH_SIZE"`
	SweepMaxAttempts   int            `mapstructure:"SWEEP_MAX_ATTEMPTS"`
	SweepRetryInterval time.Duration  `mapstructure:"SWEEP_RETRY_INTERVAL"`
	SessionTTL         time.Duration  `mapstructure:"SESSION_TTL"`
	Timezone           string         `mapstructure:"TIMEZONE"`
	Location           *time.Location `mapstructure:"-"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	return load(".")
}

func load(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GITHUB_OAUTH_SCOPES", "repo,read:user,user:email")
	v.SetDefault("SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("SWEEP_BATCH_SIZE", 50)
	v.SetDefault("SWEEP_MAX_ATTEMPTS", 3)
	v.SetDefault("SWEEP_RETRY_INTERVAL", "2s")
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("TIMEZONE", "Local")

	// Keys without a default must be registered for AutomaticEnv to reach them in Unmarshal.
	for _, key := range []string{"DB_URL", "GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET", "GITHUB_REDIRECT_URL", "GITHUB_API_URL", "CRON_SECRET"} {
		v.SetDefault(key, "")
	}

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(path)
	_ = v.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true) // SWEEP_SCHEDULE="" disables the in-process sweeper
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q is not a known IANA zone: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.GithubClientID == "" || cfg.GithubClientSecret == "" {
		return nil, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required configuration fields")
	}
	if cfg.CronSecret == "" {
		return nil, errors.New("CRON_SECRET is a required configuration field")
	}
	if cfg.SweepMaxAttempts < 1 {
		return nil, errors.New("SWEEP_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.SweepBatchSize < 1 {
		return nil, errors.New("SWEEP_BATCH_SIZE must be at least 1")
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("SESSION_TTL must be a positive duration")
	}

	return &cfg, nil
}
