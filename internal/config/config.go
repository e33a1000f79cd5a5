/*
Copyright 2025 The Citewatch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads process configuration from an optional YAML file
// plus environment overrides, then validates and defaults it. Provider
// credentials are read once here; rotation requires a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aiviz/citewatch/internal/database"
	"github.com/aiviz/citewatch/pkg/provider"
)

// ProviderConfig is one adapter's settings. An empty APIKey leaves the
// adapter unregistered.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	RatePerMin int    `yaml:"rate_per_min" validate:"gte=0"`
}

// ServerConfig holds the API process listen addresses.
type ServerConfig struct {
	Port        string `yaml:"port" validate:"required,numeric"`
	MetricsPort string `yaml:"metrics_port" validate:"required,numeric"`
}

// WorkerConfig tunes the consumer pool.
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency" validate:"gt=0"`
	JobDeadline       time.Duration `yaml:"job_deadline"`
	MaxRetries        int           `yaml:"max_retries" validate:"gte=0"`
	GracePeriod       time.Duration `yaml:"grace_period"`
	QuotaCooldown     time.Duration `yaml:"quota_cooldown"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	StoreBackoffFloor time.Duration `yaml:"store_backoff_floor"`
}

// TrackingConfig tunes the planner and engine.
type TrackingConfig struct {
	IntervalHours  int           `yaml:"interval_hours" validate:"gt=0"`
	DailyAtHour    int           `yaml:"daily_at_hour" validate:"gte=0,lte=23"`
	DailyAtMinute  int           `yaml:"daily_at_minute" validate:"gte=0,lte=59"`
	KeywordSpacing time.Duration `yaml:"keyword_spacing"`
}

// RetentionConfig holds the cleanup windows in days.
type RetentionConfig struct {
	CitationsDays int `yaml:"citations_days" validate:"gt=0"`
	AlertsDays    int `yaml:"alerts_days" validate:"gt=0"`
	JobsDays      int `yaml:"jobs_days" validate:"gt=0"`
}

// SentimentConfig overrides the default lexicons.
type SentimentConfig struct {
	PositiveLexicon []string `yaml:"positive_lexicon"`
	NegativeLexicon []string `yaml:"negative_lexicon"`
}

// LoggingConfig selects log output.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Config is the full process configuration.
type Config struct {
	Database  *database.Config          `yaml:"database"`
	QueueURL  string                    `yaml:"queue_url"`
	Server    ServerConfig              `yaml:"server"`
	Worker    WorkerConfig              `yaml:"worker"`
	Tracking  TrackingConfig            `yaml:"tracking"`
	Retention RetentionConfig           `yaml:"retention"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Sentiment SentimentConfig           `yaml:"sentiment"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// Default returns the baseline configuration before file and env loading.
func Default() *Config {
	return &Config{
		Database: database.DefaultConfig(),
		Server: ServerConfig{
			Port:        "8080",
			MetricsPort: "9090",
		},
		Worker: WorkerConfig{
			Concurrency:       5,
			JobDeadline:       60 * time.Second,
			MaxRetries:        3,
			GracePeriod:       30 * time.Second,
			QuotaCooldown:     time.Hour,
			BackoffBase:       30 * time.Second,
			StoreBackoffFloor: 30 * time.Second,
		},
		Tracking: TrackingConfig{
			IntervalHours:  24,
			DailyAtHour:    2,
			DailyAtMinute:  0,
			KeywordSpacing: time.Second,
		},
		Retention: RetentionConfig{
			CitationsDays: 365,
			AlertsDays:    90,
			JobsDays:      30,
		},
		Providers: make(map[string]ProviderConfig),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the optional YAML file at path, applies environment overrides,
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if cfg.Database == nil {
		cfg.Database = database.DefaultConfig()
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv applies the recognized environment keys over cfg.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("QUEUE_URL"); v != "" {
		cfg.QueueURL = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		cfg.Server.MetricsPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if err := intFromEnv("WORKER_CONCURRENCY", &cfg.Worker.Concurrency); err != nil {
		return err
	}
	if err := intFromEnv("MAX_RETRIES", &cfg.Worker.MaxRetries); err != nil {
		return err
	}
	if seconds, err := intEnv("JOB_DEADLINE_SECONDS"); err != nil {
		return err
	} else if seconds > 0 {
		cfg.Worker.JobDeadline = time.Duration(seconds) * time.Second
	}
	if err := intFromEnv("TRACKING_INTERVAL_HOURS", &cfg.Tracking.IntervalHours); err != nil {
		return err
	}
	if err := intFromEnv("RETENTION_CITATIONS_DAYS", &cfg.Retention.CitationsDays); err != nil {
		return err
	}
	if err := intFromEnv("RETENTION_ALERTS_DAYS", &cfg.Retention.AlertsDays); err != nil {
		return err
	}
	if err := intFromEnv("RETENTION_JOBS_DAYS", &cfg.Retention.JobsDays); err != nil {
		return err
	}

	// PROVIDER_{NAME}_API_KEY, when set, replaces the file's key; set to an
	// empty value it leaves the adapter without a key. When it is unset, the
	// key from the file (if any) is kept.
	for _, platform := range provider.AllPlatforms() {
		envName := strings.ToUpper(string(platform))
		pc := cfg.Providers[string(platform)]
		if v, present := os.LookupEnv("PROVIDER_" + envName + "_API_KEY"); present {
			pc.APIKey = v
		}
		if v := os.Getenv("PROVIDER_" + envName + "_RATE_PER_MIN"); v != "" {
			rate, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("configuration error for setting PROVIDER_%s_RATE_PER_MIN: not an integer", envName)
			}
			pc.RatePerMin = rate
		}
		cfg.Providers[string(platform)] = pc
	}
	return nil
}

func intFromEnv(key string, dst *int) error {
	v, err := intEnv(key)
	if err != nil {
		return err
	}
	if v > 0 {
		*dst = v
	}
	return nil
}

func intEnv(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("configuration error for setting %s: not an integer", key)
	}
	return n, nil
}

// validate checks cross-field requirements on top of the struct tags.
func validate(cfg *Config) error {
	if cfg.Database == nil || cfg.Database.URL == "" {
		return fmt.Errorf("database url is required (DATABASE_URL)")
	}
	if cfg.QueueURL == "" {
		return fmt.Errorf("queue url is required (QUEUE_URL)")
	}
	for name := range cfg.Providers {
		if !provider.IsKnownPlatform(name) {
			return fmt.Errorf("unsupported provider: %s", name)
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ProviderConfigs converts the provider map into adapter configs keyed by
// platform, dropping entries without an API key.
func (c *Config) ProviderConfigs() map[provider.Platform]ProviderConfig {
	out := make(map[provider.Platform]ProviderConfig, len(c.Providers))
	for name, pc := range c.Providers {
		if pc.APIKey == "" {
			continue
		}
		out[provider.Platform(name)] = pc
	}
	return out
}
