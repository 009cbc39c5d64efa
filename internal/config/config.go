// Copyright (c) 2026 John Earle
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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TenantConfig holds routing settings for a single leasing organization.
type TenantConfig struct {
	ID          string   `yaml:"id"`
	Alias       string   `yaml:"alias"`
	EmailDomain string   `yaml:"email_domain"` // mail from this domain is our own outbound
	ProgramID   string   `yaml:"program_id"`
	Teams       []string `yaml:"teams"`
}

// LoopGuardConfig bounds repeated identical public API requests.
type LoopGuardConfig struct {
	Window time.Duration
	Limit  int
}

// AttachmentConfig controls attachment storage and inline images.
type AttachmentConfig struct {
	StorageRoot     string
	InlineImageSize int
	ContentTypes    []string
	Extensions      []string
}

// LeadServiceConfig points at the lead/party service.
type LeadServiceConfig struct {
	URL          string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// Config holds all configuration for the ingestion service.
type Config struct {
	Tenants []TenantConfig

	// Postgres
	DatabaseURL string

	// Redis
	RedisURL        string
	JobsQueue       string
	DeadLetterQueue string
	EventsChannel   string
	DedupTTL        time.Duration

	// Server
	Port int

	// Workers
	Workers    int
	MaxRetries int

	// Ingestion
	DuplicateEmailWindow time.Duration
	Blocklist            []string
	AnonymousILSPatterns []string

	LoopGuard   LoopGuardConfig
	Attachments AttachmentConfig
	LeadService LeadServiceConfig
}

// Tenant returns the tenant with the given id.
func (c *Config) Tenant(id string) (TenantConfig, bool) {
	for _, t := range c.Tenants {
		if t.ID == id {
			return t, true
		}
	}
	return TenantConfig{}, false
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Tenants  []TenantConfig `yaml:"tenants"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Jobs       string `yaml:"jobs"`
			DeadLetter string `yaml:"dead_letter"`
		} `yaml:"queues"`
		Channels struct {
			Events string `yaml:"events"`
		} `yaml:"channels"`
		DedupTTL string `yaml:"dedup_ttl"`
	} `yaml:"redis"`
	Worker struct {
		Count      int `yaml:"count"`
		MaxRetries int `yaml:"max_retries"`
	} `yaml:"worker"`
	Ingest struct {
		DuplicateWindow      string   `yaml:"duplicate_window"`
		Blocklist            []string `yaml:"blocklist"`
		AnonymousILSPatterns []string `yaml:"anonymous_ils_patterns"`
	} `yaml:"ingest"`
	LoopGuard struct {
		Window string `yaml:"window"`
		Limit  int    `yaml:"limit"`
	} `yaml:"loop_guard"`
	Attachments struct {
		StorageRoot     string   `yaml:"storage_root"`
		InlineImageSize int      `yaml:"inline_image_size"`
		ContentTypes    []string `yaml:"content_types"`
		Extensions      []string `yaml:"extensions"`
	} `yaml:"attachments"`
	LeadService struct {
		URL          string   `yaml:"url"`
		TokenURL     string   `yaml:"token_url"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		Scopes       []string `yaml:"scopes"`
		Timeout      string   `yaml:"timeout"`
	} `yaml:"lead_service"`
}

// Load reads configuration from the file named by CONFIG_PATH.
func Load() (*Config, error) {
	return LoadFile(envOrDefault("CONFIG_PATH", "/app/config/config.yaml"))
}

// LoadFile reads configuration from path (with env var expansion) and
// environment variables for values the YAML leaves empty.
func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		DatabaseURL:     firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:        firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		JobsQueue:       firstNonEmpty(raw.Redis.Queues.Jobs, envOrDefault("JOBS_QUEUE", "inbound")),
		DeadLetterQueue: firstNonEmpty(raw.Redis.Queues.DeadLetter, envOrDefault("DEAD_LETTER_QUEUE", "inbound:dead")),
		EventsChannel:   firstNonEmpty(raw.Redis.Channels.Events, envOrDefault("EVENTS_CHANNEL", "party-events")),
		Port:            envOrDefaultInt("PORT", 8080),
		Workers:         firstPositive(raw.Worker.Count, envOrDefaultInt("WORKERS", 4)),
		MaxRetries:      firstPositive(raw.Worker.MaxRetries, envOrDefaultInt("MAX_RETRIES", 3)),

		Blocklist:            raw.Ingest.Blocklist,
		AnonymousILSPatterns: raw.Ingest.AnonymousILSPatterns,

		Attachments: AttachmentConfig{
			StorageRoot:     firstNonEmpty(raw.Attachments.StorageRoot, envOrDefault("STORAGE_ROOT", "/var/lib/ingestion/files")),
			InlineImageSize: firstPositive(raw.Attachments.InlineImageSize, envOrDefaultInt("INLINE_IMAGE_SIZE", 650)),
			ContentTypes:    raw.Attachments.ContentTypes,
			Extensions:      raw.Attachments.Extensions,
		},
		LeadService: LeadServiceConfig{
			URL:          firstNonEmpty(raw.LeadService.URL, os.Getenv("LEAD_SERVICE_URL")),
			TokenURL:     firstNonEmpty(raw.LeadService.TokenURL, os.Getenv("LEAD_SERVICE_TOKEN_URL")),
			ClientID:     firstNonEmpty(raw.LeadService.ClientID, os.Getenv("LEAD_SERVICE_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.LeadService.ClientSecret, os.Getenv("LEAD_SERVICE_CLIENT_SECRET")),
			Scopes:       raw.LeadService.Scopes,
		},
	}

	if cfg.DedupTTL, err = durationOr(raw.Redis.DedupTTL, "DEDUP_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DuplicateEmailWindow, err = durationOr(raw.Ingest.DuplicateWindow, "DUPLICATE_EMAIL_WINDOW", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LoopGuard.Window, err = durationOr(raw.LoopGuard.Window, "LOOP_GUARD_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}
	cfg.LoopGuard.Limit = firstPositive(raw.LoopGuard.Limit, envOrDefaultInt("LOOP_GUARD_LIMIT", 3))
	if cfg.LeadService.Timeout, err = durationOr(raw.LeadService.Timeout, "LEAD_SERVICE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	// Build tenant configs
	for _, t := range raw.Tenants {
		if t.ID == "" {
			// Skip entries with an empty id (commented out in YAML)
			continue
		}
		if t.Alias == "" {
			t.Alias = t.ID[:min(8, len(t.ID))]
		}
		t.EmailDomain = strings.ToLower(strings.TrimPrefix(t.EmailDomain, "@"))
		cfg.Tenants = append(cfg.Tenants, t)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url is required (database.url or DATABASE_URL)")
	}
	if c.LeadService.URL == "" {
		return fmt.Errorf("lead service url is required (lead_service.url or LEAD_SERVICE_URL)")
	}
	if len(c.Tenants) == 0 {
		return fmt.Errorf("no tenants configured, check config.yaml and environment variables")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// durationOr parses a YAML duration, falling back to the env var and then
// the default when the YAML value is empty.
func durationOr(yamlValue, envKey string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(yamlValue) == "" {
		return envOrDefaultDuration(envKey, fallback), nil
	}
	d, err := time.ParseDuration(yamlValue)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", yamlValue, err)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
