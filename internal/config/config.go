// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

// Package config provides configuration management for Umbra.
// Configuration is loaded in layers: struct defaults, an optional YAML
// file, then environment variables (highest priority). See koanf.go.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the ingestion service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Database DatabaseConfig `koanf:"database"`
	NATS     NATSConfig     `koanf:"nats"`
	Identity IdentityConfig `koanf:"identity"`
	GeoIP    GeoIPConfig    `koanf:"geoip"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// APIConfig holds settings for the ingestion API surface.
type APIConfig struct {
	// MaxBodyBytes caps the request body size for event submissions.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// MaxBatchSize caps the number of events accepted in one batch request.
	MaxBatchSize int `koanf:"max_batch_size"`

	// RateLimitReqs and RateLimitWindow configure the global request
	// rate limit applied before app-key authentication.
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// AppRateLimit is the per-app sustained events/second budget enforced
	// with a token bucket after authentication. 0 disables it.
	AppRateLimit float64       `koanf:"app_rate_limit"`
	AppRateBurst int           `koanf:"app_rate_burst"`
	CORSOrigins  []string      `koanf:"cors_origins"`
	AppCacheTTL  time.Duration `koanf:"app_cache_ttl"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`

	// SaltRetentionDays and EventRetentionDays bound how long salt rows
	// and event rows are kept before the maintenance service prunes them.
	// 0 disables pruning for that table.
	SaltRetentionDays  int `koanf:"salt_retention_days"`
	EventRetentionDays int `koanf:"event_retention_days"`
}

// NATSConfig holds event transport settings.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	MaxMemory      int64         `koanf:"max_memory"`
	MaxStore       int64         `koanf:"max_store"`
	StreamName     string        `koanf:"stream_name"`
	Subject        string        `koanf:"subject"`
	RetentionDays  int           `koanf:"stream_retention_days"`
	BatchSize      int           `koanf:"batch_size"`
	FlushInterval  time.Duration `koanf:"flush_interval"`
	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
}

// IdentityConfig holds identity-hashing subsystem settings.
type IdentityConfig struct {
	// SaltCacheTTL is how long resolved daily salts stay in memory.
	// The default of 48h covers day-boundary skew across processes.
	SaltCacheTTL time.Duration `koanf:"salt_cache_ttl"`

	// SessionTTL is how long a computed user ID stays pinned to its
	// (app, session) key regardless of mid-session IP changes.
	SessionTTL time.Duration `koanf:"session_ttl"`
}

// GeoIPConfig holds geolocation provider settings.
type GeoIPConfig struct {
	// Provider selects the lookup backend: "maxmind", "ipapi", or "none".
	Provider string `koanf:"provider"`

	AccountID  string `koanf:"account_id"`
	LicenseKey string `koanf:"license_key"`

	// LicenseKeyEncrypted, when set, is decrypted with SecretKey at load
	// time and takes precedence over LicenseKey.
	LicenseKeyEncrypted string `koanf:"license_key_encrypted"`
	SecretKey           string `koanf:"secret_key"`

	CacheTTL  time.Duration `koanf:"cache_ttl"`
	CacheSize int           `koanf:"cache_size"`
	Timeout   time.Duration `koanf:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8123,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			Environment:     "development",
		},
		API: APIConfig{
			MaxBodyBytes:    1 << 20, // 1MB
			MaxBatchSize:    100,
			RateLimitReqs:   600,
			RateLimitWindow: 1 * time.Minute,
			AppRateLimit:    200,
			AppRateBurst:    400,
			CORSOrigins:     []string{"*"},
			AppCacheTTL:     5 * time.Minute,
		},
		Database: DatabaseConfig{
			Path:                   "/data/umbra.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = runtime.NumCPU()
			PreserveInsertionOrder: true,
			SaltRetentionDays:      90,
			EventRetentionDays:     0,
		},
		NATS: NATSConfig{
			Enabled:        true,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			MaxMemory:      1 << 30,  // 1GB
			MaxStore:       10 << 30, // 10GB
			StreamName:     "UMBRA_EVENTS",
			Subject:        "events.normalized",
			RetentionDays:  7,
			BatchSize:      1000,
			FlushInterval:  5 * time.Second,
			DurableName:    "event-writer",
			QueueGroup:     "writers",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
		},
		Identity: IdentityConfig{
			SaltCacheTTL: 48 * time.Hour,
			SessionTTL:   24 * time.Hour,
		},
		GeoIP: GeoIPConfig{
			Provider:  "none",
			CacheTTL:  6 * time.Hour,
			CacheSize: 50000,
			Timeout:   5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks configuration consistency. It is called automatically by
// LoadWithKoanf and may be called directly on hand-built configs in tests.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}

	if c.API.MaxBatchSize < 1 {
		return fmt.Errorf("api.max_batch_size must be at least 1, got %d", c.API.MaxBatchSize)
	}
	if c.API.MaxBodyBytes < 1024 {
		return fmt.Errorf("api.max_body_bytes must be at least 1024, got %d", c.API.MaxBodyBytes)
	}

	if c.Identity.SaltCacheTTL <= 0 {
		return fmt.Errorf("identity.salt_cache_ttl must be positive, got %s", c.Identity.SaltCacheTTL)
	}
	if c.Identity.SessionTTL <= 0 {
		return fmt.Errorf("identity.session_ttl must be positive, got %s", c.Identity.SessionTTL)
	}
	// A salt cache outliving two calendar days would serve stale salts
	// after the daily rotation boundary plus skew allowance.
	if c.Identity.SaltCacheTTL > 72*time.Hour {
		return fmt.Errorf("identity.salt_cache_ttl must not exceed 72h, got %s", c.Identity.SaltCacheTTL)
	}

	switch c.GeoIP.Provider {
	case "none", "ipapi":
	case "maxmind":
		if c.GeoIP.AccountID == "" || (c.GeoIP.LicenseKey == "" && c.GeoIP.LicenseKeyEncrypted == "") {
			return fmt.Errorf("geoip.provider maxmind requires account_id and a license key")
		}
	default:
		return fmt.Errorf("geoip.provider must be one of none, ipapi, maxmind; got %q", c.GeoIP.Provider)
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url must not be empty when nats is enabled")
		}
		if c.NATS.StreamName == "" || c.NATS.Subject == "" {
			return fmt.Errorf("nats.stream_name and nats.subject must not be empty when nats is enabled")
		}
		if c.NATS.BatchSize < 1 {
			return fmt.Errorf("nats.batch_size must be at least 1, got %d", c.NATS.BatchSize)
		}
	}

	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether the server runs in production mode.
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}
