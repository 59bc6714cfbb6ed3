// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/umbra/config.yaml",
	"/etc/umbra/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config file path.
const ConfigPathEnvVar = "UMBRA_CONFIG"

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if it exists)
//  3. Environment variables: override any setting
//
// Precedence is ENV > file > defaults. The loaded config is validated and
// any encrypted secrets are decrypted before returning.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := FindConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// UMBRA_SERVER_PORT -> server.port, UMBRA_GEOIP_LICENSE_KEY -> geoip.license_key
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.decryptSecrets(); err != nil {
		return nil, fmt.Errorf("failed to decrypt secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none exists.
func FindConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc transforms environment variable names to koanf config
// paths. Only UMBRA_-prefixed variables are mapped; everything else is
// skipped so random environment variables never pollute the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"umbra_server_host":             "server.host",
		"umbra_server_port":             "server.port",
		"umbra_server_read_timeout":     "server.read_timeout",
		"umbra_server_write_timeout":    "server.write_timeout",
		"umbra_server_shutdown_timeout": "server.shutdown_timeout",
		"umbra_environment":             "server.environment",

		// API
		"umbra_api_max_body_bytes":      "api.max_body_bytes",
		"umbra_api_max_batch_size":      "api.max_batch_size",
		"umbra_api_rate_limit_reqs":     "api.rate_limit_reqs",
		"umbra_api_rate_limit_window":   "api.rate_limit_window",
		"umbra_api_rate_limit_disabled": "api.rate_limit_disabled",
		"umbra_api_app_rate_limit":      "api.app_rate_limit",
		"umbra_api_app_rate_burst":      "api.app_rate_burst",
		"umbra_api_cors_origins":        "api.cors_origins",
		"umbra_api_app_cache_ttl":       "api.app_cache_ttl",

		// Database
		"umbra_duckdb_path":          "database.path",
		"umbra_duckdb_max_memory":    "database.max_memory",
		"umbra_duckdb_threads":       "database.threads",
		"umbra_salt_retention_days":  "database.salt_retention_days",
		"umbra_event_retention_days": "database.event_retention_days",

		// NATS
		"umbra_nats_enabled":        "nats.enabled",
		"umbra_nats_url":            "nats.url",
		"umbra_nats_embedded":       "nats.embedded_server",
		"umbra_nats_store_dir":      "nats.store_dir",
		"umbra_nats_stream_name":    "nats.stream_name",
		"umbra_nats_subject":        "nats.subject",
		"umbra_nats_retention_days": "nats.stream_retention_days",
		"umbra_nats_batch_size":     "nats.batch_size",
		"umbra_nats_flush_interval": "nats.flush_interval",
		"umbra_nats_durable_name":   "nats.durable_name",
		"umbra_nats_queue_group":    "nats.queue_group",

		// Identity
		"umbra_identity_salt_cache_ttl": "identity.salt_cache_ttl",
		"umbra_identity_session_ttl":    "identity.session_ttl",

		// GeoIP
		"umbra_geoip_provider":              "geoip.provider",
		"umbra_geoip_account_id":            "geoip.account_id",
		"umbra_geoip_license_key":           "geoip.license_key",
		"umbra_geoip_license_key_encrypted": "geoip.license_key_encrypted",
		"umbra_geoip_secret_key":            "geoip.secret_key",
		"umbra_geoip_cache_ttl":             "geoip.cache_ttl",
		"umbra_geoip_cache_size":            "geoip.cache_size",
		"umbra_geoip_timeout":               "geoip.timeout",

		// Logging
		"umbra_log_level":  "logging.level",
		"umbra_log_format": "logging.format",
		"umbra_log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when supplied through environment variables.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars always arrive as strings; YAML arrays are
// left untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// decryptSecrets resolves encrypted secret fields in place.
func (c *Config) decryptSecrets() error {
	if c.GeoIP.LicenseKeyEncrypted == "" {
		return nil
	}
	if c.GeoIP.SecretKey == "" {
		return fmt.Errorf("geoip.license_key_encrypted is set but geoip.secret_key is empty")
	}

	enc, err := NewSecretEncryptor(c.GeoIP.SecretKey)
	if err != nil {
		return err
	}

	plaintext, err := enc.Decrypt(c.GeoIP.LicenseKeyEncrypted)
	if err != nil {
		return fmt.Errorf("decrypt geoip license key: %w", err)
	}

	c.GeoIP.LicenseKey = plaintext
	return nil
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// The caller is responsible for mutex protection when swapping configs.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
