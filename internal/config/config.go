// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the gateway's runtime configuration from the
// environment, applying a documented default to every field and
// logging a warning when a set value cannot be parsed.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config is the gateway's typed, validated runtime configuration.
type Config struct {
	ServerHost string
	ServerPort int

	SSLCert string
	SSLKey  string

	ModelsDir        string
	DefaultModel     string
	MaxModelMemoryGB float64

	// CatalogFile, when set, overlays the built-in catalog with a
	// JSON descriptor list from disk and is watched for edits.
	CatalogFile string

	APIPrefix string

	MaxTokensDefault int
	MaxTokensLimit   int

	RedisURL         string
	SessionTTLHours  int

	RateLimitPerMinute int
	RateLimitPerHour   int

	EnableAuth    bool
	APIKeys       []string
	JWTSecret     string
	JWTAlgorithm  string

	EnableMetrics bool
	MetricsPort   int

	AllowedOrigins []string

	// TrustedHosts, when non-empty, is the exact set of Host header
	// values the gateway will answer for; empty disables the check.
	TrustedHosts []string

	// Env is the deployment environment ("development", "production").
	// Only "development" permits a wildcard CORS origin.
	Env string
}

// Load reads Config from the process environment: each field has a
// default, overridden by its environment variable when set; a value
// that fails to parse logs a slog.Warn and falls back to the default.
func Load() (*Config, error) {
	cfg := &Config{
		ServerHost:         getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:         getEnvInt("SERVER_PORT", 8555),
		SSLCert:            os.Getenv("SSL_CERT"),
		SSLKey:             os.Getenv("SSL_KEY"),
		ModelsDir:          getEnv("MODELS_DIR", "./models"),
		DefaultModel:       getEnv("DEFAULT_MODEL", "default"),
		MaxModelMemoryGB:   getEnvFloat("MAX_MODEL_MEMORY_GB", 24),
		CatalogFile:        os.Getenv("MODEL_CATALOG_FILE"),
		APIPrefix:          getEnv("API_PREFIX", "/api/v1"),
		MaxTokensDefault:   getEnvInt("MAX_TOKENS_DEFAULT", 2048),
		MaxTokensLimit:     getEnvInt("MAX_TOKENS_LIMIT", 32768),
		RedisURL:           os.Getenv("REDIS_URL"),
		SessionTTLHours:    getEnvInt("SESSION_TTL_HOURS", 24),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitPerHour:   getEnvInt("RATE_LIMIT_PER_HOUR", 1000),
		EnableAuth:         getEnvBool("ENABLE_AUTH", true),
		APIKeys:            parseAPIKeys(os.Getenv("API_KEYS")),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTAlgorithm:       getEnv("JWT_ALGORITHM", "HS256"),
		EnableMetrics:      getEnvBool("ENABLE_METRICS", true),
		MetricsPort:        getEnvInt("METRICS_PORT", 9090),
		Env:                getEnv("ENV", "production"),
	}
	cfg.AllowedOrigins = parseOrigins(os.Getenv("ALLOWED_ORIGINS"), cfg.Env)
	cfg.TrustedHosts = parseList(os.Getenv("TRUSTED_HOSTS"))

	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, generating an ephemeral signing key; tokens will not survive a restart")
		cfg.JWTSecret = randomSecret()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the constraints documented alongside the environment
// variable table: port ranges, the token-ceiling relationship, and the
// auth/credential pairing.
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("config: SERVER_PORT %d out of range", c.ServerPort)
	}
	if c.EnableMetrics && (c.MetricsPort <= 0 || c.MetricsPort > 65535) {
		return fmt.Errorf("config: METRICS_PORT %d out of range", c.MetricsPort)
	}
	if c.MaxTokensDefault > c.MaxTokensLimit {
		return fmt.Errorf("config: MAX_TOKENS_DEFAULT (%d) exceeds MAX_TOKENS_LIMIT (%d)", c.MaxTokensDefault, c.MaxTokensLimit)
	}
	if c.MaxModelMemoryGB <= 0 {
		return fmt.Errorf("config: MAX_MODEL_MEMORY_GB must be positive")
	}
	if c.EnableAuth && len(c.APIKeys) == 0 && c.JWTSecret == "" {
		return fmt.Errorf("config: ENABLE_AUTH is true but no API_KEYS and no JWT_SECRET are configured")
	}
	return nil
}

// TLSEnabled reports whether both certificate and key are configured.
// The original's home-directory SSL fallback (~/.ssl/dragon.*) is
// deliberately not reproduced here; see DESIGN.md.
func (c *Config) TLSEnabled() bool {
	return c.SSLCert != "" && c.SSLKey != ""
}

// UsesRedisSessions reports whether the configured REDIS_URL selects the
// Redis-backed session store over the in-memory one.
func (c *Config) UsesRedisSessions() bool {
	return strings.HasPrefix(c.RedisURL, "redis://") || strings.HasPrefix(c.RedisURL, "rediss://")
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env value, using default", slog.String("key", key), slog.String("value", v))
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid float env value, using default", slog.String("key", key), slog.String("value", v))
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean env value, using default", slog.String("key", key), slog.String("value", v))
		return def
	}
	return b
}

func parseAPIKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		// Best-effort JSON-list form; fall back to comma splitting on
		// malformed input rather than failing startup.
		var keys []string
		if err := jsonUnmarshalStrings(raw, &keys); err == nil {
			return keys
		}
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// parseList splits a comma-separated env value, dropping blanks. An
// empty result leaves the caller's "disabled" default in effect — this
// gateway ships with no trusted-host allowlist by default (see
// DESIGN.md for why the original's hardcoded, site-specific host list
// isn't reproduced verbatim) and operators opt in per-deployment.
func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseOrigins(raw, env string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if env == "development" {
			return []string{"*"}
		}
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "*" && env != "development" {
			slog.Warn("ALLOWED_ORIGINS contains '*' outside development; ignoring wildcard entry")
			continue
		}
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
