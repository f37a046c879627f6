// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import "testing"

func baseValidConfig() *Config {
	return &Config{
		ServerPort:       8555,
		MaxModelMemoryGB: 24,
		MaxTokensDefault: 2048,
		MaxTokensLimit:   32768,
		EnableMetrics:    true,
		MetricsPort:      9090,
		EnableAuth:       true,
		APIKeys:          []string{"lbrx_test"},
	}
}

func TestValidateAcceptsBaseline(t *testing.T) {
	cfg := baseValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsOutOfRangeServerPort(t *testing.T) {
	cfg := baseValidConfig()
	cfg.ServerPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an out-of-range SERVER_PORT")
	}
}

func TestValidateRejectsOutOfRangeMetricsPort(t *testing.T) {
	cfg := baseValidConfig()
	cfg.MetricsPort = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an out-of-range METRICS_PORT")
	}
}

func TestValidateIgnoresMetricsPortWhenDisabled(t *testing.T) {
	cfg := baseValidConfig()
	cfg.EnableMetrics = false
	cfg.MetricsPort = -1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v, want nil since metrics are disabled", err)
	}
}

func TestValidateRejectsDefaultExceedingLimit(t *testing.T) {
	cfg := baseValidConfig()
	cfg.MaxTokensDefault = 40000
	cfg.MaxTokensLimit = 32768
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when MAX_TOKENS_DEFAULT exceeds MAX_TOKENS_LIMIT")
	}
}

func TestValidateRejectsNonPositiveMemoryBudget(t *testing.T) {
	cfg := baseValidConfig()
	cfg.MaxModelMemoryGB = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a non-positive MAX_MODEL_MEMORY_GB")
	}
}

func TestValidateRejectsAuthEnabledWithNoCredentials(t *testing.T) {
	cfg := baseValidConfig()
	cfg.APIKeys = nil
	cfg.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when auth is enabled with no API keys and no JWT secret")
	}
}

func TestValidateAcceptsAuthEnabledWithOnlyJWTSecret(t *testing.T) {
	cfg := baseValidConfig()
	cfg.APIKeys = nil
	cfg.JWTSecret = "a-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestTLSEnabledRequiresBothCertAndKey(t *testing.T) {
	cfg := baseValidConfig()
	if cfg.TLSEnabled() {
		t.Fatal("expected TLS disabled with no cert or key configured")
	}
	cfg.SSLCert = "/path/to/cert"
	if cfg.TLSEnabled() {
		t.Fatal("expected TLS disabled with only a cert configured")
	}
	cfg.SSLKey = "/path/to/key"
	if !cfg.TLSEnabled() {
		t.Fatal("expected TLS enabled once both cert and key are set")
	}
}

func TestUsesRedisSessionsDetectsScheme(t *testing.T) {
	cfg := baseValidConfig()
	if cfg.UsesRedisSessions() {
		t.Fatal("expected no Redis sessions with an empty REDIS_URL")
	}
	cfg.RedisURL = "redis://localhost:6379/0"
	if !cfg.UsesRedisSessions() {
		t.Fatal("expected Redis sessions to be detected from a redis:// URL")
	}
	cfg.RedisURL = "rediss://localhost:6380/0"
	if !cfg.UsesRedisSessions() {
		t.Fatal("expected Redis sessions to be detected from a rediss:// URL")
	}
}
