// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth implements the gateway's bearer-credential check: either
// an API key compared against a configured set, or a signed JWT with
// an expiry claim.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated covers every bearer-credential rejection: missing
// header, unknown API key, expired or malformed token.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// apiKeyPrefix marks a credential as an API key by its lexical shape,
// matching the original's "lbrx_" convention: such a credential that is
// not in the configured set is rejected without a JWT parse. Configured
// keys with any other prefix (the router's service prefixes) are
// accepted too.
const apiKeyPrefix = "lbrx_"

// Identity is the caller identity resolved from a bearer credential.
type Identity struct {
	// Subject is the API key itself (opaque) or the JWT "sub" claim.
	Subject string
	// Synthetic is true when auth is disabled and this identity was
	// fabricated to let the request proceed.
	Synthetic bool
}

// Manager verifies bearer credentials against a configured API key set
// and/or a JWT signing secret.
type Manager struct {
	enabled   bool
	apiKeys   map[string]struct{}
	secret    []byte
	algorithm string
}

// New constructs a Manager. When enabled is false, Verify always
// succeeds with a synthetic identity.
func New(enabled bool, apiKeys []string, jwtSecret, jwtAlgorithm string) *Manager {
	set := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		set[k] = struct{}{}
	}
	return &Manager{
		enabled:   enabled,
		apiKeys:   set,
		secret:    []byte(jwtSecret),
		algorithm: jwtAlgorithm,
	}
}

// Verify checks an `Authorization: Bearer <credential>` header value
// (the full header, including the "Bearer " prefix) and returns the
// resolved identity, or ErrUnauthenticated.
func (m *Manager) Verify(authorizationHeader string) (Identity, error) {
	if !m.enabled {
		return Identity{Subject: "anonymous", Synthetic: true}, nil
	}

	credential := strings.TrimSpace(strings.TrimPrefix(authorizationHeader, "Bearer "))
	if credential == "" {
		return Identity{}, ErrUnauthenticated
	}

	if m.verifyAPIKey(credential) {
		return Identity{Subject: credential}, nil
	}
	if strings.HasPrefix(credential, apiKeyPrefix) {
		return Identity{}, ErrUnauthenticated
	}

	sub, err := m.verifyToken(credential)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return Identity{Subject: sub}, nil
}

// verifyAPIKey does a constant-time membership check against the
// configured key set — equality only, per spec, but side-channel-safe.
func (m *Manager) verifyAPIKey(candidate string) bool {
	for key := range m.apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			return true
		}
	}
	return false
}

func (m *Manager) verifyToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != m.algorithm {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{m.algorithm}))
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	return sub, nil
}

// CreateAccessToken issues a signed JWT for subject, expiring after ttl.
func (m *Manager) CreateAccessToken(subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	method := jwt.GetSigningMethod(m.algorithm)
	if method == nil {
		return "", fmt.Errorf("auth: unsupported JWT algorithm %q", m.algorithm)
	}
	token := jwt.NewWithClaims(method, claims)
	return token.SignedString(m.secret)
}

// GenerateAPIKey mints a new key in the "lbrx_<random>" shape the
// original's ops tooling writes into api_keys.json. The gateway only
// ever reads the resulting key set; generation lives here for that
// out-of-band tooling to call.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate key: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
