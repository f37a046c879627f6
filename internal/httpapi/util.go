// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// encodeJSON marshals v into a fresh, re-readable request body — used
// by HandleCompletions to rebuild the request as a ChatRequest before
// re-entering the chat handler.
func encodeJSON(v any) (io.ReadCloser, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("httpapi: encode: %w", err)
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}
