// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Flusher is the subset of http.ResponseWriter a streaming handler
// needs; gin.ResponseWriter satisfies it.
type Flusher interface {
	Write(p []byte) (int, error)
	Flush()
}

// Writer emits `data: <json>\n\n` frames and a final `data: [DONE]\n\n`
// terminator, the framing used throughout the gateway's streaming
// endpoints.
type Writer struct {
	w Flusher
}

// NewWriter prepares w's headers for event-stream output and returns a
// Writer bound to it.
func NewWriter(w http.ResponseWriter, f Flusher) *Writer {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &Writer{w: f}
}

// WriteChunk marshals v to JSON and emits it as one SSE data frame.
func (sw *Writer) WriteChunk(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("sse: write chunk: %w", err)
	}
	sw.w.Flush()
	return nil
}

// WriteError emits a trailing error frame. The stream MUST be closed
// without a [DONE] terminator after this, per the mid-stream error
// contract.
func (sw *Writer) WriteError(message string) error {
	payload, _ := json.Marshal(map[string]any{
		"error": map[string]string{"message": message},
	})
	_, err := fmt.Fprintf(sw.w, "data: %s\n\n", payload)
	sw.w.Flush()
	return err
}

// Done emits the `[DONE]` terminator.
func (sw *Writer) Done() error {
	if _, err := fmt.Fprint(sw.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("sse: write done: %w", err)
	}
	sw.w.Flush()
	return nil
}
