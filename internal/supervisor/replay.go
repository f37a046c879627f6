// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supervisor

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/libraxisai/lbrx-gateway/internal/journal"
)

// replayer re-dispatches journaled pending/processing entries to a
// running child by making a real HTTP call with the original method,
// path, headers, and body — at-least-once, not exactly-once.
type replayer struct {
	client *http.Client
}

func newReplayer() *replayer {
	return &replayer{client: &http.Client{Timeout: 30 * time.Second}}
}

// Replay scans j for recoverable entries and re-POSTs each to baseURL,
// incrementing its retry counter first. It does not wait for the
// journal to settle into a terminal state — each replayed request goes
// through the running child's own journal middleware, which will mark
// it completed or failed on its own.
func (r *replayer) Replay(j *journal.Journal, baseURL string) error {
	entries, err := j.PendingOrProcessing()
	if err != nil {
		return fmt.Errorf("supervisor: scan journal: %w", err)
	}
	for _, e := range entries {
		if err := j.IncrementRetry(e.ID); err != nil {
			slog.Warn("supervisor: failed to bump retry counter", slog.String("request_id", e.ID), slog.Any("error", err))
		}
		if err := r.replayOne(e, baseURL); err != nil {
			slog.Error("supervisor: replay failed", slog.String("request_id", e.ID), slog.Any("error", err))
			continue
		}
		slog.Info("supervisor: replayed journaled request", slog.String("request_id", e.ID), slog.String("path", e.Path))
	}
	return nil
}

func (r *replayer) replayOne(e journal.Entry, baseURL string) error {
	req, err := http.NewRequest(e.Method, baseURL+e.Path, bytes.NewReader(e.Body))
	if err != nil {
		return fmt.Errorf("build replay request: %w", err)
	}
	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Request-ID", e.ID)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch replay request: %w", err)
	}
	defer resp.Body.Close()
	return nil
}
