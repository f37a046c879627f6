// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal persists every mutating request to disk before it is
// handled, so the supervisor can replay pending work after an unclean
// exit. One file per entry; terminal transitions are atomic renames
// into completed/ or failed/.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Status is the journal entry's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is one journaled request.
type Entry struct {
	ID        string            `json:"id"`
	Path      string            `json:"path"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      []byte            `json:"body"`
	Model     string            `json:"model,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Status    Status            `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	Retry     int               `json:"retry"`
}

// Journal manages the on-disk queue directory: <queue>/<id>.json for
// pending/processing entries, <queue>/completed/<id>.json, and
// <queue>/failed/<id>-<unix>.json.
type Journal struct {
	mu   sync.Mutex
	root string
}

// credentialHeaders are stripped from a journaled entry's headers
// before it touches disk.
var credentialHeaders = []string{"Authorization", "Cookie", "X-Api-Key"}

// Open ensures the queue directory tree exists and returns a Journal
// rooted there.
func Open(root string) (*Journal, error) {
	for _, sub := range []string{"", "completed", "failed"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir %s: %w", sub, err)
		}
	}
	return &Journal{root: root}, nil
}

// Write creates a new pending entry file. Headers are redacted of
// credentials before the entry ever touches disk.
func (j *Journal) Write(e Entry) error {
	e.Status = StatusPending
	redacted := make(map[string]string, len(e.Headers))
	for k, v := range e.Headers {
		if isCredentialHeader(k) {
			continue
		}
		redacted[k] = v
	}
	e.Headers = redacted

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writeAt(j.pendingPath(e.ID), e)
}

// MarkProcessing rewrites a pending entry's status to processing, in
// place, before dispatch.
func (j *Journal) MarkProcessing(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, err := j.readAt(j.pendingPath(id))
	if err != nil {
		return err
	}
	e.Status = StatusProcessing
	return j.writeAt(j.pendingPath(id), *e)
}

// MarkCompleted moves the entry to completed/<id>.json.
func (j *Journal) MarkCompleted(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, err := j.readAt(j.pendingPath(id))
	if err != nil {
		return err
	}
	e.Status = StatusCompleted
	if err := j.writeAt(j.pendingPath(id), *e); err != nil {
		return err
	}
	return os.Rename(j.pendingPath(id), filepath.Join(j.root, "completed", id+".json"))
}

// MarkFailed moves the entry to failed/<id>-<unix>.json with reason.
func (j *Journal) MarkFailed(id, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, err := j.readAt(j.pendingPath(id))
	if err != nil {
		return err
	}
	e.Status = StatusFailed
	e.Reason = reason
	if err := j.writeAt(j.pendingPath(id), *e); err != nil {
		return err
	}
	dest := filepath.Join(j.root, "failed", fmt.Sprintf("%s-%d.json", id, time.Now().Unix()))
	return os.Rename(j.pendingPath(id), dest)
}

// PendingOrProcessing scans the queue root (excluding completed/ and
// failed/) for recoverable entries — those that survived a crash
// between journal write and terminal transition.
func (j *Journal) PendingOrProcessing() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	matches, err := filepath.Glob(filepath.Join(j.root, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("journal: glob: %w", err)
	}
	var out []Entry
	for _, m := range matches {
		e, err := j.readAt(m)
		if err != nil {
			continue
		}
		if e.Status == StatusPending || e.Status == StatusProcessing {
			out = append(out, *e)
		}
	}
	return out, nil
}

// IncrementRetry bumps an entry's retry counter before a replay attempt.
func (j *Journal) IncrementRetry(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, err := j.readAt(j.pendingPath(id))
	if err != nil {
		return err
	}
	e.Retry++
	return j.writeAt(j.pendingPath(id), *e)
}

func (j *Journal) pendingPath(id string) string {
	return filepath.Join(j.root, id+".json")
}

func (j *Journal) readAt(path string) (*Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("journal: read %s: %w", path, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("journal: unmarshal %s: %w", path, err)
	}
	return &e, nil
}

// writeAt writes via a temp file and rename so a crash mid-write never
// leaves a partially-written entry behind.
func (j *Journal) writeAt(path string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("journal: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func isCredentialHeader(name string) bool {
	for _, h := range credentialHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
