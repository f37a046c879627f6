// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session defines the session store contract implemented by
// the in-memory and Redis-backed variants in its memory and redisstore
// subpackages.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
)

// ErrNotFound is returned by Get/AddMessage/GetMessages when the
// session id is unknown or has expired. Delete reports a missing
// session as false with a nil error instead.
var ErrNotFound = errors.New("session: not found")

// Session is a named, ordered, TTL-bounded message log.
type Session struct {
	ID        string
	Messages  []chatmsg.Message
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Store is the capability surface every backend implements.
//
// Invariant: after AddMessage(ctx, id, msg) returns nil, a subsequent
// GetMessages(ctx, id, 0) observes msg at the tail, strictly after any
// message added before it.
type Store interface {
	// Create makes a new session, generating an id if id is empty.
	// Passing an id that already exists overwrites it (last-write-wins).
	Create(ctx context.Context, id string, data map[string]any, ttl time.Duration) (*Session, error)

	// Get fetches a session by id. Returns ErrNotFound if absent or
	// expired. Access does not itself extend expiry.
	Get(ctx context.Context, id string) (*Session, error)

	// AddMessage appends one message to the session's log and extends
	// its expiry to now+ttl if that is later than the current expiry
	// (expiry is monotonic: it is only ever extended, never shortened).
	AddMessage(ctx context.Context, id string, msg chatmsg.Message, ttl time.Duration) error

	// GetMessages returns the ordered message log, most-recent-last. A
	// positive limit returns only the last `limit` messages.
	GetMessages(ctx context.Context, id string, limit int) ([]chatmsg.Message, error)

	// Delete removes a session. Returns false if it did not exist.
	Delete(ctx context.Context, id string) (bool, error)
}
