// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory is the process-local, non-persistent session.Store
// implementation. Sessions are sharded across a fixed number of
// mutex-guarded maps to keep lock contention low under concurrent
// handlers, the same sharding idea the teacher's rate limiter applies
// to its per-provider map.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
	"github.com/libraxisai/lbrx-gateway/internal/session"
)

const shardCount = 16

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// Store is an in-memory session.Store.
type Store struct {
	shards [shardCount]*shard
}

// New constructs an empty Store and starts its background TTL sweep.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*session.Session)}
	}
	go s.sweepLoop()
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

func (s *Store) Create(ctx context.Context, id string, data map[string]any, ttl time.Duration) (*session.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	sess := &session.Session{
		ID:        id,
		Metadata:  data,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	sh.sessions[id] = sess
	sh.mu.Unlock()
	return sess, nil
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[id]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (s *Store) AddMessage(ctx context.Context, id string, msg chatmsg.Message, ttl time.Duration) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sess, ok := sh.sessions[id]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return session.ErrNotFound
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()
	if newExpiry := time.Now().Add(ttl); newExpiry.After(sess.ExpiresAt) {
		sess.ExpiresAt = newExpiry
	}
	return nil
}

func (s *Store) GetMessages(ctx context.Context, id string, limit int) ([]chatmsg.Message, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[id]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return nil, session.ErrNotFound
	}
	msgs := sess.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]chatmsg.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; !ok {
		return false, nil
	}
	delete(sh.sessions, id)
	return true, nil
}

// sweepLoop periodically evicts expired sessions so long-lived
// processes don't accumulate dead entries.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		for _, sh := range s.shards {
			sh.mu.Lock()
			for id, sess := range sh.sessions {
				if now.After(sess.ExpiresAt) {
					delete(sh.sessions, id)
				}
			}
			sh.mu.Unlock()
		}
	}
}
