// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package redisstore is the Redis-backed session.Store implementation,
// for deployments that run more than one gateway process behind the
// same session namespace.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
	"github.com/libraxisai/lbrx-gateway/internal/session"
)

// Store is a session.Store backed by Redis. Keys are namespaced
// "<sandbox>:session:<id>" so multiple gateway deployments can share a
// Redis instance without colliding.
type Store struct {
	client  *redis.Client
	sandbox string
}

// New builds a Store from a redis:// URL and a sandbox namespace
// (typically the deployment name).
func New(redisURL, sandbox string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	return &Store{client: redis.NewClient(opts), sandbox: sandbox}, nil
}

func (s *Store) key(id string) string {
	return fmt.Sprintf("%s:session:%s", s.sandbox, id)
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
	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("redisstore: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), payload, ttl).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: set: %w", err)
	}
	return sess, nil
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("redisstore: unmarshal: %w", err)
	}
	return &sess, nil
}

func (s *Store) AddMessage(ctx context.Context, id string, msg chatmsg.Message, ttl time.Duration) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()
	if newExpiry := time.Now().Add(ttl); newExpiry.After(sess.ExpiresAt) {
		sess.ExpiresAt = newExpiry
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redisstore: marshal: %w", err)
	}
	remaining := time.Until(sess.ExpiresAt)
	if remaining <= 0 {
		remaining = ttl
	}
	if err := s.client.Set(ctx, s.key(id), payload, remaining).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}

func (s *Store) GetMessages(ctx context.Context, id string, limit int) ([]chatmsg.Message, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs := sess.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: del: %w", err)
	}
	return n > 0, nil
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
