// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
	"github.com/libraxisai/lbrx-gateway/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New("redis://"+mr.Addr(), "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateThenGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created, err := s.Create(ctx, "sess-1", map[string]any{"foo": "bar"}, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "sess-1" {
		t.Fatalf("ID = %q, want sess-1", got.ID)
	}
}

func TestCreateGeneratesIDWhenEmpty(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create(context.Background(), "", nil, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a generated session id")
	}
}

func TestAddMessageThenGetMessagesPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, err := s.Create(ctx, "sess-2", nil, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	msgs := []chatmsg.Message{
		{Role: chatmsg.RoleUser, Content: "one"},
		{Role: chatmsg.RoleAssistant, Content: "two"},
	}
	for _, m := range msgs {
		if err := s.AddMessage(ctx, sess.ID, m, time.Hour); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}
	got, err := s.GetMessages(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 2 || got[0].Content != "one" || got[1].Content != "two" {
		t.Fatalf("GetMessages = %+v, ordering violated", got)
	}
}

func TestGetMessagesRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, _ := s.Create(ctx, "sess-3", nil, time.Hour)
	for i := 0; i < 5; i++ {
		s.AddMessage(ctx, sess.ID, chatmsg.Message{Role: chatmsg.RoleUser, Content: string(rune('a' + i))}, time.Hour)
	}
	got, err := s.GetMessages(ctx, sess.ID, 2)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 2 || got[1].Content != "e" {
		t.Fatalf("GetMessages = %+v, want the last 2 entries ending in e", got)
	}
}

func TestGetUnknownSessionReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "does-not-exist")
	if err != session.ErrNotFound {
		t.Fatalf("err = %v, want session.ErrNotFound", err)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, _ := s.Create(ctx, "sess-4", nil, time.Hour)
	ok, err := s.Delete(ctx, sess.ID)
	if err != nil || !ok {
		t.Fatalf("Delete existing = %v, %v, want true, nil", ok, err)
	}
	ok, err = s.Delete(ctx, sess.ID)
	if err != nil || ok {
		t.Fatalf("Delete again = %v, %v, want false, nil", ok, err)
	}
}

func TestNamespaceIsolatesKeysBySandbox(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := New("redis://"+mr.Addr(), "sandbox-a")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	b, err := New("redis://"+mr.Addr(), "sandbox-b")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if _, err := a.Create(context.Background(), "shared-id", nil, time.Hour); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := b.Get(context.Background(), "shared-id"); err != session.ErrNotFound {
		t.Fatalf("expected sandbox-b not to see sandbox-a's session, got err=%v", err)
	}
}
