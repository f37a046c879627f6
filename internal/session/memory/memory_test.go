// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
	"github.com/libraxisai/lbrx-gateway/internal/session"
)

func TestCreateThenGet(t *testing.T) {
	s := New()
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
		t.Fatalf("ID = %q, want %q", got.ID, "sess-1")
	}
}

func TestCreateGeneratesIDWhenEmpty(t *testing.T) {
	s := New()
	sess, err := s.Create(context.Background(), "", nil, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a generated session id")
	}
}

func TestAddMessageThenGetMessagesPreservesOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	sess, err := s.Create(ctx, "sess-2", nil, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	msgs := []chatmsg.Message{
		{Role: chatmsg.RoleUser, Content: "one"},
		{Role: chatmsg.RoleAssistant, Content: "two"},
		{Role: chatmsg.RoleUser, Content: "three"},
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
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, m := range got {
		if m.Content != msgs[i].Content {
			t.Fatalf("message %d = %q, want %q (ordering violated)", i, m.Content, msgs[i].Content)
		}
	}
}

func TestGetMessagesRespectsLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	sess, _ := s.Create(ctx, "sess-3", nil, time.Hour)
	for i := 0; i < 5; i++ {
		s.AddMessage(ctx, sess.ID, chatmsg.Message{Role: chatmsg.RoleUser, Content: string(rune('a' + i))}, time.Hour)
	}
	got, err := s.GetMessages(ctx, sess.ID, 2)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages with limit, got %d", len(got))
	}
	if got[len(got)-1].Content != "e" {
		t.Fatalf("expected the limited window to keep the most recent messages, got %q last", got[len(got)-1].Content)
	}
}

func TestGetExpiredSessionReturnsNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	sess, _ := s.Create(ctx, "sess-4", nil, -time.Second)
	_, err := s.Get(ctx, sess.ID)
	if err != session.ErrNotFound {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	s := New()
	ctx := context.Background()
	sess, _ := s.Create(ctx, "sess-5", nil, time.Hour)
	ok, err := s.Delete(ctx, sess.ID)
	if err != nil || !ok {
		t.Fatalf("Delete existing = %v, %v, want true, nil", ok, err)
	}
	ok, err = s.Delete(ctx, sess.ID)
	if err != nil || ok {
		t.Fatalf("Delete again = %v, %v, want false, nil", ok, err)
	}
}
