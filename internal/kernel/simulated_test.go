// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kernel

import (
	"context"
	"testing"

	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
)

func TestSimulatedLoadUnload(t *testing.T) {
	s := NewSimulated()
	ctx := context.Background()

	if err := s.Load(ctx, "qwen3-14b"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	stats, err := s.MemoryStats(ctx)
	if err != nil {
		t.Fatalf("MemoryStats: %v", err)
	}
	if stats.ActiveGB == 0 {
		t.Fatalf("expected non-zero active memory after Load")
	}

	if err := s.Unload(ctx, "qwen3-14b"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	stats, err = s.MemoryStats(ctx)
	if err != nil {
		t.Fatalf("MemoryStats: %v", err)
	}
	if stats.ActiveGB != 0 {
		t.Fatalf("expected zero active memory after Unload, got %v", stats.ActiveGB)
	}
}

func TestSimulatedGenerateRespectsMaxTokens(t *testing.T) {
	s := NewSimulated()
	text, usage, err := s.Generate(context.Background(), "qwen3-14b", "hello", GenerateParams{MaxTokens: 2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if want := "Simulated response"; text != want {
		t.Fatalf("text = %q, want the first two tokens %q", text, want)
	}
	if usage.CompletionTokens <= 0 {
		t.Fatalf("expected positive completion token estimate, got %d", usage.CompletionTokens)
	}
}

func TestSimulatedStreamGenerateEmitsInOrder(t *testing.T) {
	s := NewSimulated()
	var got []string
	_, err := s.StreamGenerate(context.Background(), "qwen3-14b", "hi", GenerateParams{}, func(tok string) error {
		got = append(got, tok)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamGenerate: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("expected at least one emitted token")
	}
	if got[0] != "Simulated" {
		t.Fatalf("expected first token %q, got %q", "Simulated", got[0])
	}
}

func TestSimulatedStreamGenerateStopsOnEmitError(t *testing.T) {
	s := NewSimulated()
	calls := 0
	stopErr := errStop{}
	_, err := s.StreamGenerate(context.Background(), "qwen3-14b", "hi", GenerateParams{}, func(tok string) error {
		calls++
		if calls == 2 {
			return stopErr
		}
		return nil
	})
	if err != stopErr {
		t.Fatalf("expected stopErr, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 emit calls before abort, got %d", calls)
	}
}

type errStop struct{}

func (errStop) Error() string { return "stop" }

func TestSimulatedFormatPromptFallback(t *testing.T) {
	s := NewSimulated()
	prompt := s.FormatPrompt("qwen3-14b", []chatmsg.Message{
		{Role: chatmsg.RoleUser, Content: "hello"},
	})
	want := "User: hello\n\nAssistant: "
	if prompt != want {
		t.Fatalf("FormatPrompt = %q, want %q", prompt, want)
	}
}

func TestSimulatedEncodeStopStringsSkipsEmpty(t *testing.T) {
	s := NewSimulated()
	ids := s.EncodeStopStrings("qwen3-14b", []string{"", "stop", ""})
	if len(ids) != 1 {
		t.Fatalf("expected 1 non-empty stop sequence, got %d", len(ids))
	}
}
