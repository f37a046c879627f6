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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
)

// Simulated is a deterministic Kernel used when no real accelerator
// binding is wired in — the default for development and for tests. It
// never touches a GPU; Load/Unload just track a resident set and
// Generate/StreamGenerate echo a canned response token by token, with a
// configurable per-token delay so streaming behavior is exercisable.
//
// Thread Safety: Simulated is safe for concurrent use; the lifecycle
// manager calls MemoryStats, FormatPrompt and EncodeStopStrings outside
// its kernel mutex.
type Simulated struct {
	mu       sync.Mutex
	resident map[string]bool
	// TokenDelay is slept between emitted tokens in StreamGenerate.
	// Zero means no delay.
	TokenDelay time.Duration
}

// NewSimulated constructs a Simulated kernel with no resident models.
func NewSimulated() *Simulated {
	return &Simulated{resident: make(map[string]bool)}
}

func (s *Simulated) Load(ctx context.Context, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resident[modelID] = true
	return nil
}

func (s *Simulated) Unload(ctx context.Context, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resident, modelID)
	return nil
}

func (s *Simulated) Generate(ctx context.Context, modelID string, prompt string, params GenerateParams) (string, TokenCounts, error) {
	tokens := s.respondTokens(prompt, params)
	text := strings.Join(tokens, "")
	usage := TokenCounts{
		PromptTokens:     wordEstimate(prompt),
		CompletionTokens: wordEstimate(text),
	}
	return text, usage, nil
}

func (s *Simulated) StreamGenerate(ctx context.Context, modelID string, prompt string, params GenerateParams, emit func(token string) error) (TokenCounts, error) {
	tokens := s.respondTokens(prompt, params)
	var completion strings.Builder
	for _, tok := range tokens {
		select {
		case <-ctx.Done():
			return TokenCounts{}, ctx.Err()
		default:
		}
		if err := emit(tok); err != nil {
			return TokenCounts{
				PromptTokens:     wordEstimate(prompt),
				CompletionTokens: wordEstimate(completion.String()),
			}, err
		}
		completion.WriteString(tok)
		if s.TokenDelay > 0 {
			time.Sleep(s.TokenDelay)
		}
	}
	return TokenCounts{
		PromptTokens:     wordEstimate(prompt),
		CompletionTokens: wordEstimate(completion.String()),
	}, nil
}

func (s *Simulated) MemoryStats(ctx context.Context) (MemoryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := float64(len(s.resident)) * 4.0
	return MemoryStats{ActiveGB: active, PeakGB: active, CacheGB: 0}, nil
}

func (s *Simulated) EncodeStopStrings(modelID string, stops []string) [][]int {
	var ids [][]int
	for _, stop := range stops {
		if stop == "" {
			continue
		}
		seq := make([]int, len(stop))
		for i, r := range stop {
			seq[i] = int(r)
		}
		ids = append(ids, seq)
	}
	return ids
}

// FormatPrompt has no registered per-model chat template in the
// simulated kernel, so it always uses the role-prefix fallback format:
// "{Role}: {Content}\n\n" per message, ending in the generation cue
// "Assistant: ".
func (s *Simulated) FormatPrompt(modelID string, messages []chatmsg.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n\n", capitalize(string(m.Role)), m.Content)
	}
	b.WriteString("Assistant: ")
	return b.String()
}

// respondTokens produces the same fixed six-token response for every
// prompt, truncated to the first MaxTokens tokens when MaxTokens is
// positive and smaller than six.
func (s *Simulated) respondTokens(prompt string, params GenerateParams) []string {
	base := []string{"Simulated", " response", " to", " your", " request", "."}
	if params.MaxTokens > 0 && params.MaxTokens < len(base) {
		base = base[:params.MaxTokens]
	}
	return base
}

func wordEstimate(s string) int {
	n := len(strings.Fields(s))
	return int(float64(n) * 1.3)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
