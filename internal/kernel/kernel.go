// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kernel defines the interface the lifecycle manager uses to
// talk to the native inference backend. The concrete accelerator
// binding is an external collaborator out of scope for this module; a
// Simulated implementation is provided for tests and for running the
// gateway without real model weights.
//
// Thread Safety: the lifecycle manager's kernel mutex serializes Load,
// Unload, Generate and StreamGenerate. MemoryStats, EncodeStopStrings
// and FormatPrompt can be called outside that mutex, concurrently with
// the serialized calls, so implementations must make them safe for
// concurrent use.
package kernel

import (
	"context"

	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
)

// GenerateParams carries the sampling and stop-condition parameters for
// a single generation call.
type GenerateParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	StopTokenIDs [][]int
}

// MemoryStats reports the accelerator's introspected memory usage, in GB.
type MemoryStats struct {
	ActiveGB float64
	PeakGB   float64
	CacheGB  float64
}

// TokenCounts reports prompt and completion token usage for a
// generation. Exact is false when the count is a word-based estimate
// rather than a true tokenizer count.
type TokenCounts struct {
	PromptTokens     int
	CompletionTokens int
	Exact            bool
}

// Kernel is the native inference library handle for one loaded model.
//
// Description:
//
//	Load and Unload manage weights residency. Generate and StreamGenerate
//	run inference. The lifecycle manager calls those four from inside
//	its kernel mutex, so no two of them, on any model, ever overlap;
//	the remaining methods are not covered by that mutex.
type Kernel interface {
	// Load brings a model's weights into memory. Blocks until ready.
	Load(ctx context.Context, modelID string) error

	// Unload releases a model's weights and clears any accelerator cache.
	Unload(ctx context.Context, modelID string) error

	// Generate runs a synchronous, non-streaming completion.
	Generate(ctx context.Context, modelID string, prompt string, params GenerateParams) (text string, usage TokenCounts, err error)

	// StreamGenerate runs a streaming completion, invoking emit once per
	// token in order. emit returning an error aborts generation after
	// the current token (cooperative cancellation).
	StreamGenerate(ctx context.Context, modelID string, prompt string, params GenerateParams, emit func(token string) error) (usage TokenCounts, err error)

	// MemoryStats reports current accelerator memory usage.
	MemoryStats(ctx context.Context) (MemoryStats, error)

	// EncodeStopStrings turns caller-supplied stop strings into
	// tokenizer id sequences, skipping empty strings.
	EncodeStopStrings(modelID string, stops []string) [][]int

	// FormatPrompt renders a message list into a prompt string using the
	// model's chat template when one is registered, or the role-prefix
	// fallback otherwise.
	FormatPrompt(modelID string, messages []chatmsg.Message) string
}
