// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package httpapi

import "github.com/libraxisai/lbrx-gateway/internal/chatmsg"

// ChatRequest is the OpenAI-subset request body for /chat/completions.
type ChatRequest struct {
	Model       string             `json:"model" binding:"required"`
	Messages    []chatmsg.Message  `json:"messages" binding:"required,min=1"`
	Temperature *float64           `json:"temperature,omitempty" binding:"omitempty,min=0,max=2"`
	TopP        *float64           `json:"top_p,omitempty" binding:"omitempty,min=0,max=1"`
	MaxTokens   *int               `json:"max_tokens,omitempty" binding:"omitempty,min=0"`
	Stop        []string           `json:"stop,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	SessionID   string             `json:"session_id,omitempty"`
}

// CompletionRequest is the legacy single-prompt endpoint's body.
type CompletionRequest struct {
	Model       string   `json:"model" binding:"required"`
	Prompt      string   `json:"prompt" binding:"required"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
}

// FinishReason enumerates why a completion stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
)

// Choice is one completion choice in a ChatResponse.
type Choice struct {
	Index        int             `json:"index"`
	Message      chatmsg.Message `json:"message"`
	FinishReason FinishReason    `json:"finish_reason"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the non-streaming /chat/completions response body.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Delta is the incremental content of a streaming chunk.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// StreamChoice is one choice within a StreamChunk.
type StreamChoice struct {
	Index        int           `json:"index"`
	Delta        Delta         `json:"delta"`
	FinishReason *FinishReason `json:"finish_reason"`
}

// StreamChunk is a single SSE `data:` frame's JSON payload.
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// ErrorEnvelope is the stable JSON error shape for every 4xx/5xx.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the inner payload of ErrorEnvelope.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// SessionCreateRequest is the body for POST /sessions.
type SessionCreateRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	TTL       *int           `json:"ttl,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string   `json:"status"`
	MemoryUsage  float64  `json:"memory_usage"`
	LoadedModels []string `json:"loaded_models"`
}
