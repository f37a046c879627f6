// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package httpapi implements the gateway's OpenAI-subset HTTP surface:
// chat/completion, model, session, and health endpoints.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/libraxisai/lbrx-gateway/internal/auth"
	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
	"github.com/libraxisai/lbrx-gateway/internal/config"
	"github.com/libraxisai/lbrx-gateway/internal/lifecycle"
	"github.com/libraxisai/lbrx-gateway/internal/registry"
	"github.com/libraxisai/lbrx-gateway/internal/router"
	"github.com/libraxisai/lbrx-gateway/internal/session"
	"github.com/libraxisai/lbrx-gateway/internal/sse"
)

// Handlers bundles every collaborator the HTTP surface needs. It holds
// no state of its own beyond these injected references, per the
// "explicitly injected collaborators" design note — no package-level
// singletons.
type Handlers struct {
	Manager  *lifecycle.Manager
	Registry *registry.Registry
	Router   *router.Router
	Sessions session.Store
	Cfg      *config.Config
}

// NewHandlers constructs a Handlers from its collaborators.
func NewHandlers(mgr *lifecycle.Manager, reg *registry.Registry, rt *router.Router, sessions session.Store, cfg *config.Config) *Handlers {
	return &Handlers{Manager: mgr, Registry: reg, Router: rt, Sessions: sessions, Cfg: cfg}
}

// HandleHealth reports process status, memory usage, and the loaded
// model set.
func (h *Handlers) HandleHealth(c *gin.Context) {
	stats, _ := h.Manager.MemoryUsage(c.Request.Context())
	loaded := h.Manager.Loaded()
	ids := make([]string, 0, len(loaded))
	for _, lm := range loaded {
		ids = append(ids, lm.ID)
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", MemoryUsage: stats.ActiveGB, LoadedModels: ids})
}

// HandleListModels lists every descriptor in the catalog.
func (h *Handlers) HandleListModels(c *gin.Context) {
	descriptors := h.Registry.All()
	out := make([]gin.H, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, descriptorJSON(d, h.Manager.IsLoaded(d.ID)))
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// HandleGetModel returns one descriptor plus its loaded state.
func (h *Handlers) HandleGetModel(c *gin.Context) {
	id := decodeModelID(c.Param("id"))
	d, err := h.Registry.Resolve(id)
	if err != nil {
		writeError(c, lifecycle.ErrModelNotFound)
		return
	}
	c.JSON(http.StatusOK, descriptorJSON(d, h.Manager.IsLoaded(d.ID)))
}

// HandleLoadModel delegates to the lifecycle manager's Load.
func (h *Handlers) HandleLoadModel(c *gin.Context) {
	id := decodeModelID(c.Param("id"))
	if err := h.Manager.Load(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "loaded", "model": id})
}

// HandleUnloadModel delegates to the lifecycle manager's Unload.
func (h *Handlers) HandleUnloadModel(c *gin.Context) {
	id := decodeModelID(c.Param("id"))
	if err := h.Manager.Unload(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unloaded", "model": id})
}

// HandleMemoryUsage returns a memory gauge snapshot.
func (h *Handlers) HandleMemoryUsage(c *gin.Context) {
	stats, err := h.Manager.MemoryUsage(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active_gb": stats.ActiveGB,
		"peak_gb":   stats.PeakGB,
		"cache_gb":  stats.CacheGB,
	})
}

// HandleChatCompletions implements the chat handler algorithm: default
// max_tokens when absent and reject a value above the configured limit
// with 400, extract the caller service from the bearer token, route,
// fold in session history if requested, and dispatch to the
// stream/non-stream branch.
func (h *Handlers) HandleChatCompletions(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error(), "")
		return
	}

	maxTokens := h.Cfg.MaxTokensDefault
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens > h.Cfg.MaxTokensLimit {
		badRequest(c, "max_tokens exceeds configured limit", "max_tokens")
		return
	}

	callerService := h.callerService(c)
	routedModel := h.Router.Route(router.Request{
		CallerService:  callerService,
		CallerID:       h.callerID(c),
		RequestedModel: req.Model,
	})

	messages, err := h.resolveMessages(c.Request.Context(), req.SessionID, req.Messages)
	if err != nil {
		writeError(c, err)
		return
	}

	temperature, topP := 1.0, 1.0
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.TopP != nil {
		topP = *req.TopP
	}

	genReq := lifecycle.GenerateRequest{
		ModelID:     routedModel,
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Stop:        req.Stop,
	}

	if req.Stream {
		h.streamChat(c, genReq, req.SessionID)
		return
	}
	h.nonStreamChat(c, genReq, req.SessionID)
}

func (h *Handlers) nonStreamChat(c *gin.Context, genReq lifecycle.GenerateRequest, sessionID string) {
	if genReq.MaxTokens == 0 {
		h.respondEmpty(c, genReq.ModelID, sessionID)
		return
	}

	result, err := h.Manager.Generate(c.Request.Context(), genReq)
	if err != nil {
		writeError(c, err)
		return
	}

	content := sse.StripThinkTags(result.Text)
	if sessionID != "" {
		_ = h.Sessions.AddMessage(c.Request.Context(), sessionID,
			chatmsg.Message{Role: chatmsg.RoleAssistant, Content: content},
			time.Duration(h.Cfg.SessionTTLHours)*time.Hour)
	}

	c.JSON(http.StatusOK, ChatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   genReq.ModelID,
		Choices: []Choice{{
			Index:        0,
			Message:      chatmsg.Message{Role: chatmsg.RoleAssistant, Content: content},
			FinishReason: FinishStop,
		}},
		Usage: Usage{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			TotalTokens:      result.PromptTokens + result.CompletionTokens,
		},
	})
}

func (h *Handlers) respondEmpty(c *gin.Context, model, sessionID string) {
	c.JSON(http.StatusOK, ChatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			Message:      chatmsg.Message{Role: chatmsg.RoleAssistant, Content: ""},
			FinishReason: FinishLength,
		}},
	})
}

func (h *Handlers) streamChat(c *gin.Context, genReq lifecycle.GenerateRequest, sessionID string) {
	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	writer := sse.NewWriter(c.Writer, c.Writer)

	if genReq.MaxTokens == 0 {
		finish := FinishLength
		_ = writer.WriteChunk(StreamChunk{
			ID: id, Object: "chat.completion.chunk", Created: created, Model: genReq.ModelID,
			Choices: []StreamChoice{{Index: 0, Delta: Delta{Role: "assistant"}, FinishReason: &finish}},
		})
		_ = writer.Done()
		return
	}

	_ = writer.WriteChunk(StreamChunk{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: genReq.ModelID,
		Choices: []StreamChoice{{Index: 0, Delta: Delta{Role: "assistant"}}},
	})

	filter := sse.NewThinkFilter()
	var full strings.Builder
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	_, err := h.Manager.StreamGenerate(ctx, genReq, func(token string) error {
		visible := filter.Feed(token)
		if visible == "" {
			return nil
		}
		full.WriteString(visible)
		return writer.WriteChunk(StreamChunk{
			ID: id, Object: "chat.completion.chunk", Created: created, Model: genReq.ModelID,
			Choices: []StreamChoice{{Index: 0, Delta: Delta{Content: visible}}},
		})
	})
	if err != nil {
		_ = writer.WriteError(err.Error())
		return
	}

	finish := FinishStop
	_ = writer.WriteChunk(StreamChunk{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: genReq.ModelID,
		Choices: []StreamChoice{{Index: 0, Delta: Delta{}, FinishReason: &finish}},
	})
	_ = writer.Done()

	if sessionID != "" {
		_ = h.Sessions.AddMessage(c.Request.Context(), sessionID,
			chatmsg.Message{Role: chatmsg.RoleAssistant, Content: full.String()},
			time.Duration(h.Cfg.SessionTTLHours)*time.Hour)
	}
}

// HandleCompletions is the legacy text-prompt endpoint — a thin wrapper
// that reuses the chat path's routing/lifecycle/journal/SSE machinery.
func (h *Handlers) HandleCompletions(c *gin.Context) {
	var req CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error(), "")
		return
	}
	chatReq := ChatRequest{
		Model:       req.Model,
		Messages:    []chatmsg.Message{{Role: chatmsg.RoleUser, Content: req.Prompt}},
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      req.Stream,
		SessionID:   req.SessionID,
	}
	body, _ := encodeJSON(chatReq)
	c.Request.Body = body
	h.HandleChatCompletions(c)
}

// HandleCreateSession creates a session, generating an id if absent.
func (h *Handlers) HandleCreateSession(c *gin.Context) {
	var req SessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		badRequest(c, err.Error(), "")
		return
	}
	ttl := time.Duration(h.Cfg.SessionTTLHours) * time.Hour
	if req.TTL != nil {
		ttl = time.Duration(*req.TTL) * time.Second
	}
	sess, err := h.Sessions.Create(c.Request.Context(), req.SessionID, req.Data, ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// HandleGetSession fetches a session by id.
func (h *Handlers) HandleGetSession(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// HandleDeleteSession deletes a session by id.
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	ok, err := h.Sessions.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		writeError(c, session.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSessionMessages reads the ordered message log, honoring an
// optional `?limit` query parameter.
func (h *Handlers) HandleSessionMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	msgs, err := h.Sessions.GetMessages(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// resolveMessages loads-or-creates the session (when sessionID is
// non-empty), appends the incoming messages, and reads back the full
// log as prompt input; otherwise the request's messages are used
// verbatim.
func (h *Handlers) resolveMessages(ctx context.Context, sessionID string, incoming []chatmsg.Message) ([]chatmsg.Message, error) {
	if sessionID == "" {
		return incoming, nil
	}
	ttl := time.Duration(h.Cfg.SessionTTLHours) * time.Hour
	if _, err := h.Sessions.Get(ctx, sessionID); err != nil {
		if _, cerr := h.Sessions.Create(ctx, sessionID, nil, ttl); cerr != nil {
			return nil, cerr
		}
	}
	for _, m := range incoming {
		if err := h.Sessions.AddMessage(ctx, sessionID, m, ttl); err != nil {
			return nil, err
		}
	}
	return h.Sessions.GetMessages(ctx, sessionID, 0)
}

func (h *Handlers) callerService(c *gin.Context) string {
	return h.Router.ExtractService(c.GetHeader("Authorization"))
}

func (h *Handlers) callerID(c *gin.Context) string {
	if v, ok := c.Get("identity"); ok {
		if id, ok := v.(auth.Identity); ok {
			return id.Subject
		}
	}
	return ""
}

func descriptorJSON(d *registry.Descriptor, loaded bool) gin.H {
	return gin.H{
		"id":             d.ID,
		"aliases":        d.Aliases,
		"memory_gb":      d.MemoryGB,
		"context_window": d.ContextWindow,
		"auto_load":      d.AutoLoad,
		"priority":       d.Priority,
		"kernel_kind":    d.KernelKind,
		"loaded":         loaded,
	}
}

// decodeModelID reverses the path-segment escaping of "/" as "--".
func decodeModelID(raw string) string {
	return strings.ReplaceAll(raw, "--", "/")
}
