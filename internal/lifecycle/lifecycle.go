// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lifecycle implements the sole owner of loaded-model state and
// the sole caller of the inference kernel. Every native call — load,
// unload, generate, stream-generate — passes through a single mutex
// here; the accelerator fails with an "addCompletedHandler" assertion
// on concurrent command-buffer encoding, so overlap is not negotiable.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
	"github.com/libraxisai/lbrx-gateway/internal/kernel"
	"github.com/libraxisai/lbrx-gateway/internal/metrics"
	"github.com/libraxisai/lbrx-gateway/internal/registry"
)

// Typed failure modes. None are retried inside the manager; callers
// (the router, the HTTP handlers) decide whether to fall back or fail.
var (
	ErrModelNotFound    = errors.New("lifecycle: model not found")
	ErrNotAdmissible    = errors.New("lifecycle: model not admissible")
	ErrLoadFailed       = errors.New("lifecycle: load failed")
	ErrGenerationFailed = errors.New("lifecycle: generation failed")
	ErrCancelled        = errors.New("lifecycle: cancelled")
)

// LoadedModel is the mutable record for one resident model. It is
// mutated only by the Manager, under the kernel mutex.
type LoadedModel struct {
	ID           string
	LoadedAt     time.Time
	LastUsedAt   time.Time
	ResidentGB   float64
}

// GenerateRequest bundles the inputs to a generation call.
type GenerateRequest struct {
	ModelID     string
	Messages    []chatmsg.Message
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
}

// GenerateResult is the synchronous generation outcome.
type GenerateResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Manager is the model lifecycle manager. One Manager per process.
//
// Thread Safety: the kernel mutex is held for the duration of every
// native Load, Unload, Generate and StreamGenerate call. IsLoaded and
// Loaded read only the manager's own state, and MemoryUsage calls the
// kernel without the mutex; handler-side work that doesn't touch the
// kernel (validation, session reads) should happen before calling in.
type Manager struct {
	kernelMu sync.Mutex
	k        kernel.Kernel
	reg      *registry.Registry

	stateMu sync.RWMutex
	loaded  map[string]*LoadedModel

	allowJIT bool
}

// New constructs a Manager bound to a kernel and a registry. allowJIT
// mirrors the preloader's JIT-load switch (default off per spec).
func New(k kernel.Kernel, reg *registry.Registry, allowJIT bool) *Manager {
	return &Manager{
		k:        k,
		reg:      reg,
		loaded:   make(map[string]*LoadedModel),
		allowJIT: allowJIT,
	}
}

// Initialize loads the default model, then the remaining auto-load set
// in priority order. A load failure is logged but does not abort
// startup — the gateway should still come up and serve /health.
func (m *Manager) Initialize(ctx context.Context, defaultModel string) {
	ordered := m.reg.AutoLoadSet()
	// Ensure the configured default loads first regardless of its
	// position in the auto-load set.
	seen := make(map[string]bool, len(ordered))
	if d, err := m.reg.Resolve(defaultModel); err == nil {
		if err := m.Load(ctx, d.ID); err != nil {
			slog.Error("initialize: default model failed to load", slog.String("model", d.ID), slog.Any("error", err))
		}
		seen[d.ID] = true
	}
	for _, d := range ordered {
		if seen[d.ID] {
			continue
		}
		if err := m.Load(ctx, d.ID); err != nil {
			slog.Error("initialize: auto-load model failed", slog.String("model", d.ID), slog.Any("error", err))
		}
	}
}

// Load resolves id and brings it resident. If already loaded, it only
// refreshes the last-used timestamp.
func (m *Manager) Load(ctx context.Context, id string) error {
	d, err := m.reg.Resolve(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}

	m.stateMu.RLock()
	existing, ok := m.loaded[d.ID]
	m.stateMu.RUnlock()
	if ok {
		m.stateMu.Lock()
		existing.LastUsedAt = time.Now()
		m.stateMu.Unlock()
		return nil
	}

	m.kernelMu.Lock()
	defer m.kernelMu.Unlock()

	if err := m.k.Load(ctx, d.ID); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLoadFailed, d.ID, err)
	}

	stats, _ := m.k.MemoryStats(ctx)
	now := time.Now()
	m.stateMu.Lock()
	m.loaded[d.ID] = &LoadedModel{
		ID:         d.ID,
		LoadedAt:   now,
		LastUsedAt: now,
		ResidentGB: d.MemoryGB,
	}
	m.stateMu.Unlock()
	metrics.ModelMemoryGB.WithLabelValues(d.ID).Set(d.MemoryGB)
	slog.Info("model loaded", slog.String("model", d.ID), slog.Float64("active_gb", stats.ActiveGB))
	return nil
}

// Unload drops the handle and asks the kernel to clear its cache.
func (m *Manager) Unload(ctx context.Context, id string) error {
	d, err := m.reg.Resolve(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}

	m.kernelMu.Lock()
	defer m.kernelMu.Unlock()

	if err := m.k.Unload(ctx, d.ID); err != nil {
		return fmt.Errorf("lifecycle: unload %s: %w", d.ID, err)
	}
	m.stateMu.Lock()
	delete(m.loaded, d.ID)
	m.stateMu.Unlock()
	metrics.ModelMemoryGB.DeleteLabelValues(d.ID)
	slog.Info("model unloaded", slog.String("model", d.ID))
	return nil
}

// IsLoaded reports whether id (after alias resolution) is currently
// resident.
func (m *Manager) IsLoaded(id string) bool {
	d, err := m.reg.Resolve(id)
	if err != nil {
		return false
	}
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	_, ok := m.loaded[d.ID]
	return ok
}

// Loaded returns a snapshot of every resident model record.
func (m *Manager) Loaded() []*LoadedModel {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	out := make([]*LoadedModel, 0, len(m.loaded))
	for _, lm := range m.loaded {
		cp := *lm
		out = append(out, &cp)
	}
	return out
}

// ensureLoaded loads a non-resident model if, and only if, JIT loading
// is enabled. Without it, a non-resident but admissible model is
// refused — the preloader's veto is enforced here at the point of use.
func (m *Manager) ensureLoaded(ctx context.Context, id string) error {
	if m.IsLoaded(id) {
		return nil
	}
	if !m.allowJIT {
		return fmt.Errorf("%w: %s is not resident and JIT loading is disabled", ErrNotAdmissible, id)
	}
	return m.Load(ctx, id)
}

// Generate resolves id, ensures residency, applies the chat template
// (or the fallback role-prefix format), and invokes the kernel
// synchronously under the kernel mutex.
func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	d, err := m.reg.Resolve(req.ModelID)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("%w: %s", ErrModelNotFound, req.ModelID)
	}
	if err := m.ensureLoaded(ctx, d.ID); err != nil {
		return GenerateResult{}, err
	}

	prompt := m.k.FormatPrompt(d.ID, req.Messages)
	params := kernel.GenerateParams{
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		MaxTokens:    req.MaxTokens,
		StopTokenIDs: m.k.EncodeStopStrings(d.ID, req.Stop),
	}

	m.kernelMu.Lock()
	defer m.kernelMu.Unlock()
	m.touch(d.ID)

	text, usage, err := m.k.Generate(ctx, d.ID, prompt, params)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("%w: %s: %v", ErrGenerationFailed, d.ID, err)
	}
	return GenerateResult{
		Text:             text,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	}, nil
}

// StreamGenerate is the streaming counterpart. The kernel mutex is held
// for the entire duration of the stream — other generation requests
// wait — per the concurrency contract. emit is called once per token,
// in order; a consumer that stops pulling causes the caller's context
// to be cancelled, which aborts the stream after the in-flight token.
func (m *Manager) StreamGenerate(ctx context.Context, req GenerateRequest, emit func(token string) error) (GenerateResult, error) {
	d, err := m.reg.Resolve(req.ModelID)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("%w: %s", ErrModelNotFound, req.ModelID)
	}
	if err := m.ensureLoaded(ctx, d.ID); err != nil {
		return GenerateResult{}, err
	}

	prompt := m.k.FormatPrompt(d.ID, req.Messages)
	params := kernel.GenerateParams{
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		MaxTokens:    req.MaxTokens,
		StopTokenIDs: m.k.EncodeStopStrings(d.ID, req.Stop),
	}

	m.kernelMu.Lock()
	defer m.kernelMu.Unlock()
	m.touch(d.ID)

	usage, err := m.k.StreamGenerate(ctx, d.ID, prompt, params, emit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return GenerateResult{}, ErrCancelled
		}
		return GenerateResult{}, fmt.Errorf("%w: %s: %v", ErrGenerationFailed, d.ID, err)
	}
	return GenerateResult{
		Text:             "",
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	}, nil
}

// MemoryUsage reports the accelerator's active/peak/cache memory, in
// GB, and refreshes the per-model gauges from the current resident set
// so a scrape always reflects the latest loaded/unloaded state even if
// it lands between a Load/Unload call and the next one.
func (m *Manager) MemoryUsage(ctx context.Context) (kernel.MemoryStats, error) {
	for _, lm := range m.Loaded() {
		metrics.ModelMemoryGB.WithLabelValues(lm.ID).Set(lm.ResidentGB)
	}
	return m.k.MemoryStats(ctx)
}

func (m *Manager) touch(id string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if lm, ok := m.loaded[id]; ok {
		lm.LastUsedAt = time.Now()
	}
}
