// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package preloader brings the declared resident model set online at
// startup. Just-in-time loads of models outside that set are refused
// by lifecycle.Manager when it is built with allowJIT false, not here.
package preloader

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/libraxisai/lbrx-gateway/internal/lifecycle"
	"github.com/libraxisai/lbrx-gateway/internal/registry"
)

// Preloader loads the resident set in priority order at startup and
// tracks a per-model instance count for round-robin routing.
//
// The instance counter is a forward-looking capacity hook only — the
// kernel supports one physical copy of a model's weights, so the
// counter never causes a second Load of the same id.
type Preloader struct {
	reg     *registry.Registry
	mgr     *lifecycle.Manager
	budget  float64 // MAX_MODEL_MEMORY_GB

	mu        sync.Mutex
	instances map[string]int
	roundRobin map[string]int
}

// New constructs a Preloader with a soft memory budget used only for a
// startup warning, not an enforced ceiling.
func New(reg *registry.Registry, mgr *lifecycle.Manager, budgetGB float64) *Preloader {
	return &Preloader{
		reg:        reg,
		mgr:        mgr,
		budget:     budgetGB,
		instances:  make(map[string]int),
		roundRobin: make(map[string]int),
	}
}

// Run loads the auto-load set in priority order. If the declared total
// exceeds the configured budget, it logs a warning but proceeds until
// the first load failure, matching the "log and continue" startup
// tolerance used throughout the gateway.
func (p *Preloader) Run(ctx context.Context) {
	set := p.reg.AutoLoadSet()
	ids := make([]string, 0, len(set))
	for _, d := range set {
		ids = append(ids, d.ID)
	}
	total := p.reg.Estimate(ids)
	if total > p.budget {
		slog.Warn("declared resident set exceeds configured memory budget",
			slog.Float64("declared_gb", total), slog.Float64("budget_gb", p.budget))
	}

	sort.Slice(set, func(i, j int) bool { return set[i].Priority < set[j].Priority })
	for _, d := range set {
		if err := p.mgr.Load(ctx, d.ID); err != nil {
			slog.Error("preloader: load failed, stopping further preloads",
				slog.String("model", d.ID), slog.Any("error", err))
			return
		}
		p.mu.Lock()
		p.instances[d.ID] = 1
		p.mu.Unlock()
	}
}

// NextInstance returns a round-robin index in [0, instanceCount) for id,
// for routing decisions when multiple logical instances are declared.
// With a count of one or less (what Run records for every preloaded
// model) it returns 0 and leaves the counter alone; a count above one,
// set through SetInstanceCount, makes successive calls cycle through
// 0..count-1.
func (p *Preloader) NextInstance(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.instances[id]
	if n <= 1 {
		return 0
	}
	idx := p.roundRobin[id] % n
	p.roundRobin[id] = idx + 1
	return idx
}

// SetInstanceCount declares how many logical instances of id exist,
// for configurations that request more than one.
func (p *Preloader) SetInstanceCount(id string, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instances[id] = count
}
