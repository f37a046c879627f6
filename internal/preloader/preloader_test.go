// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package preloader

import (
	"context"
	"testing"

	"github.com/libraxisai/lbrx-gateway/internal/kernel"
	"github.com/libraxisai/lbrx-gateway/internal/lifecycle"
	"github.com/libraxisai/lbrx-gateway/internal/registry"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.DefaultCatalog())
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

func TestRunLoadsEveryAutoLoadModel(t *testing.T) {
	reg := newTestRegistry(t)
	mgr := lifecycle.New(kernel.NewSimulated(), reg, false)
	p := New(reg, mgr, 1000)

	p.Run(context.Background())

	for _, d := range reg.AutoLoadSet() {
		if !mgr.IsLoaded(d.ID) {
			t.Fatalf("expected auto-load model %s to be loaded after Run", d.ID)
		}
	}
}

func TestRunProceedsDespiteBudgetOverrun(t *testing.T) {
	reg := newTestRegistry(t)
	mgr := lifecycle.New(kernel.NewSimulated(), reg, false)
	p := New(reg, mgr, 0.001) // declared set certainly exceeds this

	p.Run(context.Background())

	for _, d := range reg.AutoLoadSet() {
		if !mgr.IsLoaded(d.ID) {
			t.Fatalf("expected model %s to still load despite the budget warning", d.ID)
		}
	}
}

func TestNextInstanceSingleCopyAlwaysZero(t *testing.T) {
	reg := newTestRegistry(t)
	mgr := lifecycle.New(kernel.NewSimulated(), reg, false)
	p := New(reg, mgr, 1000)

	for i := 0; i < 3; i++ {
		if idx := p.NextInstance("qwen3-14b"); idx != 0 {
			t.Fatalf("NextInstance = %d, want 0 for a single declared instance", idx)
		}
	}
}

func TestNextInstanceRoundRobinsAcrossDeclaredCount(t *testing.T) {
	reg := newTestRegistry(t)
	mgr := lifecycle.New(kernel.NewSimulated(), reg, false)
	p := New(reg, mgr, 1000)
	p.SetInstanceCount("qwen3-14b", 3)

	got := []int{p.NextInstance("qwen3-14b"), p.NextInstance("qwen3-14b"), p.NextInstance("qwen3-14b"), p.NextInstance("qwen3-14b")}
	want := []int{0, 1, 2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("NextInstance sequence = %v, want %v", got, want)
		}
	}
}
