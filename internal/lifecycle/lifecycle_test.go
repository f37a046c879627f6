// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/libraxisai/lbrx-gateway/internal/chatmsg"
	"github.com/libraxisai/lbrx-gateway/internal/kernel"
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

func TestLoadThenIsLoaded(t *testing.T) {
	mgr := New(kernel.NewSimulated(), newTestRegistry(t), false)
	if mgr.IsLoaded("qwen3-14b") {
		t.Fatal("expected model not loaded initially")
	}
	if err := mgr.Load(context.Background(), "qwen3-14b"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !mgr.IsLoaded("default") {
		t.Fatal("expected IsLoaded to resolve aliases too")
	}
}

func TestLoadUnknownModelFails(t *testing.T) {
	mgr := New(kernel.NewSimulated(), newTestRegistry(t), false)
	err := mgr.Load(context.Background(), "not-a-model")
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestGenerateWithoutJITRefusesNonResident(t *testing.T) {
	mgr := New(kernel.NewSimulated(), newTestRegistry(t), false)
	_, err := mgr.Generate(context.Background(), GenerateRequest{
		ModelID:  "whisper-large-v3", // not auto-load, not yet loaded
		Messages: []chatmsg.Message{{Role: chatmsg.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrNotAdmissible) {
		t.Fatalf("expected ErrNotAdmissible, got %v", err)
	}
}

func TestGenerateSucceedsAfterLoad(t *testing.T) {
	mgr := New(kernel.NewSimulated(), newTestRegistry(t), false)
	if err := mgr.Load(context.Background(), "qwen3-14b"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	result, err := mgr.Generate(context.Background(), GenerateRequest{
		ModelID:  "qwen3-14b",
		Messages: []chatmsg.Message{{Role: chatmsg.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Text == "" {
		t.Fatal("expected non-empty generated text")
	}
}

func TestUnloadDropsResidency(t *testing.T) {
	mgr := New(kernel.NewSimulated(), newTestRegistry(t), false)
	mgr.Load(context.Background(), "qwen3-14b")
	if err := mgr.Unload(context.Background(), "qwen3-14b"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if mgr.IsLoaded("qwen3-14b") {
		t.Fatal("expected model not loaded after Unload")
	}
}

// fakeKernel detects overlapping calls into the kernel by tracking an
// in-call counter that must never exceed 1.
type fakeKernel struct {
	kernel.Kernel
	inFlight int32
	overlap  int32
}

func (f *fakeKernel) Load(ctx context.Context, modelID string) error {
	return f.guarded(func() error { return nil })
}

func (f *fakeKernel) Generate(ctx context.Context, modelID, prompt string, params kernel.GenerateParams) (string, kernel.TokenCounts, error) {
	var text string
	err := f.guarded(func() error {
		time.Sleep(time.Millisecond)
		text = "ok"
		return nil
	})
	return text, kernel.TokenCounts{}, err
}

func (f *fakeKernel) guarded(work func() error) error {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		atomic.AddInt32(&f.overlap, 1)
	}
	defer atomic.AddInt32(&f.inFlight, -1)
	return work()
}

func (f *fakeKernel) FormatPrompt(modelID string, messages []chatmsg.Message) string { return "" }
func (f *fakeKernel) EncodeStopStrings(modelID string, stops []string) [][]int        { return nil }
func (f *fakeKernel) MemoryStats(ctx context.Context) (kernel.MemoryStats, error) {
	return kernel.MemoryStats{}, nil
}
func (f *fakeKernel) Unload(ctx context.Context, modelID string) error { return nil }

func TestGenerateCallsNeverOverlap(t *testing.T) {
	fk := &fakeKernel{}
	mgr := New(fk, newTestRegistry(t), true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.Generate(context.Background(), GenerateRequest{
				ModelID:  "qwen3-14b",
				Messages: []chatmsg.Message{{Role: chatmsg.RoleUser, Content: "hi"}},
			})
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&fk.overlap) != 0 {
		t.Fatalf("detected %d overlapping kernel calls", fk.overlap)
	}
}
