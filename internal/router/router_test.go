// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"testing"

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

func TestRouteExplicitWhitelistedWins(t *testing.T) {
	r := New(newTestRegistry(t), "qwen3-14b")
	got := r.Route(Request{CallerService: "vista", RequestedModel: "deepseek-coder-v2"})
	if got != "deepseek-coder-v2" {
		t.Fatalf("Route = %q, want %q", got, "deepseek-coder-v2")
	}
}

func TestRouteExplicitNonWhitelistedFallsThrough(t *testing.T) {
	r := New(newTestRegistry(t), "qwen3-14b")
	got := r.Route(Request{CallerService: "vista", RequestedModel: "not-a-real-model"})
	if got != "c4ai-03-2025" {
		t.Fatalf("Route = %q, want service default %q", got, "c4ai-03-2025")
	}
}

func TestRouteUserOverrideBeatsServiceDefault(t *testing.T) {
	r := New(newTestRegistry(t), "qwen3-14b", WithUserOverride("vista:alice", "deepseek-coder-v2"))
	got := r.Route(Request{CallerService: "vista", CallerID: "alice"})
	if got != "deepseek-coder-v2" {
		t.Fatalf("Route = %q, want %q", got, "deepseek-coder-v2")
	}
	// A different caller under the same service still gets the service default.
	got = r.Route(Request{CallerService: "vista", CallerID: "bob"})
	if got != "c4ai-03-2025" {
		t.Fatalf("Route for bob = %q, want service default %q", got, "c4ai-03-2025")
	}
}

func TestRouteServiceDefault(t *testing.T) {
	r := New(newTestRegistry(t), "qwen3-14b")
	got := r.Route(Request{CallerService: "forkmeASAPp"})
	if got != "deepseek-coder-v2" {
		t.Fatalf("Route = %q, want %q", got, "deepseek-coder-v2")
	}
}

func TestRouteGlobalDefault(t *testing.T) {
	r := New(newTestRegistry(t), "qwen3-14b")
	got := r.Route(Request{CallerService: "unknown-service"})
	if got != "qwen3-14b" {
		t.Fatalf("Route = %q, want global default %q", got, "qwen3-14b")
	}
}

func TestFallbackChain(t *testing.T) {
	r := New(newTestRegistry(t), "qwen3-14b")
	if got := r.Fallback("qwen3-14b"); got != "deepseek-coder-v2" {
		t.Fatalf("Fallback(qwen3-14b) = %q, want %q", got, "deepseek-coder-v2")
	}
	if got := r.Fallback("whisper-large-v3"); got != "" {
		t.Fatalf("Fallback(whisper-large-v3) = %q, want empty", got)
	}
	if got := r.Fallback("does-not-exist"); got != "" {
		t.Fatalf("Fallback(does-not-exist) = %q, want empty", got)
	}
}

func TestExtractService(t *testing.T) {
	r := New(newTestRegistry(t), "qwen3-14b")
	cases := []struct {
		credential string
		want       string
	}{
		{"Bearer vista_abc123", "vista"},
		{"whisp_xyz", "whisplbrx"},
		{"fork_xyz", "forkmeASAPp"},
		{"data_xyz", "anydatanext"},
		{"voice_xyz", "lbrxvoice"},
		{"noPrefixAtAll", ""},
		{"unknownprefix_xyz", ""},
	}
	for _, tc := range cases {
		if got := r.ExtractService(tc.credential); got != tc.want {
			t.Errorf("ExtractService(%q) = %q, want %q", tc.credential, got, tc.want)
		}
	}
}
