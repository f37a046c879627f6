// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ratelimit

import "testing"

func TestAllowWithinBudget(t *testing.T) {
	l := New(5, 1000)
	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("client-a")
		if !ok {
			t.Fatalf("request %d unexpectedly rejected within per-minute budget", i)
		}
	}
}

func TestAllowRejectsOverPerMinuteBudget(t *testing.T) {
	l := New(2, 1000)
	l.Allow("client-b")
	l.Allow("client-b")
	ok, wait := l.Allow("client-b")
	if ok {
		t.Fatal("expected third request to exceed the per-minute budget")
	}
	if wait <= 0 {
		t.Fatalf("expected a positive retry-after duration, got %v", wait)
	}
}

func TestAllowIsolatesKeys(t *testing.T) {
	l := New(1, 1000)
	ok, _ := l.Allow("client-c")
	if !ok {
		t.Fatal("expected first request for client-c to be allowed")
	}
	ok, _ = l.Allow("client-d")
	if !ok {
		t.Fatal("expected independent budget for a different key")
	}
}

func TestAllowRejectionDoesNotPartiallyConsumeBothBuckets(t *testing.T) {
	// Tiny per-hour budget should reject even though per-minute has room,
	// and must not leave the per-minute bucket partially drained.
	l := New(1000, 1)
	ok, _ := l.Allow("client-e")
	if !ok {
		t.Fatal("expected first request to be allowed")
	}
	ok, _ = l.Allow("client-e")
	if ok {
		t.Fatal("expected second request to be rejected by the per-hour budget")
	}
	// Only the first request may have taken a per-minute token: about
	// 999 of 1000 remain, not 998.
	l.mu.Lock()
	b := l.keys["client-e"]
	l.mu.Unlock()
	if got := b.perMinute.Tokens(); got < 998.5 {
		t.Fatalf("per-minute tokens = %v, want about 999 after the rejected request", got)
	}
}

func TestSweepEvictsIdleKeys(t *testing.T) {
	l := New(10, 10)
	l.Allow("stale-client")
	l.Sweep(0) // everything is "idle" relative to now
	l.mu.Lock()
	_, stillPresent := l.keys["stale-client"]
	l.mu.Unlock()
	if stillPresent {
		t.Fatal("expected Sweep(0) to evict all tracked keys")
	}
}
