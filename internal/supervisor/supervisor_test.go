// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supervisor

import (
	"context"
	"testing"
	"time"
)

func testConfig(t *testing.T, command []string) *Config {
	t.Helper()
	return &Config{
		Services: map[string]ServiceConfig{
			"child": {Name: "child", Command: command},
		},
		QueueDir:             t.TempDir(),
		HealthCheckInterval:  50 * time.Millisecond,
		RestartDelay:         10 * time.Millisecond,
		MaxRestartAttempts:   2,
		RestartWindowMinutes: 10,
		LogDir:               t.TempDir(),
		CrashSignatures:      DefaultCrashSignatures,
	}
}

func TestRunAbandonsServiceAfterRepeatedExits(t *testing.T) {
	cfg := testConfig(t, []string{"sh", "-c", "exit 1"})
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	rec := s.records["child"]
	deadline := time.After(time.Second)
	for {
		if rec.GetState() == StateAbandoned {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("service never reached abandoned state, last state %q", rec.GetState())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t, []string{"sh", "-c", "sleep 5"})
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
