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
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/libraxisai/lbrx-gateway/internal/journal"
)

// Supervisor owns every ProcessRecord and runs their state machines.
type Supervisor struct {
	cfg      *Config
	journal  *journal.Journal
	replayer *replayer

	records map[string]*ProcessRecord
}

// New constructs a Supervisor from cfg, opening its journal directory.
func New(cfg *Config) (*Supervisor, error) {
	j, err := journal.Open(cfg.QueueDir)
	if err != nil {
		return nil, err
	}
	s := &Supervisor{
		cfg:      cfg,
		journal:  j,
		replayer: newReplayer(),
		records:  make(map[string]*ProcessRecord),
	}
	for name, svcCfg := range cfg.Services {
		s.records[name] = newProcessRecord(name, svcCfg, cfg.LogDir, cfg.CrashSignatures)
	}
	return s, nil
}

// Run starts every configured service and blocks until ctx is
// cancelled or every service reaches the terminal abandoned state.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for name, rec := range s.records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runService(ctx, name, rec)
		}()
	}
	allStopped := make(chan struct{})
	go func() { wg.Wait(); close(allStopped) }()
	select {
	case <-ctx.Done():
	case <-allStopped:
		if ctx.Err() == nil {
			return errors.New("supervisor: every service abandoned")
		}
	}
	return ctx.Err()
}

// runService drives one ProcessRecord through
// stopped -> starting -> running -> crashed -> (starting | abandoned).
func (s *Supervisor) runService(ctx context.Context, name string, rec *ProcessRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := rec.Spawn(); err != nil {
			slog.Error("supervisor: spawn failed", slog.String("service", name), slog.Any("error", err))
			if !rec.RecordCrash(s.cfg.RestartWindowMinutes, s.cfg.MaxRestartAttempts) {
				rec.SetState(StateAbandoned)
				slog.Error("supervisor: service abandoned after repeated spawn failures", slog.String("service", name))
				return
			}
			time.Sleep(s.cfg.RestartDelay)
			continue
		}

		exitCh := make(chan error, 1)
		go func() { exitCh <- rec.Wait() }()

		startupTimer := time.NewTimer(s.cfg.Services[name].StartupDelay)
		select {
		case <-startupTimer.C:
			rec.SetState(StateRunning)
		case err := <-exitCh:
			startupTimer.Stop()
			s.handleCrash(ctx, name, rec, "process exited during startup", err)
			if rec.GetState() == StateAbandoned {
				return
			}
			continue
		}

		go s.healthLoop(ctx, name, rec)
		go s.memoryLoop(ctx, name, rec)

		select {
		case <-ctx.Done():
			return
		case sig := <-rec.CrashSignal():
			s.handleCrash(ctx, name, rec, "crash signature observed: "+sig, nil)
		case err := <-exitCh:
			s.handleCrash(ctx, name, rec, "process exited", err)
		}
		if rec.GetState() == StateAbandoned {
			return
		}
	}
}

func (s *Supervisor) handleCrash(ctx context.Context, name string, rec *ProcessRecord, reason string, err error) {
	rec.SetState(StateCrashed)
	slog.Warn("supervisor: service crashed", slog.String("service", name), slog.String("reason", reason), slog.Any("error", err))

	if !rec.RecordCrash(s.cfg.RestartWindowMinutes, s.cfg.MaxRestartAttempts) {
		rec.SetState(StateAbandoned)
		slog.Error("supervisor: restart limit exceeded, abandoning service", slog.String("service", name))
		return
	}
	time.Sleep(s.cfg.RestartDelay)
	rec.SetState(StateStarting)
}

// healthLoop polls the child's health endpoint. A non-200 counts as
// unhealthy but, per the state machine, never itself triggers a
// restart — only a process exit or crash signature does.
func (s *Supervisor) healthLoop(ctx context.Context, name string, rec *ProcessRecord) {
	cfg := s.cfg.Services[name]
	if cfg.HealthURL == "" {
		return
	}
	client := &http.Client{Timeout: 10 * time.Second}
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	becameHealthyOnce := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if rec.GetState() != StateRunning {
			return
		}
		resp, err := client.Get(cfg.HealthURL)
		if err != nil {
			slog.Warn("supervisor: health check failed", slog.String("service", name), slog.Any("error", err))
			continue
		}
		healthy := resp.StatusCode == http.StatusOK
		resp.Body.Close()
		if !healthy {
			slog.Warn("supervisor: unhealthy response", slog.String("service", name), slog.Int("status", resp.StatusCode))
			continue
		}
		if !becameHealthyOnce {
			becameHealthyOnce = true
			s.onHealthy(name, cfg)
		}
	}
}

// onHealthy runs the replay protocol once, the first time a freshly
// (re)started child reports healthy.
func (s *Supervisor) onHealthy(name string, cfg ServiceConfig) {
	baseURL := cfg.ReplayURL
	if baseURL == "" {
		baseURL = strings.TrimSuffix(cfg.HealthURL, "/api/v1/health")
	}
	if err := s.replayer.Replay(s.journal, baseURL); err != nil {
		slog.Error("supervisor: replay pass failed", slog.String("service", name), slog.Any("error", err))
	}
}

// memoryLoop polls RSS and logs a warning above the soft threshold. It
// never kills the child on memory alone.
func (s *Supervisor) memoryLoop(ctx context.Context, name string, rec *ProcessRecord) {
	if s.cfg.MemorySoftLimitGB <= 0 {
		return
	}
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if rec.GetState() != StateRunning {
			return
		}
		pid := rec.PID()
		if pid == 0 {
			continue
		}
		gb, err := readRSSGB(pid)
		if err != nil {
			continue
		}
		if gb > s.cfg.MemorySoftLimitGB {
			slog.Warn("supervisor: memory soft limit exceeded",
				slog.String("service", name), slog.Float64("rss_gb", gb), slog.Float64("limit_gb", s.cfg.MemorySoftLimitGB))
		}
	}
}
