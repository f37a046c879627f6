// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package supervisor is the crash-tolerant parent process: it spawns
// the gateway child, tails its output for crash signatures, restarts
// it with back-off within a bounded window, and replays journaled
// requests once the child is healthy again.
package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ServiceConfig describes one child process to supervise.
type ServiceConfig struct {
	Name      string            `json:"name"`
	Command   []string          `json:"command"`
	Env       map[string]string `json:"env,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	HealthURL string            `json:"health_url"`
	ReplayURL string            `json:"replay_url"`
	// StartupDelay is how long a freshly spawned process is given
	// before an exit counts as a normal crash rather than a
	// startup failure. The gateway service needs a long window here
	// to cover model load time, not just process init.
	StartupDelay time.Duration `json:"-"`
}

// DefaultStartupDelay applies to any service whose config omits
// startup_delay_seconds.
const DefaultStartupDelay = 10 * time.Second

// serviceConfigJSON mirrors ServiceConfig with StartupDelay expressed
// in whole seconds, matching the _seconds suffix the rest of this
// config file uses.
type serviceConfigJSON struct {
	Name             string            `json:"name"`
	Command          []string          `json:"command"`
	Env              map[string]string `json:"env,omitempty"`
	Cwd              string            `json:"cwd,omitempty"`
	HealthURL        string            `json:"health_url"`
	ReplayURL        string            `json:"replay_url"`
	StartupDelaySecs *int              `json:"startup_delay_seconds"`
}

// UnmarshalJSON converts startup_delay_seconds from whole seconds,
// defaulting to DefaultStartupDelay when the field is absent.
func (s *ServiceConfig) UnmarshalJSON(data []byte) error {
	var j serviceConfigJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*s = ServiceConfig{
		Name:         j.Name,
		Command:      j.Command,
		Env:          j.Env,
		Cwd:          j.Cwd,
		HealthURL:    j.HealthURL,
		ReplayURL:    j.ReplayURL,
		StartupDelay: DefaultStartupDelay,
	}
	if j.StartupDelaySecs != nil {
		s.StartupDelay = time.Duration(*j.StartupDelaySecs) * time.Second
	}
	return nil
}

// MarshalJSON mirrors UnmarshalJSON's seconds encoding.
func (s ServiceConfig) MarshalJSON() ([]byte, error) {
	secs := int(s.StartupDelay / time.Second)
	return json.Marshal(serviceConfigJSON{
		Name:             s.Name,
		Command:          s.Command,
		Env:              s.Env,
		Cwd:              s.Cwd,
		HealthURL:        s.HealthURL,
		ReplayURL:        s.ReplayURL,
		StartupDelaySecs: &secs,
	})
}

// Config is the supervisor's own settings file, loaded with
// encoding/json from the path given to --config.
type Config struct {
	Services             map[string]ServiceConfig `json:"services"`
	QueueDir             string                   `json:"queue_dir"`
	HealthCheckInterval  time.Duration            `json:"health_check_interval_seconds"`
	RestartDelay         time.Duration            `json:"restart_delay_seconds"`
	MaxRestartAttempts   int                      `json:"max_restart_attempts"`
	RestartWindowMinutes int                      `json:"restart_window_minutes"`
	LogDir               string                   `json:"log_dir"`
	// CrashSignatures are stderr substrings that count as a crash even
	// when the process hasn't exited yet. Promoted to configuration
	// per the "heuristic list causes false positives" open question —
	// defaults match the original's indicator list.
	CrashSignatures []string `json:"crash_signatures"`
	// MemorySoftLimitGB triggers a logged warning, never a kill.
	MemorySoftLimitGB float64 `json:"memory_soft_limit_gb"`
}

// DefaultCrashSignatures is the stderr substring list that counts as a
// crash signal independent of process exit.
var DefaultCrashSignatures = []string{
	"failed assertion",
	"Segmentation fault",
	"Killed",
	"out of memory",
	"SIGKILL",
	"SIGTERM",
	"addCompletedHandler",
}

// DefaultConfig returns the settings used when no --config file is
// given: a single "gateway" service, matching LLMSupervisor's
// default_config shape.
func DefaultConfig() *Config {
	return &Config{
		Services: map[string]ServiceConfig{
			"gateway": {
				Name:      "gateway",
				Command:   []string{"./gateway"},
				HealthURL: "http://127.0.0.1:8555/api/v1/health",
				ReplayURL: "http://127.0.0.1:8555",
				// Model loads can run well past a generic startup
				// window; give it a full minute before an early exit
				// counts as a startup crash.
				StartupDelay: 60 * time.Second,
			},
		},
		QueueDir:             "./queue",
		HealthCheckInterval:  10 * time.Second,
		RestartDelay:         5 * time.Second,
		MaxRestartAttempts:   5,
		RestartWindowMinutes: 10,
		LogDir:               "./logs",
		CrashSignatures:      DefaultCrashSignatures,
		MemorySoftLimitGB:    20,
	}
}

// LoadConfig reads a supervisor config file, falling back to
// DefaultConfig's field values for anything left unset.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("supervisor: read config %s: %w", path, err)
	}
	var fileCfg struct {
		Services             map[string]ServiceConfig `json:"services"`
		QueueDir             string                   `json:"queue_dir"`
		HealthCheckInterval  *int                     `json:"health_check_interval_seconds"`
		RestartDelay         *int                     `json:"restart_delay_seconds"`
		MaxRestartAttempts   *int                     `json:"max_restart_attempts"`
		RestartWindowMinutes *int                     `json:"restart_window_minutes"`
		LogDir               string                   `json:"log_dir"`
		CrashSignatures      []string                 `json:"crash_signatures"`
		MemorySoftLimitGB    *float64                 `json:"memory_soft_limit_gb"`
	}
	if err := json.Unmarshal(raw, &fileCfg); err != nil {
		return nil, fmt.Errorf("supervisor: parse config %s: %w", path, err)
	}
	if len(fileCfg.Services) > 0 {
		cfg.Services = fileCfg.Services
	}
	if fileCfg.QueueDir != "" {
		cfg.QueueDir = fileCfg.QueueDir
	}
	if fileCfg.HealthCheckInterval != nil {
		cfg.HealthCheckInterval = time.Duration(*fileCfg.HealthCheckInterval) * time.Second
	}
	if fileCfg.RestartDelay != nil {
		cfg.RestartDelay = time.Duration(*fileCfg.RestartDelay) * time.Second
	}
	if fileCfg.MaxRestartAttempts != nil {
		cfg.MaxRestartAttempts = *fileCfg.MaxRestartAttempts
	}
	if fileCfg.RestartWindowMinutes != nil {
		cfg.RestartWindowMinutes = *fileCfg.RestartWindowMinutes
	}
	if fileCfg.LogDir != "" {
		cfg.LogDir = fileCfg.LogDir
	}
	if len(fileCfg.CrashSignatures) > 0 {
		cfg.CrashSignatures = fileCfg.CrashSignatures
	}
	if fileCfg.MemorySoftLimitGB != nil {
		cfg.MemorySoftLimitGB = *fileCfg.MemorySoftLimitGB
	}
	return cfg, nil
}
