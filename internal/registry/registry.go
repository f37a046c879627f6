// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry holds the catalog of models the gateway is
// permitted to load (replaceable at runtime through Reload and Watch),
// and the whitelist query every other
// component consults before letting an identifier reach the kernel.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// KernelKind distinguishes the small number of inference shapes the
// kernel supports. Most catalog entries are Text; a few (OCR-style
// vision models) are Kind Vision.
type KernelKind string

const (
	KindText   KernelKind = "text"
	KindVision KernelKind = "vision"
)

// Descriptor is an immutable catalog entry for one admissible model.
type Descriptor struct {
	ID              string
	Aliases         []string
	MemoryGB        float64
	ContextWindow   int
	AutoLoad        bool
	Priority        int
	KernelKind      KernelKind
	// Successor is the fallback-chain entry to try when this model
	// fails to load or generate. Empty means no fallback.
	Successor string
}

// ErrNotFound is returned by Resolve when neither an id nor alias match.
var ErrNotFound = fmt.Errorf("registry: model not found")

// Registry is the catalog. It is built once at startup, then optionally
// kept current by Reload (see Watch); every method takes the read or
// write lock it needs, so callers never see a half-updated catalog.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor // canonical id -> descriptor
	aliases     map[string]string      // alias -> canonical id
}

// New builds a Registry from a descriptor list. Aliases are indexed
// eagerly; a duplicate id or alias across entries is a configuration
// error the caller should fail fast on.
func New(descriptors []Descriptor) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[string]*Descriptor, len(descriptors)),
		aliases:     make(map[string]string),
	}
	for i := range descriptors {
		d := descriptors[i]
		if _, exists := r.descriptors[d.ID]; exists {
			return nil, fmt.Errorf("registry: duplicate model id %q", d.ID)
		}
		if _, exists := r.aliases[d.ID]; exists {
			return nil, fmt.Errorf("registry: id %q collides with an existing alias", d.ID)
		}
		r.descriptors[d.ID] = &d
		for _, alias := range d.Aliases {
			if alias == d.ID {
				continue
			}
			if existing, exists := r.aliases[alias]; exists && existing != d.ID {
				return nil, fmt.Errorf("registry: alias %q already resolves to %q", alias, existing)
			}
			if _, exists := r.descriptors[alias]; exists {
				return nil, fmt.Errorf("registry: alias %q collides with an existing id", alias)
			}
			r.aliases[alias] = d.ID
		}
	}
	return r, nil
}

// Resolve consults exact id first, then aliases. Resolving an id that is
// already canonical is idempotent: it returns the same descriptor.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.descriptors[name]; ok {
		return d, nil
	}
	if canonical, ok := r.aliases[name]; ok {
		return r.descriptors[canonical], nil
	}
	return nil, ErrNotFound
}

// IsWhitelisted reports whether name resolves to an admissible model.
// Every component that might reach the kernel MUST gate on this first.
func (r *Registry) IsWhitelisted(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// AutoLoadSet returns descriptors flagged for automatic startup load,
// ordered by ascending priority (lower priority value loads earlier).
func (r *Registry) AutoLoadSet() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Descriptor
	for _, d := range r.descriptors {
		if d.AutoLoad {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Estimate sums the declared memory estimate for the given ids after
// alias resolution. Unresolvable ids are skipped — callers are expected
// to have already filtered for admissibility.
func (r *Registry) Estimate(names []string) float64 {
	var total float64
	for _, n := range names {
		if d, err := r.Resolve(n); err == nil {
			total += d.MemoryGB
		}
	}
	return total
}

// Reload atomically replaces the catalog with descriptors, applying the
// same duplicate-id/alias validation as New. On validation failure the
// existing catalog is left untouched and the error is returned — a bad
// on-disk edit never takes an already-running gateway's registry down.
func (r *Registry) Reload(descriptors []Descriptor) error {
	fresh, err := New(descriptors)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = fresh.descriptors
	r.aliases = fresh.aliases
	return nil
}

// All returns every descriptor in the catalog, for listing endpoints.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
