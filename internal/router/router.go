// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router is a pure mapping from caller identity and a
// requested model to a concrete admissible model id. It never touches
// the kernel or the network.
package router

import (
	"strings"

	"github.com/libraxisai/lbrx-gateway/internal/registry"
)

// DefaultSentinel is the literal callers pass to ask for "whatever the
// routing rules pick".
const DefaultSentinel = "default"

// Router holds the service/user override tables and the prefix-to-
// service map used to extract a caller's service from its API key.
//
// Thread Safety: Router is immutable after construction and safe for
// concurrent use.
type Router struct {
	reg *registry.Registry

	// serviceModels maps a caller-service name to its default model.
	serviceModels map[string]string
	// userOverrides maps "service" or "service:userID" to a model,
	// the wildcard form being just the service name.
	userOverrides map[string]string
	// prefixToService maps an API-key prefix to a caller-service name.
	prefixToService map[string]string
	defaultModel    string
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithUserOverride registers an override keyed by "service" (wildcard)
// or "service:userID" (specific caller).
func WithUserOverride(key, model string) Option {
	return func(r *Router) { r.userOverrides[key] = model }
}

// New builds a Router from the canonical service mapping: the one with
// the broader whitelist and the medical-model mapping for vista.
func New(reg *registry.Registry, defaultModel string, opts ...Option) *Router {
	r := &Router{
		reg:          reg,
		defaultModel: defaultModel,
		serviceModels: map[string]string{
			"vista":       "c4ai-03-2025",
			"forkmeASAPp": "deepseek-coder-v2",
			"anydatanext": "qwen3-14b",
			"lbrxvoice":   "qwen3-14b",
			"whisplbrx":   "whisper-large-v3",
		},
		userOverrides: make(map[string]string),
		prefixToService: map[string]string{
			"vista": "vista",
			"whisp": "whisplbrx",
			"fork":  "forkmeASAPp",
			"data":  "anydatanext",
			"voice": "lbrxvoice",
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request bundles the router's inputs.
type Request struct {
	CallerService  string
	CallerID       string
	RequestedModel string
}

// Route picks a concrete model id, applying the priority rule set:
//  1. explicit requested model, if whitelisted
//  2. caller-id override (service-specific, else wildcard)
//  3. caller-service default
//  4. global default
func (r *Router) Route(req Request) string {
	if req.RequestedModel != "" && req.RequestedModel != DefaultSentinel {
		if r.reg.IsWhitelisted(req.RequestedModel) {
			return req.RequestedModel
		}
		// Falls through to the remaining priority tiers.
	}

	if req.CallerID != "" {
		if m, ok := r.userOverrides[req.CallerService+":"+req.CallerID]; ok {
			return m
		}
	}
	if m, ok := r.userOverrides[req.CallerService]; ok {
		return m
	}

	if m, ok := r.serviceModels[req.CallerService]; ok {
		return m
	}

	return r.defaultModel
}

// Fallback returns the next model to try after id fails to load or
// generate, or "" if id has no declared successor.
func (r *Router) Fallback(id string) string {
	d, err := r.reg.Resolve(id)
	if err != nil {
		return ""
	}
	return d.Successor
}

// ExtractService derives a caller-service name from a bearer
// credential shaped "<prefix>_<random>". The "Bearer " framing, if
// present, is stripped first.
func (r *Router) ExtractService(credential string) string {
	credential = strings.TrimPrefix(credential, "Bearer ")
	credential = strings.TrimSpace(credential)
	prefix, _, ok := strings.Cut(credential, "_")
	if !ok {
		return ""
	}
	return r.prefixToService[prefix]
}
