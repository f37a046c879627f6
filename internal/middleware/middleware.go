// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware implements the gateway's fixed chain: CORS,
// trusted-host, security headers, request timing/id, rate limiting,
// and auth. Each constructor returns a gin.HandlerFunc in the style of
// the teacher's WarmupGuardMiddleware — span-aware, slog-logged,
// independently unit-testable.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/libraxisai/lbrx-gateway/internal/auth"
	"github.com/libraxisai/lbrx-gateway/internal/metrics"
	"github.com/libraxisai/lbrx-gateway/internal/ratelimit"
)

var tracer = otel.Tracer("lbrx.gateway.middleware")

// CORS allows the configured origins. In development, "*" is honored;
// elsewhere only exact matches are allowed.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	wildcard := slices.Contains(allowedOrigins, "*")
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if wildcard {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// TrustedHost rejects requests whose Host header doesn't match one of
// the configured hosts. An empty list disables the check.
func TrustedHost(trustedHosts []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(trustedHosts))
	for _, h := range trustedHosts {
		allowed[h] = struct{}{}
	}
	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		if _, ok := allowed[c.Request.Host]; !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"message": "unrecognized host header", "type": "bad-request"},
			})
			return
		}
		c.Next()
	}
}

// SecurityHeaders adds the fixed response header set: nosniff,
// frame-deny, HSTS, and a same-origin CSP.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Next()
	}
}

// RequestID attaches an X-Request-ID (generating one if absent),
// echoes it back, times the handler, and records the duration for the
// caller to feed into metrics.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()
		c.Set("request_duration", time.Since(start))
	}
}

// Metrics records the `llm_requests_total`, `llm_request_duration_seconds`,
// and `llm_active_requests` series. It must sit after RequestID in the
// chain: it reads the "request_duration" value RequestID already
// measured rather than timing the handler a second time.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.ActiveRequests.Inc()
		defer metrics.ActiveRequests.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()

		if raw, ok := c.Get("request_duration"); ok {
			if d, ok := raw.(time.Duration); ok {
				metrics.RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(d.Seconds())
			}
		}
	}
}

// RateLimit enforces per-minute and per-hour ceilings keyed by remote
// address, responding 429 with Retry-After on rejection.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := limiter.Allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", fmt.Sprintf("%.0f", wait.Seconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"message": "rate limit exceeded", "type": "rate-limited"},
			})
			return
		}
		c.Next()
	}
}

// Auth verifies the Authorization header and stores the resolved
// identity on the context for handlers to read, aborting with 401 on
// failure. Opens an otel span so a rejection shows up with a trace id
// the way WarmupGuardMiddleware annotates its own rejections.
func Auth(mgr *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "auth.verify")
		defer span.End()

		identity, err := mgr.Verify(c.GetHeader("Authorization"))
		if err != nil {
			traceID := trace.SpanContextFromContext(ctx).TraceID().String()
			slog.Warn("request rejected: unauthenticated",
				slog.String("path", c.Request.URL.Path),
				slog.String("trace_id", traceID))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "unauthenticated", "type": "unauthenticated"},
			})
			return
		}
		c.Set("identity", identity)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
