// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// skipPaths are exempt from journaling — health and metrics probes
// would otherwise flood the queue directory.
var skipPaths = map[string]bool{
	"/health":          true,
	"/api/v1/health":   true,
	"/metrics":         true,
}

// Middleware returns a gin.HandlerFunc that journals every mutating
// request (POST/PUT/PATCH) before dispatch and marks its terminal
// state after the handler returns.
func Middleware(j *Journal) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"message": "failed to read request body", "type": "internal"},
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		headers := make(map[string]string, len(c.Request.Header))
		for k := range c.Request.Header {
			headers[k] = c.Request.Header.Get(k)
		}

		entry := Entry{
			ID:        id,
			Path:      c.Request.URL.Path,
			Method:    c.Request.Method,
			Headers:   headers,
			Body:      body,
			Model:     extractModel(body),
			Timestamp: time.Now(),
		}
		if err := j.Write(entry); err != nil {
			slog.Error("journal: write failed", slog.String("request_id", id), slog.Any("error", err))
		}
		if err := j.MarkProcessing(id); err != nil {
			slog.Error("journal: mark processing failed", slog.String("request_id", id), slog.Any("error", err))
		}

		defer func() {
			if r := recover(); r != nil {
				_ = j.MarkFailed(id, fmt.Sprintf("panic: %v", r))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      gin.H{"message": "internal server error", "type": "internal"},
					"request_id": id,
				})
				return
			}
			status := c.Writer.Status()
			if status < http.StatusBadRequest {
				_ = j.MarkCompleted(id)
			} else {
				_ = j.MarkFailed(id, fmt.Sprintf("HTTP %d", status))
			}
		}()

		c.Next()
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func extractModel(body []byte) string {
	var payload struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Model
}
