// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/libraxisai/lbrx-gateway/internal/lifecycle"
	"github.com/libraxisai/lbrx-gateway/internal/session"
)

// writeError maps a typed error to the stable error envelope and the
// appropriate status code, logging the full detail server-side while
// keeping the client-facing message generic for kernel failures.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrModelNotFound):
		c.JSON(http.StatusNotFound, ErrorEnvelope{ErrorBody{Message: err.Error(), Type: "model-not-found"}})
	case errors.Is(err, lifecycle.ErrNotAdmissible):
		c.JSON(http.StatusNotFound, ErrorEnvelope{ErrorBody{Message: err.Error(), Type: "model-not-admissible"}})
	case errors.Is(err, lifecycle.ErrLoadFailed):
		slog.Error("model load failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorEnvelope{ErrorBody{Message: "model failed to load", Type: "load-failed"}})
	case errors.Is(err, lifecycle.ErrGenerationFailed):
		slog.Error("generation failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorEnvelope{ErrorBody{Message: "generation failed", Type: "generation-failed"}})
	case errors.Is(err, lifecycle.ErrCancelled):
		c.JSON(http.StatusRequestTimeout, ErrorEnvelope{ErrorBody{Message: "request cancelled", Type: "cancelled"}})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorEnvelope{ErrorBody{Message: "session not found", Type: "session-not-found"}})
	default:
		slog.Error("unhandled internal error", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorEnvelope{ErrorBody{Message: "internal server error", Type: "internal"}})
	}
}

func badRequest(c *gin.Context, message, param string) {
	c.JSON(http.StatusBadRequest, ErrorEnvelope{ErrorBody{Message: message, Type: "bad-request", Param: param}})
}
