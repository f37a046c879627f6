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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers every gateway endpoint under rg. The router
// group should already have the middleware chain applied.
//
// Endpoints:
//
//	GET  /health                    - liveness + memory snapshot
//	GET  /models                    - list admissible models
//	GET  /models/:id                - descriptor + loaded state
//	POST /models/:id/load           - delegate to lifecycle manager
//	POST /models/:id/unload         - delegate to lifecycle manager
//	GET  /models/memory/usage       - memory gauge snapshot
//	POST /chat/completions          - chat, streaming or not
//	POST /completions               - legacy text-prompt wrapper
//	POST /sessions                  - create
//	GET  /sessions/:id              - fetch
//	DELETE /sessions/:id            - delete
//	GET  /sessions/:id/messages     - read ordered log
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.GET("/health", h.HandleHealth)

	rg.GET("/models", h.HandleListModels)
	rg.GET("/models/:id", h.HandleGetModel)
	rg.POST("/models/:id/load", h.HandleLoadModel)
	rg.POST("/models/:id/unload", h.HandleUnloadModel)
	rg.GET("/models/memory/usage", h.HandleMemoryUsage)

	rg.POST("/chat/completions", h.HandleChatCompletions)
	rg.POST("/completions", h.HandleCompletions)

	rg.POST("/sessions", h.HandleCreateSession)
	rg.GET("/sessions/:id", h.HandleGetSession)
	rg.DELETE("/sessions/:id", h.HandleDeleteSession)
	rg.GET("/sessions/:id/messages", h.HandleSessionMessages)
}
