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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ghostrun/ghostd/internal/envelope"
	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
)

// handleRun serves POST /run: the single envelope-based entrypoint that
// every named handler is reachable through. When deps.RouterCall is
// wired (the production composition), dispatch goes through the backend
// router (C5); otherwise it falls back to direct dispatch against
// handlerRegistry, which is how tests commonly exercise this endpoint
// without standing up a full router.
func (s *Server) handleRun(handlerRegistry *handlers.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req envelope.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, envelope.Fail(string(ghosterr.BadRequest), err.Error(), ""))
			return
		}
		if req.Program.Type == "" {
			c.JSON(http.StatusOK, envelope.Fail(string(ghosterr.BadRequest), "program.type is required", ""))
			return
		}

		callCtx := req.Context
		if callCtx == nil {
			callCtx = make(map[string]any)
		}
		callCtx["request_id"] = uuid.NewString()

		start := time.Now()
		var (
			result  map[string]any
			backend string
			err     error
		)
		if s.deps.RouterCall != nil {
			result, backend, err = s.deps.RouterCall(c.Request.Context(), req.Program.Type, req.Program.Input, callCtx)
		} else {
			h, ok := handlerRegistry.Get(req.Program.Type)
			if !ok {
				err = ghosterr.Newf(ghosterr.HandlerUnknown, "handler %q is not registered", req.Program.Type)
			} else {
				result, err = h(c.Request.Context(), s.deps, req.Program.Input, callCtx)
				backend = "local"
			}
		}

		elapsed := time.Since(start)
		errKind := ""
		if err != nil {
			errKind = string(ghosterr.KindOf(err))
		}
		s.logger.Info("request", "request_id", callCtx["request_id"], "handler", req.Program.Type,
			"backend", backend, "elapsed_ms", elapsed.Milliseconds(), "error_kind", errKind)

		writeResult(c, result, backend, elapsed, err)
	}
}
