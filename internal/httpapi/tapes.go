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

	"github.com/ghostrun/ghostd/internal/handlers"
)

func (s *Server) handleListTapes(c *gin.Context) {
	result, err := handlers.GhostList(c.Request.Context(), s.deps, nil, nil)
	writeResult(c, result, "local", 0, err)
}

func (s *Server) handleGetTape(c *gin.Context) {
	result, err := handlers.GhostGet(c.Request.Context(), s.deps, map[string]any{"id": c.Param("id")}, nil)
	writeResult(c, result, "local", 0, err)
}

func (s *Server) handleMount(c *gin.Context) {
	result, err := handlers.GhostLaunch(c.Request.Context(), s.deps, map[string]any{"id": c.Param("id")}, nil)
	writeResult(c, result, "local", 0, err)
}

func (s *Server) handleUnmount(c *gin.Context) {
	id := c.Param("id")
	err := s.registry.Unmount(c.Request.Context(), id)
	writeResult(c, map[string]any{"id": id}, "local", 0, err)
}

func (s *Server) handleReload(c *gin.Context) {
	id := c.Param("id")
	err := s.registry.Reload(c.Request.Context(), id)
	writeResult(c, map[string]any{"id": id}, "local", 0, err)
}
