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

	"github.com/gin-gonic/gin"

	"github.com/ghostrun/ghostd/internal/envelope"
	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
)

type swarmRouteBody struct {
	Task string `json:"task"`
}

// handleSwarmRoute serves POST /swarm/route: classifies a task
// description against the fixed keyword table and reports the agent it
// would be routed to, without dispatching.
func (s *Server) handleSwarmRoute(c *gin.Context) {
	var body swarmRouteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusOK, envelope.Fail(string(ghosterr.BadRequest), err.Error(), ""))
		return
	}

	result, err := handlers.GhostSwarm(c.Request.Context(), s.deps, map[string]any{"task": body.Task}, nil)
	writeResult(c, result, "local", 0, err)
}
