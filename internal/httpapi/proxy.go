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
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ghostrun/ghostd/internal/envelope"
	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
)

type proxyRequestBody struct {
	Path    string         `json:"path"`
	Method  string         `json:"method"`
	Payload map[string]any `json:"payload"`
}

// handleProxy serves POST /proxy/{id}: the inter-tape proxy (C8) entry
// point for calling a mounted tape's declared API endpoint.
func (s *Server) handleProxy(c *gin.Context) {
	if s.deps.ProxyCall == nil {
		c.JSON(http.StatusOK, envelope.Fail(string(ghosterr.Internal), "proxy is not wired", ""))
		return
	}
	var body proxyRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusOK, envelope.Fail(string(ghosterr.BadRequest), err.Error(), ""))
		return
	}
	if body.Method == "" {
		body.Method = http.MethodPost
	}

	result, err := s.deps.ProxyCall(c.Request.Context(), c.Param("id"), handlers.ProxyRequest{
		Path: body.Path, Method: body.Method, Payload: body.Payload,
	})
	if err != nil {
		c.JSON(http.StatusOK, envelope.Fail(string(ghosterr.KindOf(err)), err.Error(), "proxy"))
		return
	}
	if !result.OK {
		c.JSON(http.StatusOK, envelope.Fail(result.Error, result.Message, "proxy"))
		return
	}
	c.JSON(http.StatusOK, envelope.Ok(result.Result, "proxy", 0))
}

// handleProxyExternal serves POST /proxy-external/{service}: forwards a
// payload directly to a named external service URL from the host
// config — these targets sit outside the tape population entirely, so
// this bypasses the tape registry and the hop/permission machinery C8
// applies to inter-tape calls.
func (s *Server) handleProxyExternal(c *gin.Context) {
	service := c.Param("service")
	url, ok := s.deps.ExternalServices[service]
	if !ok {
		c.JSON(http.StatusOK, envelope.Fail(string(ghosterr.BadRequest), "unknown external service: "+service, ""))
		return
	}

	var payload map[string]any
	_ = c.ShouldBindJSON(&payload)

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusOK, envelope.Fail(string(ghosterr.Internal), err.Error(), "proxy-external"))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.JSON(http.StatusOK, envelope.Fail(string(ghosterr.BackendError), err.Error(), "proxy-external"))
		return
	}
	defer resp.Body.Close()

	var result map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&result)
	c.JSON(http.StatusOK, envelope.Ok(result, "proxy-external", 0))
}
