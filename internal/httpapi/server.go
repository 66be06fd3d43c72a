// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package httpapi implements the HTTP surface (C9): the envelope-based
// POST /run endpoint plus a fixed set of protocol routes for tape
// lifecycle, proxying, swarm routing, health, and metrics exposition.
package httpapi

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ghostrun/ghostd/internal/envelope"
	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
	"github.com/ghostrun/ghostd/internal/registry"
	"github.com/ghostrun/ghostd/internal/telemetry"
)

// Server wires the gin engine serving the HTTP surface.
type Server struct {
	engine   *gin.Engine
	deps     *handlers.Deps
	registry *registry.Registry
	logger   *telemetry.Logger
	draining atomic.Bool
	bootTime time.Time
}

// New builds the HTTP surface over deps. handlerRegistry supplies the
// /run endpoint's dispatch target when no router override is wired into
// deps.RouterCall (tests commonly leave RouterCall nil and call handlers
// directly through the registry).
func New(deps *handlers.Deps, reg *registry.Registry, handlerRegistry *handlers.Registry, logger *telemetry.Logger) *Server {
	if logger == nil {
		logger = telemetry.Default()
	}
	s := &Server{deps: deps, registry: reg, logger: logger, bootTime: time.Now()}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("ghostd"))
	engine.Use(s.corsMiddleware())
	engine.Use(s.drainMiddleware())

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.POST("/run", s.handleRun(handlerRegistry))

	engine.GET("/tapes", s.handleListTapes)
	engine.GET("/tapes/:id", s.handleGetTape)
	engine.POST("/tapes/:id/mount", s.handleMount)
	engine.POST("/tapes/:id/unmount", s.handleUnmount)
	engine.POST("/tapes/:id/reload", s.handleReload)

	engine.POST("/proxy/:id", s.handleProxy)
	engine.POST("/proxy-external/:service", s.handleProxyExternal)
	engine.POST("/swarm/route", s.handleSwarmRoute)

	s.engine = engine
	return s
}

// Engine exposes the underlying gin engine, primarily for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Drain flips the server into draining mode: new /run calls are
// rejected with 503 while in-flight ones complete.
func (s *Server) Drain() { s.draining.Store(true) }

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) drainMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.draining.Load() && c.Request.URL.Path == "/run" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, envelope.Fail(string(ghosterr.Internal), "server is draining", ""))
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"uptime_s":  time.Since(s.bootTime).Seconds(),
		"draining":  s.draining.Load(),
	})
}

// writeResult converts a typed error, if any, into the closed error-kind
// JSON shape — the single top-level converter at the HTTP boundary named
// in the error-handling design note.
func writeResult(c *gin.Context, result map[string]any, backend string, elapsed time.Duration, err error) {
	if err != nil {
		c.JSON(http.StatusOK, envelope.Fail(string(ghosterr.KindOf(err)), err.Error(), backend))
		return
	}
	c.JSON(http.StatusOK, envelope.Ok(result, backend, elapsed))
}
