// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package host is the composition root: it boots every subsystem
// (config, telemetry, sandbox, store, tape registry, handler set,
// device scheduler, tribunal, backend router, inter-tape proxy, HTTP
// surface) and wires them into one shared handlers.Deps value — the
// "Host" design note's replacement for module-level singletons.
package host

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ghostrun/ghostd/internal/config"
	"github.com/ghostrun/ghostd/internal/handlers"
	"github.com/ghostrun/ghostd/internal/httpapi"
	"github.com/ghostrun/ghostd/internal/manifest"
	"github.com/ghostrun/ghostd/internal/proxy"
	"github.com/ghostrun/ghostd/internal/registry"
	"github.com/ghostrun/ghostd/internal/router"
	"github.com/ghostrun/ghostd/internal/sandbox"
	"github.com/ghostrun/ghostd/internal/scheduler"
	"github.com/ghostrun/ghostd/internal/store"
	"github.com/ghostrun/ghostd/internal/telemetry"
	"github.com/ghostrun/ghostd/internal/tribunal"
)

// Host owns the wired subsystems and the HTTP server's lifecycle.
type Host struct {
	cfg     config.Server
	logger  *telemetry.Logger
	store   handlers.KVStore
	guard   *sandbox.Guard
	reg     *registry.Registry
	watcher *registry.Watcher
	sched   *scheduler.Scheduler
	trib    *tribunal.Tribunal
	prox    *proxy.Proxy
	rtr     *router.Router
	deps    *handlers.Deps
	handlerRegistry *handlers.Registry
	server  *httpapi.Server
	closers []func() error
	tracerCleanup func(context.Context)
}

// New boots every subsystem from cfg and returns a ready-to-run Host.
// Boot failures are fatal per the external interfaces contract's exit
// code policy — the caller (cmd/ghostd) maps a non-nil error to exit 1.
func New(cfg config.Server, logger *telemetry.Logger) (*Host, error) {
	if logger == nil {
		logger = telemetry.Default()
	}
	h := &Host{cfg: cfg, logger: logger}

	tracerCleanup, err := initTracer(otelEndpointFromEnv())
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		h.tracerCleanup = tracerCleanup
	}

	if err := os.MkdirAll(cfg.TapeRoot, 0o755); err != nil {
		return nil, fmt.Errorf("preparing tape root: %w", err)
	}

	guard, err := sandbox.NewGuard(cfg.TapeRoot)
	if err != nil {
		return nil, fmt.Errorf("building sandbox guard: %w", err)
	}
	h.guard = guard

	if dir := os.Getenv("GHOST_STORE_SNAPSHOT_DIR"); dir != "" {
		snap, err := store.OpenSnapshotStore(dir)
		if err != nil {
			return nil, fmt.Errorf("opening store snapshot: %w", err)
		}
		h.store = snap
		h.closers = append(h.closers, snap.Close)
	} else {
		h.store = store.New()
	}

	h.handlerRegistry = handlers.NewRegistry()
	handlers.RegisterAll(h.handlerRegistry)

	h.reg = registry.New(cfg.TapeRoot, manifest.HandlerLookup(h.handlerRegistry.Contains), nil)
	if _, err := h.reg.Scan(context.Background()); err != nil {
		return nil, fmt.Errorf("initial tape scan: %w", err)
	}
	h.watcher = registry.NewWatcher(h.reg, 60*time.Second, logger)

	swarmCfg, err := config.LoadSwarmConfig(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading swarm config: %w", err)
	}
	hostCfg, err := config.LoadHostConfig(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading host config: %w", err)
	}
	schedCfg, err := config.LoadSchedulerConfig(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading scheduler config: %w", err)
	}

	h.sched = scheduler.New(schedCfg, logger)

	judges := make([]tribunal.Judge, 0, len(swarmCfg.Agents))
	for id, agent := range swarmCfg.Agents {
		judges = append(judges, tribunal.NewHTTPJudge(id, agent.URL, &http.Client{Timeout: 10 * time.Second}))
	}
	h.trib = tribunal.New(judges, logger)

	swarmAgents := make(map[string]handlers.SwarmAgentRef, len(swarmCfg.Agents))
	for id, agent := range swarmCfg.Agents {
		swarmAgents[id] = handlers.SwarmAgentRef{URL: agent.URL, Skills: agent.Skills, Priority: agent.Priority, Status: agent.Status}
	}

	h.deps = &handlers.Deps{
		Registry:         h.reg,
		Store:            h.store,
		Sandbox:          h.guard,
		Scheduler:        h.sched,
		Tribunal:         h.trib,
		Logger:           logger,
		BootTime:         time.Now(),
		ExternalServices: hostCfg.Services,
		SwarmAgents:      swarmAgents,
		SwarmFallback:    swarmCfg.Router.Fallback,
	}

	h.prox = proxy.New(h.reg, h.handlerRegistry, h.deps)
	h.deps.ProxyCall = h.prox.Call

	h.rtr = router.New(nil, router.NewLocalBackend(h.handlerRegistry, h.deps))
	h.deps.RouterCall = h.rtr.Dispatch

	h.server = httpapi.New(h.deps, h.reg, h.handlerRegistry, logger)
	return h, nil
}

// Run starts the tape-root watcher and serves HTTP until ctx is
// cancelled, then drains: new /run calls are rejected while in-flight
// ones are given up to cfg.DrainTimeout seconds to complete.
func (h *Host) Run(ctx context.Context) error {
	if err := h.watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting tape watcher: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", h.cfg.Host, h.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: h.server.Engine()}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("ghostd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	h.logger.Info("draining")
	h.server.Drain()
	h.waitForDrain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.drainTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		h.logger.Warn("forced shutdown", "error", err)
	}

	h.watcher.Stop()
	for _, closer := range h.closers {
		if err := closer(); err != nil {
			h.logger.Warn("close error during shutdown", "error", err)
		}
	}
	if h.tracerCleanup != nil {
		h.tracerCleanup(context.Background())
	}
	return nil
}

func (h *Host) drainTimeout() time.Duration {
	if h.cfg.DrainTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(h.cfg.DrainTimeout) * time.Second
}

func (h *Host) waitForDrain() {
	deadline := time.Now().Add(h.drainTimeout())
	for time.Now().Before(deadline) {
		inflight := int64(0)
		for _, e := range h.reg.List() {
			inflight += e.Inflight()
		}
		if inflight == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
