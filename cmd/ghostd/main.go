// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ghostd starts the GHOST tape host and orchestration runtime.
//
// Usage:
//
//	go run ./cmd/ghostd
//
// Configuration is read from environment variables (HOST, PORT,
// GHOST_TAPE_ROOT, GHOST_CONFIG_DIR, GHOST_DRAIN_SECONDS) plus the
// host/swarm/scheduler YAML files under GHOST_CONFIG_DIR.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghostrun/ghostd/internal/config"
	"github.com/ghostrun/ghostd/internal/host"
	"github.com/ghostrun/ghostd/internal/telemetry"
)

func main() {
	logger := telemetry.New(telemetry.Config{
		Level:   telemetry.LevelInfo,
		Service: "ghostd",
		LogDir:  os.Getenv("GHOST_LOG_DIR"),
		JSON:    os.Getenv("GHOST_LOG_JSON") == "true",
	})
	defer logger.Close()

	cfg, err := config.LoadServer()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	h, err := host.New(cfg, logger)
	if err != nil {
		logger.Error("boot failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := h.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
