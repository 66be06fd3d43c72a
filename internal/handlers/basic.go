// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"runtime"
	"time"
)

// Ping trivially succeeds.
func Ping(_ context.Context, _ *Deps, _ map[string]any, _ map[string]any) (map[string]any, error) {
	return map[string]any{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)}, nil
}

// Info is read-only: runtime description, uptime, and a memory hint.
func Info(_ context.Context, deps *Deps, _ map[string]any, _ map[string]any) (map[string]any, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Duration(0)
	if !deps.BootTime.IsZero() {
		uptime = time.Since(deps.BootTime)
	}

	return map[string]any{
		"runtime":       "ghostd",
		"go_version":    runtime.Version(),
		"goroutines":    runtime.NumGoroutine(),
		"uptime_ms":     uptime.Milliseconds(),
		"memory_hint_kb": mem.Alloc / 1024,
	}, nil
}

// Echo returns its input payload unchanged — useful for debugging and
// tests.
func Echo(_ context.Context, _ *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	return map[string]any{"echo": input}, nil
}
