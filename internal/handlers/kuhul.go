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

	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/glyph"
)

func jobFromInput(input map[string]any) SchedulerJob {
	fingerprint, _ := input["fingerprint"].(string)
	shardID, _ := input["shard"].(string)
	hints, _ := input["hints"].(map[string]any)
	return SchedulerJob{Fingerprint: fingerprint, ShardID: shardID, Hints: hints}
}

func priorityFromInput(input map[string]any) float64 {
	if p, ok := input["priority"].(float64); ok {
		if p < 0 {
			return 0
		}
		if p > 1 {
			return 1
		}
		return p
	}
	return 0.5
}

// KuhulProfile reports the scheduler's current metrics as a stand-in for
// the configured device profile — a read-only probe, no job dispatch.
func KuhulProfile(_ context.Context, deps *Deps, _ map[string]any, _ map[string]any) (map[string]any, error) {
	if deps.Scheduler == nil {
		return nil, ghosterr.New(ghosterr.Internal, "scheduler is not wired")
	}
	m := deps.Scheduler.Metrics()
	return map[string]any{
		"total":          m.Total,
		"successful":     m.Successful,
		"failed":         m.Failed,
		"avg_latency_ms": m.AvgLatencyMs,
	}, nil
}

// KuhulRoute dispatches a job through C6 exactly as KuhulSchedule does
// (the engine runs and scheduler metrics are updated) and reports only
// the routing fields: device, engine, and endpoint.
func KuhulRoute(ctx context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	if deps.Scheduler == nil {
		return nil, ghosterr.New(ghosterr.Internal, "scheduler is not wired")
	}
	decision, err := deps.Scheduler.Schedule(ctx, jobFromInput(input), priorityFromInput(input))
	if err != nil {
		return nil, err
	}
	return map[string]any{"device": decision.Device, "engine": decision.Engine, "endpoint": decision.Endpoint}, nil
}

// KuhulSchedule dispatches a job through C6 and returns the full
// decision including args and observed latency.
func KuhulSchedule(ctx context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	if deps.Scheduler == nil {
		return nil, ghosterr.New(ghosterr.Internal, "scheduler is not wired")
	}
	decision, err := deps.Scheduler.Schedule(ctx, jobFromInput(input), priorityFromInput(input))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"device":     decision.Device,
		"engine":     decision.Engine,
		"endpoint":   decision.Endpoint,
		"args":       decision.Args,
		"latency_ms": decision.LatencyMs,
	}, nil
}

// KuhulStatus reports scheduler metrics — total/successful/failed jobs
// and the online-mean average latency.
func KuhulStatus(_ context.Context, deps *Deps, _ map[string]any, _ map[string]any) (map[string]any, error) {
	if deps.Scheduler == nil {
		return nil, ghosterr.New(ghosterr.Internal, "scheduler is not wired")
	}
	m := deps.Scheduler.Metrics()
	return map[string]any{
		"total":          m.Total,
		"successful":     m.Successful,
		"failed":         m.Failed,
		"avg_latency_ms": m.AvgLatencyMs,
	}, nil
}

// KuhulGlyph executes a bracketed-token "program" string, delegating to
// C3. The VM is constructed fresh per call, so function bodies recorded by
// one call are not available to the next; there is no input for calling
// a recorded function by name.
func KuhulGlyph(_ context.Context, _ *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	source, _ := input["program"].(string)
	if source == "" {
		return nil, ghosterr.New(ghosterr.BadRequest, "program is required")
	}
	tokens, err := glyph.ParseTokens(source)
	if err != nil {
		return nil, err
	}

	vm := glyph.New()
	top, err := vm.Execute(tokens)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]any, len(vm.Variables()))
	for k, v := range vm.Variables() {
		vars[k] = v.Interface()
	}

	return map[string]any{"top": top.Interface(), "variables": vars}, nil
}
