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
	"strings"

	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/registry"
)

func describeEntry(e *registry.Entry) map[string]any {
	d := e.Descriptor
	return map[string]any{
		"id":          d.Identifier,
		"name":        d.DisplayName,
		"version":     d.Version.String(),
		"state":       string(e.State),
		"generation":  e.Generation,
		"inflight":    e.Inflight(),
		"capabilities": d.Capabilities,
	}
}

// GhostList delegates to C2; registry queries.
func GhostList(_ context.Context, deps *Deps, _ map[string]any, _ map[string]any) (map[string]any, error) {
	entries := deps.Registry.List()
	tapes := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		tapes = append(tapes, describeEntry(e))
	}
	return map[string]any{"total": len(tapes), "tapes": tapes}, nil
}

// GhostGet delegates to C2; one registry entry.
func GhostGet(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	id, _ := input["id"].(string)
	if id == "" {
		return nil, ghosterr.New(ghosterr.BadRequest, "id is required")
	}
	e, err := deps.Registry.Get(id)
	if err != nil {
		return nil, err
	}
	return describeEntry(e), nil
}

// GhostLaunch mounts a tape, delegating to C2's mount lifecycle.
func GhostLaunch(ctx context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	id, _ := input["id"].(string)
	if id == "" {
		return nil, ghosterr.New(ghosterr.BadRequest, "id is required")
	}
	if err := deps.Registry.Mount(ctx, id); err != nil {
		return nil, err
	}
	e, err := deps.Registry.Get(id)
	if err != nil {
		return nil, err
	}
	return describeEntry(e), nil
}

// GhostRoute delegates to C8: forward a request to a tape's declared API
// endpoint. When the call itself arrived through the proxy, the
// hops_remaining it carries becomes the forwarded budget, and a spent
// budget is refused with hop-limit-exceeded.
func GhostRoute(ctx context.Context, deps *Deps, input map[string]any, callCtx map[string]any) (map[string]any, error) {
	id, _ := input["id"].(string)
	if id == "" {
		return nil, ghosterr.New(ghosterr.BadRequest, "id is required")
	}
	if deps.ProxyCall == nil {
		return nil, ghosterr.New(ghosterr.Internal, "proxy is not wired")
	}
	payload, _ := input["payload"].(map[string]any)
	method, _ := input["method"].(string)
	if method == "" {
		method = "POST"
	}
	path, _ := input["path"].(string)

	hops := 8
	if remaining, ok := callCtx["hops_remaining"].(int); ok {
		if remaining <= 0 {
			return nil, ghosterr.New(ghosterr.HopLimitExceeded, "hop budget exhausted")
		}
		hops = remaining
	}

	result, err := deps.ProxyCall(ctx, id, ProxyRequest{Path: path, Method: method, Payload: payload, Hops: hops})
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, ghosterr.New(ghosterr.Kind(result.Error), result.Message)
	}
	return result.Result, nil
}

// GhostDiscover re-scans the tape root, delegating to C2's scan.
func GhostDiscover(ctx context.Context, deps *Deps, _ map[string]any, _ map[string]any) (map[string]any, error) {
	failures, err := deps.Registry.Scan(ctx)
	if err != nil {
		return nil, err
	}
	failureOut := make(map[string]string, len(failures))
	for tape, ferr := range failures {
		failureOut[tape] = ferr.Error()
	}
	return map[string]any{
		"total":    len(deps.Registry.List()),
		"failures": failureOut,
	}, nil
}

// GhostSwarm classifies a task description into a swarm agent key,
// using the keyword routing policy from §4.9: build|deploy|git →
// agent:a; eval|judge|code → agent:b; reason|analyze|longform → agent:c;
// otherwise the configured fallback.
func GhostSwarm(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	task, _ := input["task"].(string)
	agent := ClassifySwarmTask(task, deps.SwarmFallback)
	ref, known := deps.SwarmAgents[agent]
	out := map[string]any{"task": task, "agent": agent}
	if known {
		out["url"] = ref.URL
		out["skills"] = ref.Skills
	}
	return out, nil
}

// ClassifySwarmTask implements the fixed keyword routing table shared by
// the ghost_swarm handler and POST /swarm/route.
func ClassifySwarmTask(task, fallback string) string {
	lower := strings.ToLower(task)
	switch {
	case containsAny(lower, "build", "deploy", "git"):
		return "agent:a"
	case containsAny(lower, "eval", "judge", "code"):
		return "agent:b"
	case containsAny(lower, "reason", "analyze", "longform"):
		return "agent:c"
	default:
		if fallback != "" {
			return fallback
		}
		return "agent:a"
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// GhostStatus reports a summary view of the registry and handler set.
func GhostStatus(_ context.Context, deps *Deps, _ map[string]any, _ map[string]any) (map[string]any, error) {
	entries := deps.Registry.List()
	mounted := 0
	for _, e := range entries {
		if e.State == registry.Mounted {
			mounted++
		}
	}
	return map[string]any{
		"total_tapes":   len(entries),
		"mounted_tapes": mounted,
	}, nil
}
