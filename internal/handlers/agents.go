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
	"time"

	"github.com/ghostrun/ghostd/internal/ghosterr"
)

const defaultTribunalTimeout = 5 * time.Second

func sessionToResult(s TribunalSession) map[string]any {
	votes := make([]map[string]any, 0, len(s.Votes))
	for _, v := range s.Votes {
		votes = append(votes, map[string]any{
			"judge":      v.Judge,
			"verdict":    v.Verdict,
			"confidence": v.Confidence,
			"reasoning":  v.Reasoning,
			"latency_ms": v.LatencyMs,
			"error":      v.Err,
		})
	}
	return map[string]any{
		"id":             s.ID,
		"votes":          votes,
		"verdict":        s.Verdict,
		"confidence":     s.Confidence,
		"agreement_rate": s.AgreementRate,
		"severity":       s.Severity,
		"escalation":     s.Escalation,
	}
}

func taskFromInput(input map[string]any) TribunalTask {
	taskType, _ := input["type"].(string)
	content, _ := input["content"].(string)
	taskCtx, _ := input["context"].(map[string]any)
	return TribunalTask{Type: taskType, Content: content, Context: taskCtx}
}

// AgentsList reports the configured swarm agent slate.
func AgentsList(_ context.Context, deps *Deps, _ map[string]any, _ map[string]any) (map[string]any, error) {
	out := make([]map[string]any, 0, len(deps.SwarmAgents))
	for id, a := range deps.SwarmAgents {
		out = append(out, map[string]any{
			"id": id, "url": a.URL, "skills": a.Skills, "priority": a.Priority, "status": a.Status,
		})
	}
	return map[string]any{"agents": out}, nil
}

// AgentsCall solicits a single judge's vote — a tribunal of one.
func AgentsCall(ctx context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	agent, _ := input["agent"].(string)
	if agent == "" {
		return nil, ghosterr.New(ghosterr.BadRequest, "agent is required")
	}
	if deps.Tribunal == nil {
		return nil, ghosterr.New(ghosterr.Internal, "tribunal is not wired")
	}
	session, err := deps.Tribunal.Evaluate(ctx, taskFromInput(input), []string{agent}, defaultTribunalTimeout)
	if err != nil {
		return nil, err
	}
	return sessionToResult(session), nil
}

// AgentsTribunal delegates to C7 for a full multi-judge consensus.
func AgentsTribunal(ctx context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	if deps.Tribunal == nil {
		return nil, ghosterr.New(ghosterr.Internal, "tribunal is not wired")
	}
	judges, _ := input["judges"].([]any)
	names := make([]string, 0, len(judges))
	for _, j := range judges {
		if s, ok := j.(string); ok {
			names = append(names, s)
		}
	}
	if len(names) == 0 {
		for id := range deps.SwarmAgents {
			names = append(names, id)
		}
	}
	timeout := defaultTribunalTimeout
	if ms, ok := input["timeout_ms"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	session, err := deps.Tribunal.Evaluate(ctx, taskFromInput(input), names, timeout)
	if err != nil {
		return nil, err
	}
	return sessionToResult(session), nil
}

// AgentsSwarm routes a task by keyword and then runs the full swarm
// slate as a tribunal, combining the ghost_swarm keyword routing with C7
// consensus.
func AgentsSwarm(ctx context.Context, deps *Deps, input map[string]any, callCtx map[string]any) (map[string]any, error) {
	task, _ := input["task"].(string)
	route := ClassifySwarmTask(task, deps.SwarmFallback)

	result, err := AgentsTribunal(ctx, deps, input, callCtx)
	if err != nil {
		return nil, err
	}
	result["routed_to"] = route
	return result, nil
}
