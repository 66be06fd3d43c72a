// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
)

type fakeTribunal struct {
	session handlers.TribunalSession
	err     error
	names   []string
}

func (f *fakeTribunal) Evaluate(_ context.Context, _ handlers.TribunalTask, judgeNames []string, _ time.Duration) (handlers.TribunalSession, error) {
	f.names = judgeNames
	return f.session, f.err
}

func TestAgentsListReportsConfiguredAgents(t *testing.T) {
	deps := &handlers.Deps{SwarmAgents: map[string]handlers.SwarmAgentRef{
		"judge-a": {URL: "http://localhost:9001", Skills: []string{"safety"}, Priority: 1, Status: "online"},
	}}
	result, err := handlers.AgentsList(context.Background(), deps, nil, nil)
	require.NoError(t, err)
	agents, ok := result["agents"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, agents, 1)
}

func TestAgentsCallWithoutTribunalIsInternal(t *testing.T) {
	_, err := handlers.AgentsCall(context.Background(), &handlers.Deps{}, map[string]any{"agent": "judge-a"}, nil)
	require.Error(t, err)
	assert.Equal(t, ghosterr.Internal, ghosterr.KindOf(err))
}

func TestAgentsCallMissingAgentIsBadRequest(t *testing.T) {
	deps := &handlers.Deps{Tribunal: &fakeTribunal{}}
	_, err := handlers.AgentsCall(context.Background(), deps, map[string]any{}, nil)
	require.Error(t, err)
	assert.Equal(t, ghosterr.BadRequest, ghosterr.KindOf(err))
}

func TestAgentsCallSolicitsSingleJudge(t *testing.T) {
	trib := &fakeTribunal{session: handlers.TribunalSession{Verdict: "approve", AgreementRate: 1}}
	deps := &handlers.Deps{Tribunal: trib}
	result, err := handlers.AgentsCall(context.Background(), deps, map[string]any{"agent": "judge-a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "approve", result["verdict"])
	assert.Equal(t, []string{"judge-a"}, trib.names)
}

func TestAgentsTribunalDefaultsToAllSwarmAgentsWhenNoneNamed(t *testing.T) {
	trib := &fakeTribunal{session: handlers.TribunalSession{Verdict: "approve"}}
	deps := &handlers.Deps{
		Tribunal: trib,
		SwarmAgents: map[string]handlers.SwarmAgentRef{
			"judge-a": {}, "judge-b": {},
		},
	}
	_, err := handlers.AgentsTribunal(context.Background(), deps, map[string]any{}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"judge-a", "judge-b"}, trib.names)
}

func TestAgentsTribunalHonoursExplicitJudgeList(t *testing.T) {
	trib := &fakeTribunal{session: handlers.TribunalSession{Verdict: "approve"}}
	deps := &handlers.Deps{Tribunal: trib}
	_, err := handlers.AgentsTribunal(context.Background(), deps, map[string]any{
		"judges": []any{"judge-a", "judge-c"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"judge-a", "judge-c"}, trib.names)
}

func TestAgentsSwarmRoutesAndRunsTribunal(t *testing.T) {
	trib := &fakeTribunal{session: handlers.TribunalSession{Verdict: "approve"}}
	deps := &handlers.Deps{Tribunal: trib, SwarmFallback: "agent:a"}
	result, err := handlers.AgentsSwarm(context.Background(), deps, map[string]any{"task": "deploy the build"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "agent:a", result["routed_to"])
}

func TestAgentsTribunalPropagatesTribunalError(t *testing.T) {
	trib := &fakeTribunal{err: ghosterr.New(ghosterr.NoQuorum, "no quorum")}
	deps := &handlers.Deps{Tribunal: trib}
	_, err := handlers.AgentsTribunal(context.Background(), deps, map[string]any{"judges": []any{"a"}}, nil)
	require.Error(t, err)
	assert.Equal(t, ghosterr.NoQuorum, ghosterr.KindOf(err))
}
