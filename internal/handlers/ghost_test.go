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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
	"github.com/ghostrun/ghostd/internal/registry"
)

func ghostAlwaysRegistered(string) bool { return true }

func writeGhostTape(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hi"), 0o644))
	manifestJSON := `{
		"identifier": "` + id + `",
		"display_name": "` + id + `",
		"version": "1.0.0",
		"ui_entry": "index.html",
		"permissions": {"network": "none"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifestJSON), 0o644))
}

func newGhostRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	root := t.TempDir()
	writeGhostTape(t, root, "demo")
	reg := registry.New(root, ghostAlwaysRegistered, nil)
	_, err := reg.Scan(context.Background())
	require.NoError(t, err)
	return reg
}

func TestGhostListReportsMountedTapes(t *testing.T) {
	deps := &handlers.Deps{Registry: newGhostRegistry(t)}
	result, err := handlers.GhostList(context.Background(), deps, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result["total"])
}

func TestGhostGetMissingIDIsBadRequest(t *testing.T) {
	deps := &handlers.Deps{Registry: newGhostRegistry(t)}
	_, err := handlers.GhostGet(context.Background(), deps, map[string]any{}, nil)
	require.Error(t, err)
	assert.Equal(t, ghosterr.BadRequest, ghosterr.KindOf(err))
}

func TestGhostGetUnknownTapeIsTapeNotFound(t *testing.T) {
	deps := &handlers.Deps{Registry: newGhostRegistry(t)}
	_, err := handlers.GhostGet(context.Background(), deps, map[string]any{"id": "missing"}, nil)
	require.Error(t, err)
	assert.Equal(t, ghosterr.TapeNotFound, ghosterr.KindOf(err))
}

func TestGhostGetReturnsDescriptor(t *testing.T) {
	deps := &handlers.Deps{Registry: newGhostRegistry(t)}
	result, err := handlers.GhostGet(context.Background(), deps, map[string]any{"id": "demo"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "demo", result["id"])
}

func TestGhostLaunchMountsAndReturnsDescriptor(t *testing.T) {
	deps := &handlers.Deps{Registry: newGhostRegistry(t)}
	result, err := handlers.GhostLaunch(context.Background(), deps, map[string]any{"id": "demo"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "demo", result["id"])
}

func TestGhostLaunchMissingIDIsBadRequest(t *testing.T) {
	deps := &handlers.Deps{Registry: newGhostRegistry(t)}
	_, err := handlers.GhostLaunch(context.Background(), deps, map[string]any{}, nil)
	require.Error(t, err)
	assert.Equal(t, ghosterr.BadRequest, ghosterr.KindOf(err))
}

func TestGhostRouteWithoutProxyIsInternal(t *testing.T) {
	deps := &handlers.Deps{Registry: newGhostRegistry(t)}
	_, err := handlers.GhostRoute(context.Background(), deps, map[string]any{"id": "demo"}, nil)
	require.Error(t, err)
	assert.Equal(t, ghosterr.Internal, ghosterr.KindOf(err))
}

func TestGhostRouteMissingIDIsBadRequest(t *testing.T) {
	deps := &handlers.Deps{Registry: newGhostRegistry(t)}
	_, err := handlers.GhostRoute(context.Background(), deps, map[string]any{}, nil)
	require.Error(t, err)
	assert.Equal(t, ghosterr.BadRequest, ghosterr.KindOf(err))
}

func TestGhostRouteDispatchesThroughProxyCall(t *testing.T) {
	var gotTapeID string
	deps := &handlers.Deps{
		Registry: newGhostRegistry(t),
		ProxyCall: func(_ context.Context, tapeID string, req handlers.ProxyRequest) (handlers.ProxyResult, error) {
			gotTapeID = tapeID
			return handlers.ProxyResult{OK: true, Result: map[string]any{"echoed": req.Payload}}, nil
		},
	}
	result, err := handlers.GhostRoute(context.Background(), deps, map[string]any{
		"id":      "demo",
		"payload": map[string]any{"hello": "world"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "demo", gotTapeID)
	assert.NotNil(t, result["echoed"])
}

func TestGhostRouteProxyFailureIsReportedAsTypedError(t *testing.T) {
	deps := &handlers.Deps{
		Registry: newGhostRegistry(t),
		ProxyCall: func(context.Context, string, handlers.ProxyRequest) (handlers.ProxyResult, error) {
			return handlers.ProxyResult{OK: false, Error: string(ghosterr.HandlerUnknown), Message: "nope"}, nil
		},
	}
	_, err := handlers.GhostRoute(context.Background(), deps, map[string]any{"id": "demo"}, nil)
	require.Error(t, err)
	assert.Equal(t, ghosterr.HandlerUnknown, ghosterr.KindOf(err))
}

func TestGhostDiscoverRescansAndReportsFailures(t *testing.T) {
	deps := &handlers.Deps{Registry: newGhostRegistry(t)}
	result, err := handlers.GhostDiscover(context.Background(), deps, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result["total"])
	assert.Empty(t, result["failures"])
}

func TestGhostSwarmClassifiesKnownKeywords(t *testing.T) {
	deps := &handlers.Deps{SwarmAgents: map[string]handlers.SwarmAgentRef{
		"agent:a": {URL: "http://localhost:9001", Skills: []string{"deploy"}},
	}}
	result, err := handlers.GhostSwarm(context.Background(), deps, map[string]any{"task": "deploy the build"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "agent:a", result["agent"])
	assert.Equal(t, "http://localhost:9001", result["url"])
}

func TestGhostSwarmFallsBackForUnmatchedTask(t *testing.T) {
	deps := &handlers.Deps{SwarmFallback: "agent:z"}
	result, err := handlers.GhostSwarm(context.Background(), deps, map[string]any{"task": "make tea"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "agent:z", result["agent"])
}

func TestClassifySwarmTaskDefaultsToAgentAWithNoFallback(t *testing.T) {
	assert.Equal(t, "agent:a", handlers.ClassifySwarmTask("make tea", ""))
	assert.Equal(t, "agent:b", handlers.ClassifySwarmTask("judge this code", ""))
	assert.Equal(t, "agent:c", handlers.ClassifySwarmTask("reason about this", ""))
}

func TestGhostStatusReportsMountedCount(t *testing.T) {
	deps := &handlers.Deps{Registry: newGhostRegistry(t)}
	result, err := handlers.GhostStatus(context.Background(), deps, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result["total_tapes"])
	assert.Equal(t, 1, result["mounted_tapes"])
}
