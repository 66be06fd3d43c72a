// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostrun/ghostd/internal/envelope"
	"github.com/ghostrun/ghostd/internal/handlers"
	"github.com/ghostrun/ghostd/internal/httpapi"
	"github.com/ghostrun/ghostd/internal/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func alwaysRegistered(string) bool { return true }

func newTestServer(t *testing.T) (*httpapi.Server, *handlers.Deps) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "demo")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(`{
		"identifier": "demo",
		"display_name": "demo",
		"version": "1.0.0",
		"ui_entry": "index.html"
	}`), 0o644))

	reg := registry.New(root, alwaysRegistered, nil)
	_, err := reg.Scan(context.Background())
	require.NoError(t, err)

	hreg := handlers.NewRegistry()
	hreg.Register("echo", func(_ context.Context, _ *handlers.Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
		return map[string]any{"echoed": input}, nil
	})

	deps := &handlers.Deps{Registry: reg}
	srv := httpapi.New(deps, reg, hreg, nil)
	return srv, deps
}

func doJSON(srv *httpapi.Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) envelope.Result {
	t.Helper()
	var result envelope.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestHandleRunDispatchesToLocalHandlerRegistry(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(srv, http.MethodPost, "/run", map[string]any{
		"program": map[string]any{"type": "echo", "input": map[string]any{"x": 1}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	assert.True(t, result.OK)
	assert.Equal(t, "local", result.Backend)
}

func TestHandleRunMissingProgramTypeIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(srv, http.MethodPost, "/run", map[string]any{"program": map[string]any{}})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	assert.False(t, result.OK)
	assert.Equal(t, "bad-request", result.Error)
}

func TestHandleRunUnknownHandlerIsHandlerUnknown(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(srv, http.MethodPost, "/run", map[string]any{
		"program": map[string]any{"type": "nonexistent"},
	})
	result := decodeResult(t, rec)
	assert.False(t, result.OK)
	assert.Equal(t, "handler-unknown", result.Error)
}

func TestHandleRunUsesRouterCallWhenWired(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.RouterCall = func(context.Context, string, map[string]any, map[string]any) (map[string]any, string, error) {
		return map[string]any{"via": "router"}, "remote-a", nil
	}
	rec := doJSON(srv, http.MethodPost, "/run", map[string]any{
		"program": map[string]any{"type": "anything"},
	})
	result := decodeResult(t, rec)
	assert.True(t, result.OK)
	assert.Equal(t, "remote-a", result.Backend)
}

func TestDrainRejectsRunWith503(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Drain()
	rec := doJSON(srv, http.MethodPost, "/run", map[string]any{
		"program": map[string]any{"type": "echo"},
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthEndpointReportsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestHandleListAndGetTape(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/tapes", nil)
	result := decodeResult(t, rec)
	require.True(t, result.OK)
	tapes, ok := result.Result["tapes"].([]any)
	require.True(t, ok)
	assert.Len(t, tapes, 1)

	rec = doJSON(srv, http.MethodGet, "/tapes/demo", nil)
	result = decodeResult(t, rec)
	assert.True(t, result.OK)

	rec = doJSON(srv, http.MethodGet, "/tapes/nonexistent", nil)
	result = decodeResult(t, rec)
	assert.False(t, result.OK)
	assert.Equal(t, "tape-not-found", result.Error)
}

func TestHandleMountUnmountReload(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/tapes/demo/mount", nil)
	result := decodeResult(t, rec)
	assert.True(t, result.OK)

	rec = doJSON(srv, http.MethodPost, "/tapes/demo/unmount", nil)
	result = decodeResult(t, rec)
	assert.True(t, result.OK)

	rec = doJSON(srv, http.MethodPost, "/tapes/demo/reload", nil)
	result = decodeResult(t, rec)
	assert.True(t, result.OK)
}

func TestHandleProxyNotWiredReportsInternal(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(srv, http.MethodPost, "/proxy/demo", map[string]any{"payload": map[string]any{}})
	result := decodeResult(t, rec)
	assert.False(t, result.OK)
	assert.Equal(t, "internal", result.Error)
}

func TestHandleProxyDispatchesThroughProxyCall(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.ProxyCall = func(_ context.Context, tapeID string, req handlers.ProxyRequest) (handlers.ProxyResult, error) {
		assert.Equal(t, "demo", tapeID)
		return handlers.ProxyResult{OK: true, Result: map[string]any{"forwarded": req.Payload}}, nil
	}
	rec := doJSON(srv, http.MethodPost, "/proxy/demo", map[string]any{"payload": map[string]any{"a": 1}})
	result := decodeResult(t, rec)
	assert.True(t, result.OK)
}

func TestHandleProxyExternalUnknownServiceIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(srv, http.MethodPost, "/proxy-external/nonexistent", map[string]any{})
	result := decodeResult(t, rec)
	assert.False(t, result.OK)
	assert.Equal(t, "bad-request", result.Error)
}

func TestHandleProxyExternalForwardsToConfiguredURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"relayed":true}`))
	}))
	defer upstream.Close()

	srv, deps := newTestServer(t)
	deps.ExternalServices = map[string]string{"weather": upstream.URL}

	rec := doJSON(srv, http.MethodPost, "/proxy-external/weather", map[string]any{"q": "here"})
	result := decodeResult(t, rec)
	assert.True(t, result.OK)
	assert.Equal(t, true, result.Result["relayed"])
}

func TestHandleSwarmRouteClassifiesTask(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.SwarmFallback = "general"
	deps.SwarmAgents = map[string]handlers.SwarmAgentRef{
		"general": {URL: "http://localhost:9000", Status: "online"},
	}
	rec := doJSON(srv, http.MethodPost, "/swarm/route", map[string]any{"task": "do something vague"})
	result := decodeResult(t, rec)
	assert.True(t, result.OK)
}
