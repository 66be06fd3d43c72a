// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package envelope_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghostrun/ghostd/internal/envelope"
)

func TestOkResult(t *testing.T) {
	result := envelope.Ok(map[string]any{"status": "ok"}, "local", 5*time.Millisecond)
	require.True(t, result.OK)
	require.Equal(t, "local", result.Backend)
	require.Equal(t, "ok", result.Result["status"])
	require.Empty(t, result.Error)
}

func TestFailResult(t *testing.T) {
	result := envelope.Fail("bad-request", "missing key", "")
	require.False(t, result.OK)
	require.Equal(t, "bad-request", result.Error)
	require.Equal(t, "missing key", result.Message)
}

func TestRequestRoundTrip(t *testing.T) {
	req := envelope.Request{
		Program: envelope.Program{Type: "ping", Input: map[string]any{}},
		Context: map[string]any{"request_id": "abc"},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded envelope.Request
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "ping", decoded.Program.Type)
	require.Equal(t, "abc", decoded.Context["request_id"])
}

func TestResultFieldNamesAreWireStable(t *testing.T) {
	result := envelope.Ok(map[string]any{"x": 1.0}, "remote:a", time.Second)
	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, true, decoded["ok"])
	require.Equal(t, "remote:a", decoded["backend"])
	require.Contains(t, decoded, "result")
}

func TestOkConvertsElapsedToMilliseconds(t *testing.T) {
	result := envelope.Ok(map[string]any{}, "local", 1500*time.Millisecond)
	require.Equal(t, int64(1500), result.ElapsedMs)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, float64(1500), decoded["elapsed_ms"])
}
