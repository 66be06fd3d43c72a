// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Host.New registers the device scheduler's Prometheus collectors
// against the global default registry (same one-shot limitation the
// scheduler package documents), so this package constructs a Host
// exactly once per test binary, exercised through subtests.
package host_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostrun/ghostd/internal/config"
	"github.com/ghostrun/ghostd/internal/host"
)

func TestHost(t *testing.T) {
	cfg := config.Server{
		Host:         "127.0.0.1",
		Port:         0,
		TapeRoot:     t.TempDir(),
		ConfigDir:    t.TempDir(),
		DrainTimeout: 1,
	}
	h, err := host.New(cfg, nil)
	require.NoError(t, err)

	t.Run("BuildsWithoutError", func(t *testing.T) {
		assert.NotNil(t, h)
	})

	t.Run("RunServesUntilContextCancelledThenDrains", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- h.Run(ctx) }()

		// Run binds the listener asynchronously; give it a moment before
		// tearing down so Run observably reaches the serving state.
		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after context cancellation")
		}
	})
}
