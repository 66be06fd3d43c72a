// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// All scheduler behaviours are exercised as subtests of one top-level
// test sharing a single Scheduler: New registers Prometheus collectors
// against the default registry (same limitation documented on the
// teacher's own observability.InitMetrics — calling it twice in one
// process panics on duplicate registration), so constructing more than
// one Scheduler per test binary is unsafe.
package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostrun/ghostd/internal/config"
	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
	"github.com/ghostrun/ghostd/internal/scheduler"
)

func TestScheduler(t *testing.T) {
	cfg := config.SchedulerConfig{
		DeviceProfiles: map[string]config.DeviceProfile{
			"host": {Cores: 8, DedicatedGPU: true, IntegratedGPU: true},
		},
		Shards: map[string]config.Shard{
			"cpu-main":    {Engine: "cpu-runtime", Backend: "local"},
			"gpu-main":    {Engine: "gpu-runtime", Backend: "local"},
			"failing":     {Engine: "flaky-runtime", Backend: "local", Fallback: "cpu-main"},
			"no-fallback": {Engine: "flaky-runtime", Backend: "local"},
		},
		Policies: map[string]config.SchedulerPolicy{
			"default": {CPUThresholdLoad: 0.75, PreferGPUForPriority: 0.6},
		},
	}
	sched := scheduler.New(cfg, nil)

	t.Run("RoutesCPUCompatibleShardUnderThreshold", func(t *testing.T) {
		sched.WithLoadProbes(func() float64 { return 0 }, func() float64 { return 0 })
		sched.WithEngineCaller(func(context.Context, config.Shard, map[string]any) (float64, error) { return 5, nil })

		decision, err := sched.Schedule(context.Background(), handlers.SchedulerJob{ShardID: "cpu-main"}, 0.5)
		require.NoError(t, err)
		assert.Equal(t, scheduler.DeviceCPU, decision.Device)
	})

	t.Run("PrefersDedicatedGPUAboveThreshold", func(t *testing.T) {
		sched.WithLoadProbes(func() float64 { return 0.9 }, func() float64 { return 0 })
		sched.WithEngineCaller(func(context.Context, config.Shard, map[string]any) (float64, error) { return 5, nil })

		decision, err := sched.Schedule(context.Background(), handlers.SchedulerJob{ShardID: "gpu-main"}, 0.9)
		require.NoError(t, err)
		assert.Equal(t, scheduler.DeviceDedicatedGPU, decision.Device)
	})

	t.Run("UnknownShardIsShardNotFound", func(t *testing.T) {
		_, err := sched.Schedule(context.Background(), handlers.SchedulerJob{ShardID: "missing"}, 0.5)
		require.Error(t, err)
		assert.Equal(t, ghosterr.ShardNotFound, ghosterr.KindOf(err))
	})

	t.Run("FallsBackToConfiguredShardOnFailure", func(t *testing.T) {
		sched.WithLoadProbes(func() float64 { return 0 }, func() float64 { return 0 })
		calls := 0
		sched.WithEngineCaller(func(_ context.Context, shard config.Shard, _ map[string]any) (float64, error) {
			calls++
			if shard.Engine == "flaky-runtime" {
				return 0, assert.AnError
			}
			return 5, nil
		})

		decision, err := sched.Schedule(context.Background(), handlers.SchedulerJob{ShardID: "failing"}, 0.9)
		require.NoError(t, err)
		assert.Equal(t, "cpu-runtime", decision.Engine)
		assert.Equal(t, 2, calls)
	})

	t.Run("EngineFailureWithoutFallbackIsEngineError", func(t *testing.T) {
		sched.WithLoadProbes(func() float64 { return 0 }, func() float64 { return 0 })
		sched.WithEngineCaller(func(context.Context, config.Shard, map[string]any) (float64, error) { return 0, assert.AnError })

		_, err := sched.Schedule(context.Background(), handlers.SchedulerJob{ShardID: "no-fallback"}, 0.9)
		require.Error(t, err)
		assert.Equal(t, ghosterr.EngineError, ghosterr.KindOf(err))
	})

	t.Run("QueuedTierExhaustsRetryBudget", func(t *testing.T) {
		// cpuLoad/gpuLoad both pegged at 1 and priority held below the
		// GPU-preference threshold: every policy rule fails, so the job
		// queues every attempt until the retry budget runs out.
		sched.WithLoadProbes(func() float64 { return 1 }, func() float64 { return 1 })
		sched.WithEngineCaller(func(context.Context, config.Shard, map[string]any) (float64, error) { return 5, nil })

		start := time.Now()
		_, err := sched.Schedule(context.Background(), handlers.SchedulerJob{ShardID: "cpu-main"}, 0.1)
		require.Error(t, err)
		assert.Equal(t, ghosterr.ScheduleExhausted, ghosterr.KindOf(err))
		assert.Greater(t, time.Since(start), time.Duration(0))
	})

	t.Run("MetricsAccumulate", func(t *testing.T) {
		before := sched.Metrics().Total
		sched.WithLoadProbes(func() float64 { return 0 }, func() float64 { return 0 })
		sched.WithEngineCaller(func(context.Context, config.Shard, map[string]any) (float64, error) { return 5, nil })
		_, err := sched.Schedule(context.Background(), handlers.SchedulerJob{ShardID: "cpu-main"}, 0.5)
		require.NoError(t, err)
		assert.Greater(t, sched.Metrics().Total, before)
	})
}

func TestNewJobFingerprintIsSortableAndUnique(t *testing.T) {
	a := scheduler.NewJobFingerprint()
	b := scheduler.NewJobFingerprint()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26) // ULID canonical string length
}
