// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scheduler implements the device scheduler (C6): policy-ruled
// routing of inference jobs across cpu/dedicated-gpu/integrated-gpu/
// queued tiers, with retry and fallback-shard behaviour on engine
// failure and an online-mean latency metric.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ghostrun/ghostd/internal/config"
	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
	"github.com/ghostrun/ghostd/internal/telemetry"
)

// Device is one of the four routing tiers named in the contract.
const (
	DeviceCPU           = "cpu"
	DeviceDedicatedGPU   = "dedicated-gpu"
	DeviceIntegratedGPU  = "integrated-gpu"
	DeviceQueued         = "queued"
)

const (
	defaultRetries   = 8
	defaultQueueWait = 500 * time.Millisecond
)

// LoadProbe reports a normalized [0,1] load figure. Swappable for
// testing; a Scheduler built by New uses a probe that always reports 0
// (idle), so CPU-tier routing is the default path in tests.
type LoadProbe func() float64

// EngineCaller invokes a shard's resolved engine endpoint and reports
// observed latency. The default implementation POSTs the envelope to
// the shard's endpoint when it looks like an HTTP URL, and otherwise
// treats the call as an always-succeeding local compute step.
type EngineCaller func(ctx context.Context, shard config.Shard, args map[string]any) (latencyMs float64, err error)

// Scheduler is the device scheduler (C6).
type Scheduler struct {
	profile  config.DeviceProfile
	shards   map[string]config.Shard
	policies map[string]config.SchedulerPolicy

	cpuLoad LoadProbe
	gpuLoad LoadProbe
	call    EngineCaller

	retries   int
	queueWait time.Duration

	mu      sync.Mutex
	metrics handlers.SchedulerMetricsSnapshot

	promTotal      prometheus.Counter
	promSuccessful prometheus.Counter
	promFailed     prometheus.Counter
	promLatency    prometheus.Histogram

	logger *telemetry.Logger
}

// New builds a Scheduler from decoded scheduler config. The returned
// Scheduler defaults to an idle load probe and an HTTP-or-local engine
// caller; override via WithLoadProbes/WithEngineCaller for tests.
func New(cfg config.SchedulerConfig, logger *telemetry.Logger) *Scheduler {
	if logger == nil {
		logger = telemetry.Default()
	}
	var profile config.DeviceProfile
	for _, p := range cfg.DeviceProfiles {
		profile = p
		break
	}
	s := &Scheduler{
		profile:   profile,
		shards:    cfg.Shards,
		policies:  cfg.Policies,
		cpuLoad:   func() float64 { return 0 },
		gpuLoad:   func() float64 { return 0 },
		call:      defaultEngineCaller,
		retries:   defaultRetries,
		queueWait: defaultQueueWait,
		logger:    logger,
		promTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ghost", Subsystem: "scheduler", Name: "jobs_total", Help: "Total scheduled jobs.",
		}),
		promSuccessful: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ghost", Subsystem: "scheduler", Name: "jobs_successful_total", Help: "Successfully completed jobs.",
		}),
		promFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ghost", Subsystem: "scheduler", Name: "jobs_failed_total", Help: "Failed jobs.",
		}),
		promLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ghost", Subsystem: "scheduler", Name: "latency_ms", Help: "Job latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
	}
	return s
}

// WithLoadProbes overrides the cpu/gpu load probes.
func (s *Scheduler) WithLoadProbes(cpu, gpu LoadProbe) *Scheduler {
	s.cpuLoad, s.gpuLoad = cpu, gpu
	return s
}

// WithEngineCaller overrides the engine-call strategy.
func (s *Scheduler) WithEngineCaller(c EngineCaller) *Scheduler {
	s.call = c
	return s
}

func defaultPolicy() config.SchedulerPolicy {
	return config.SchedulerPolicy{CPUThresholdLoad: 0.75, PreferGPUForPriority: 0.6}
}

// Schedule implements handlers.SchedulerPort. It resolves a shard and
// policy, applies the ordered policy rules, executes the chosen engine,
// and on failure consults the shard's fallback (restarting once at a
// reduced priority) or requeues up to the retry budget.
func (s *Scheduler) Schedule(ctx context.Context, job handlers.SchedulerJob, priority float64) (handlers.SchedulerDecision, error) {
	return s.scheduleAttempt(ctx, job, priority, 0, false)
}

func (s *Scheduler) scheduleAttempt(ctx context.Context, job handlers.SchedulerJob, priority float64, attempt int, fellBack bool) (handlers.SchedulerDecision, error) {
	if attempt >= s.retries {
		return handlers.SchedulerDecision{}, ghosterr.New(ghosterr.ScheduleExhausted, "exceeded retry budget without relief")
	}

	shard, ok := s.shards[job.ShardID]
	if !ok {
		return handlers.SchedulerDecision{}, ghosterr.Newf(ghosterr.ShardNotFound, "shard %q not found", job.ShardID)
	}
	policy := s.policyFor(job)

	device := s.decideDevice(shard, policy, priority)
	if device == DeviceQueued {
		select {
		case <-ctx.Done():
			return handlers.SchedulerDecision{}, ghosterr.Wrap(ctx.Err(), ghosterr.DeadlineExceeded)
		case <-time.After(s.queueWait):
		}
		return s.scheduleAttempt(ctx, job, priority, attempt+1, fellBack)
	}

	start := time.Now()
	args := map[string]any{"fingerprint": job.Fingerprint, "shard": job.ShardID, "hints": job.Hints}
	latencyMs, err := s.call(ctx, shard, args)
	elapsed := float64(time.Since(start).Milliseconds())
	if latencyMs == 0 {
		latencyMs = elapsed
	}

	if err != nil {
		s.recordFailure()
		if shard.Fallback != "" && !fellBack {
			fallbackJob := job
			fallbackJob.ShardID = shard.Fallback
			return s.scheduleAttempt(ctx, fallbackJob, priority*0.8, attempt+1, true)
		}
		return handlers.SchedulerDecision{}, ghosterr.Newf(ghosterr.EngineError, "engine %q failed: %v", shard.Engine, err)
	}

	s.recordSuccess(latencyMs)
	return handlers.SchedulerDecision{
		Device:    device,
		Engine:    shard.Engine,
		Endpoint:  shard.Endpoint,
		Args:      args,
		LatencyMs: latencyMs,
	}, nil
}

func (s *Scheduler) policyFor(job handlers.SchedulerJob) config.SchedulerPolicy {
	if job.Hints != nil {
		if name, ok := job.Hints["policy"].(string); ok {
			if p, found := s.policies[name]; found {
				return p
			}
		}
	}
	if p, found := s.policies["default"]; found {
		return p
	}
	return defaultPolicy()
}

// decideDevice evaluates the ordered policy rules in §4.6: first match
// wins.
func (s *Scheduler) decideDevice(shard config.Shard, policy config.SchedulerPolicy, priority float64) string {
	cpuCompatible := strings.Contains(strings.ToLower(shard.Engine), "cpu")

	if cpuCompatible && s.cpuLoad() < policy.CPUThresholdLoad {
		return DeviceCPU
	}
	if s.profile.DedicatedGPU && priority > policy.PreferGPUForPriority {
		return DeviceDedicatedGPU
	}
	if s.profile.IntegratedGPU && s.gpuLoad() < 0.8 {
		return DeviceIntegratedGPU
	}
	return DeviceQueued
}

func (s *Scheduler) recordSuccess(latencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Total++
	s.metrics.Successful++
	n := float64(s.metrics.Successful)
	s.metrics.AvgLatencyMs += (latencyMs - s.metrics.AvgLatencyMs) / n
	s.promTotal.Inc()
	s.promSuccessful.Inc()
	s.promLatency.Observe(latencyMs)
}

func (s *Scheduler) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Total++
	s.metrics.Failed++
	s.promTotal.Inc()
	s.promFailed.Inc()
}

// Metrics implements handlers.SchedulerPort.
func (s *Scheduler) Metrics() handlers.SchedulerMetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// NewJobFingerprint mints a sortable, time-ordered job id so scheduler
// history sorts by admission order.
func NewJobFingerprint() string {
	return ulid.Make().String()
}

func defaultEngineCaller(ctx context.Context, shard config.Shard, args map[string]any) (float64, error) {
	if !strings.HasPrefix(shard.Endpoint, "http://") && !strings.HasPrefix(shard.Endpoint, "https://") {
		return 1, nil // local compute step, effectively instantaneous
	}

	body, err := json.Marshal(args)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, shard.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	latency := float64(time.Since(start).Milliseconds())
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return latency, fmt.Errorf("engine returned status %d", resp.StatusCode)
	}
	return latency, nil
}
