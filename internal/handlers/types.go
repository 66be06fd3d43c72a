// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the named callable endpoints reachable
// through the request envelope: ping/info/echo, the key-value store,
// the sandboxed filesystem, the SCXQ2 codec, tape directory operations,
// agent/tribunal calls, scheduler dispatch, and inference markers.
//
// Handlers are values of a common callable shape (Handler) registered at
// boot from a known component list — never by self-registration on
// import — and every handler takes a *Deps value rather than reaching
// into global state, per the host-value design note.
package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ghostrun/ghostd/internal/registry"
	"github.com/ghostrun/ghostd/internal/sandbox"
	"github.com/ghostrun/ghostd/internal/store"
	"github.com/ghostrun/ghostd/internal/telemetry"
)

// Handler is a named operation taking an input payload and caller
// context and producing a result payload or a typed error. Handlers
// never throw across the envelope boundary — callers wrap any panic at
// the router boundary, not here.
type Handler func(ctx context.Context, deps *Deps, input map[string]any, callCtx map[string]any) (map[string]any, error)

// ProxyRequest is what the inter-tape proxy (C8) forwards on behalf of a
// handler like ghost_route.
type ProxyRequest struct {
	Path    string
	Method  string
	Payload map[string]any
	Hops    int
}

// ProxyResult is the result of a proxied call.
type ProxyResult struct {
	OK      bool
	Result  map[string]any
	Error   string
	Message string
}

// SchedulerPort is the subset of the device scheduler (C6) that handlers
// need. Defined here rather than imported so the scheduler package
// never has to depend on handlers.
type SchedulerPort interface {
	Schedule(ctx context.Context, job SchedulerJob, priority float64) (SchedulerDecision, error)
	Metrics() SchedulerMetricsSnapshot
}

// SchedulerJob mirrors the scheduler job shape handlers construct from
// an envelope payload.
type SchedulerJob struct {
	Fingerprint string
	ShardID     string
	Hints       map[string]any
}

// SchedulerDecision mirrors schedule()'s successful result.
type SchedulerDecision struct {
	Device    string
	Engine    string
	Endpoint  string
	Args      map[string]any
	LatencyMs float64
}

// SchedulerMetricsSnapshot mirrors the scheduler's exported counters.
type SchedulerMetricsSnapshot struct {
	Total         int64
	Successful    int64
	Failed        int64
	AvgLatencyMs  float64
}

// TribunalPort is the subset of the tribunal (C7) that handlers need.
type TribunalPort interface {
	Evaluate(ctx context.Context, task TribunalTask, judgeNames []string, timeout time.Duration) (TribunalSession, error)
}

// TribunalTask mirrors the task shape handlers build from an envelope
// payload.
type TribunalTask struct {
	Type    string
	Content string
	Context map[string]any
}

// TribunalVote is one judge's response.
type TribunalVote struct {
	Judge      string
	Verdict    string
	Confidence float64
	Reasoning  string
	LatencyMs  float64
	Err        string
}

// TribunalSession mirrors the consensus result handlers report back.
type TribunalSession struct {
	ID              string
	Votes           []TribunalVote
	Verdict         string
	Confidence      float64
	AgreementRate   float64
	Severity        string
	Escalation      string
	DisagreementLogged bool
}

// Deps is the Host value every handler receives — no global mutable
// state, per the design note that replaces module-level singletons with
// an explicit value passed to every handler. ProxyCall and RouterCall
// are closures rather than concrete package references so this package
// never has to import router or proxy (which in turn depend on this
// package's Registry type).
type Deps struct {
	Registry  *registry.Registry
	Store     KVStore
	Sandbox   *sandbox.Guard
	Scheduler SchedulerPort
	Tribunal  TribunalPort
	Logger    *telemetry.Logger
	BootTime  time.Time

	ProxyCall  func(ctx context.Context, tapeID string, req ProxyRequest) (ProxyResult, error)
	RouterCall func(ctx context.Context, handlerName string, input map[string]any, callCtx map[string]any) (map[string]any, string, error)

	ExternalServices map[string]string
	SwarmAgents      map[string]SwarmAgentRef
	SwarmFallback    string
}

// SwarmAgentRef is the handler-facing view of a configured swarm agent.
type SwarmAgentRef struct {
	URL      string
	Skills   []string
	Priority int
	Status   string
}

// KVStore is the minimal interface the store handler needs, satisfied
// by both store.Store and store.SnapshotStore.
type KVStore interface {
	Set(key string, value any)
	Get(key string) (store.Entry, bool)
	Delete(key string) bool
	Keys() []string
	Clear()
}

// Registry is the named-handler registry (C4's addressing table),
// modeled on the same byName/byCategory lookup pattern used elsewhere
// in this codebase for other named collections.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Handler)}
}

// Register adds or replaces a handler under name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = h
}

// Get looks up a handler by name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	return h, ok
}

// Contains reports whether name is registered — used by the manifest
// loader to validate local-handler API endpoints.
func (r *Registry) Contains(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns every registered handler name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterAll installs the full built-in handler set (C4) into r.
func RegisterAll(r *Registry) {
	r.Register("ping", Ping)
	r.Register("info", Info)
	r.Register("echo", Echo)

	r.Register("store", StoreHandler)

	r.Register("fs_read", FSRead)
	r.Register("fs_write", FSWrite)
	r.Register("fs_list", FSList)
	r.Register("fs_exists", FSExists)
	r.Register("fs_delete", FSDelete)
	r.Register("fs_copy", FSCopy)
	r.Register("fs_json_read", FSJSONRead)
	r.Register("fs_json_write", FSJSONWrite)

	r.Register("scxq2_encode", SCXQ2Encode)
	r.Register("scxq2_decode", SCXQ2Decode)
	r.Register("scxq2_stats", SCXQ2Stats)

	r.Register("ghost_list", GhostList)
	r.Register("ghost_get", GhostGet)
	r.Register("ghost_launch", GhostLaunch)
	r.Register("ghost_route", GhostRoute)
	r.Register("ghost_discover", GhostDiscover)
	r.Register("ghost_swarm", GhostSwarm)
	r.Register("ghost_status", GhostStatus)

	r.Register("agents_list", AgentsList)
	r.Register("agents_call", AgentsCall)
	r.Register("agents_tribunal", AgentsTribunal)
	r.Register("agents_swarm", AgentsSwarm)

	r.Register("kuhul_profile", KuhulProfile)
	r.Register("kuhul_route", KuhulRoute)
	r.Register("kuhul_schedule", KuhulSchedule)
	r.Register("kuhul_status", KuhulStatus)
	r.Register("kuhul_glyph", KuhulGlyph)

	r.Register("micronaut_infer", MicronautInfer)
	r.Register("micronaut_intent", MicronautIntent)
	r.Register("micronaut_complete", MicronautComplete)
	r.Register("micronaut_chat", MicronautChat)
	r.Register("micronaut_train", MicronautTrain)
	r.Register("micronaut_status", MicronautStatus)

	r.Register("eval_expr", EvalExpr)
}
