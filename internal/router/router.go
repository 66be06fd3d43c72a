// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router implements the backend router (C5): a priority-ordered
// list of remote backends tried in order ahead of the always-available
// local backend, which terminates the chain against the built-in handler
// set and never itself reports a connection failure.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
)

// DefaultBackendTimeout bounds a single remote backend attempt.
const DefaultBackendTimeout = 5 * time.Second

// negativeCacheTTL bounds how long a backend that just failed is skipped
// on subsequent calls, whatever handler name they target.
const negativeCacheTTL = time.Second

// Backend is one entry in the router's priority-ordered chain.
type Backend interface {
	Name() string
	Call(ctx context.Context, handlerName string, input, callCtx map[string]any) (map[string]any, error)
}

// RemoteBackend forwards a call as an HTTP POST of the request envelope
// to a fixed base URL, appending the handler name as the path.
type RemoteBackend struct {
	name    string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewRemoteBackend builds a remote HTTP backend.
func NewRemoteBackend(name, baseURL string, timeout time.Duration) *RemoteBackend {
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}
	return &RemoteBackend{name: name, baseURL: baseURL, client: &http.Client{Timeout: timeout}, timeout: timeout}
}

// Name implements Backend.
func (b *RemoteBackend) Name() string { return b.name }

// Call implements Backend by POSTing {input, context} to baseURL/name.
func (b *RemoteBackend) Call(ctx context.Context, handlerName string, input, callCtx map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{"input": input, "context": callCtx})
	if err != nil {
		return nil, ghosterr.Wrap(err, ghosterr.Internal)
	}
	url := fmt.Sprintf("%s/%s", b.baseURL, handlerName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, ghosterr.Wrap(err, ghosterr.Internal)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, ghosterr.Newf(ghosterr.BackendError, "remote backend %q unreachable: %v", b.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ghosterr.Newf(ghosterr.BackendError, "remote backend %q returned status %d", b.name, resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, ghosterr.Wrap(err, ghosterr.BackendError)
	}
	return result, nil
}

// LocalBackend is the terminator backend: it dispatches directly into
// the built-in handler registry. It never reports a connection failure —
// only the handler's own errors (handler-unknown, or the handler's
// typed failure) can surface. A panic inside a handler is recovered,
// logged with its stack, and returned as an internal error.
type LocalBackend struct {
	registry *handlers.Registry
	deps     *handlers.Deps
}

// NewLocalBackend builds the always-present local backend.
func NewLocalBackend(registry *handlers.Registry, deps *handlers.Deps) *LocalBackend {
	return &LocalBackend{registry: registry, deps: deps}
}

// Name implements Backend.
func (b *LocalBackend) Name() string { return "local" }

// Call implements Backend by dispatching directly into the handler set.
func (b *LocalBackend) Call(ctx context.Context, handlerName string, input, callCtx map[string]any) (result map[string]any, err error) {
	h, ok := b.registry.Get(handlerName)
	if !ok {
		return nil, ghosterr.Newf(ghosterr.HandlerUnknown, "handler %q is not registered", handlerName)
	}
	defer func() {
		if p := recover(); p != nil {
			if b.deps != nil && b.deps.Logger != nil {
				b.deps.Logger.Error("handler panicked", "handler", handlerName, "panic", p, "stack", string(debug.Stack()))
			}
			result, err = nil, ghosterr.Newf(ghosterr.Internal, "handler %q failed unexpectedly", handlerName)
		}
	}()
	return h(ctx, b.deps, input, callCtx)
}

// Router is the backend router (C5): remote backends are tried in
// priority order, each bounded by its own timeout, before falling
// through to the local backend, which always terminates the chain.
type Router struct {
	remotes []Backend
	local   Backend

	mu       sync.Mutex
	coolDown map[string]time.Time // backend name -> until
}

// New builds a Router. remotes is tried in order before local.
func New(remotes []Backend, local Backend) *Router {
	return &Router{remotes: remotes, local: local, coolDown: make(map[string]time.Time)}
}

// Dispatch implements the Deps.RouterCall contract: try each remote
// backend in priority order (skipping any still in its negative-cache
// cooldown), falling through to local on failure, and reports which
// backend ultimately served the call.
func (r *Router) Dispatch(ctx context.Context, handlerName string, input, callCtx map[string]any) (map[string]any, string, error) {
	for _, backend := range r.remotes {
		if r.isCoolingDown(backend.Name()) {
			continue
		}
		result, err := backend.Call(ctx, handlerName, input, callCtx)
		if err == nil {
			return result, backend.Name(), nil
		}
		if ghosterr.KindOf(err) == ghosterr.BackendError {
			r.markCoolDown(backend.Name())
			continue
		}
		// A non-connectivity failure (e.g. the handler itself rejected
		// the call) is authoritative — don't fall through.
		return nil, backend.Name(), err
	}

	result, err := r.local.Call(ctx, handlerName, input, callCtx)
	return result, r.local.Name(), err
}

func (r *Router) isCoolingDown(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.coolDown[name]
	return ok && time.Now().Before(until)
}

func (r *Router) markCoolDown(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coolDown[name] = time.Now().Add(negativeCacheTTL)
}
