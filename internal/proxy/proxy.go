// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package proxy implements the inter-tape proxy (C8): a hop-limited,
// permission-gated call path that lets one mounted tape invoke another's
// declared API endpoint, whether that endpoint resolves to a local
// handler or a remote HTTP service.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/handlers"
	"github.com/ghostrun/ghostd/internal/manifest"
	"github.com/ghostrun/ghostd/internal/registry"
)

const (
	// DefaultHopLimit bounds how many chained proxy calls a single
	// originating request may traverse before hop-limit-exceeded.
	DefaultHopLimit = 8
	// DefaultRemoteTimeout bounds a single remote-HTTP proxy hop.
	DefaultRemoteTimeout = 30 * time.Second
)

// Proxy is the C8 inter-tape proxy.
type Proxy struct {
	registry  *registry.Registry
	handlers  *handlers.Registry
	deps      *handlers.Deps
	client    *http.Client
	hopLimit  int
}

// New builds a Proxy over the tape registry and the local handler set
// used to dispatch local-handler-kind endpoints.
func New(reg *registry.Registry, handlerRegistry *handlers.Registry, deps *handlers.Deps) *Proxy {
	return &Proxy{
		registry: reg,
		handlers: handlerRegistry,
		deps:     deps,
		client:   &http.Client{Timeout: DefaultRemoteTimeout},
		hopLimit: DefaultHopLimit,
	}
}

// Call implements the Deps.ProxyCall contract: resolve tapeID's declared
// API endpoint, enforce its network permission and the remaining hop
// budget, and dispatch either into the local handler set or over HTTP.
func (p *Proxy) Call(ctx context.Context, tapeID string, req handlers.ProxyRequest) (handlers.ProxyResult, error) {
	// A zero Hops means the caller set no budget and gets the default.
	if req.Hops == 0 {
		req.Hops = p.hopLimit
	}
	if req.Hops < 0 {
		return handlers.ProxyResult{}, ghosterr.New(ghosterr.HopLimitExceeded, "hop budget exhausted before dispatch")
	}

	entry, err := p.registry.EnterCall(tapeID)
	if err != nil {
		return handlers.ProxyResult{}, err
	}
	defer p.registry.ExitCall(entry)

	desc := entry.Descriptor
	if desc.Permissions.Network == manifest.NetNone {
		return handlers.ProxyResult{}, ghosterr.Newf(ghosterr.TapePermissionDenied, "tape %q does not permit inbound proxy calls", tapeID)
	}
	if desc.APIEndpoint == nil {
		return handlers.ProxyResult{}, ghosterr.Newf(ghosterr.BadRequest, "tape %q declares no API endpoint", tapeID)
	}

	switch desc.APIEndpoint.Kind {
	case manifest.EndpointLocalHandler:
		return p.callLocal(ctx, desc.APIEndpoint.Name, req)
	case manifest.EndpointRemoteHTTP:
		return p.callRemote(ctx, desc.APIEndpoint.URL, req)
	default:
		return handlers.ProxyResult{}, ghosterr.Newf(ghosterr.Internal, "tape %q has an unclassified endpoint", tapeID)
	}
}

func (p *Proxy) callLocal(ctx context.Context, handlerName string, req handlers.ProxyRequest) (handlers.ProxyResult, error) {
	h, ok := p.handlers.Get(handlerName)
	if !ok {
		return handlers.ProxyResult{}, ghosterr.Newf(ghosterr.HandlerUnknown, "handler %q is not registered", handlerName)
	}
	callCtx := map[string]any{"hops_remaining": req.Hops - 1, "via": "proxy"}
	result, err := h(ctx, p.deps, req.Payload, callCtx)
	if err != nil {
		return handlers.ProxyResult{Error: string(ghosterr.KindOf(err))}, err
	}
	return handlers.ProxyResult{OK: true, Result: result}, nil
}

func (p *Proxy) callRemote(ctx context.Context, url string, req handlers.ProxyRequest) (handlers.ProxyResult, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	body, err := json.Marshal(map[string]any{
		"payload":        req.Payload,
		"hops_remaining": req.Hops - 1,
	})
	if err != nil {
		return handlers.ProxyResult{}, ghosterr.Wrap(err, ghosterr.Internal)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return handlers.ProxyResult{}, ghosterr.Wrap(err, ghosterr.Internal)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return handlers.ProxyResult{}, ghosterr.Newf(ghosterr.BackendError, "remote tape call failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handlers.ProxyResult{}, ghosterr.Newf(ghosterr.BackendError, "remote tape returned status %d", resp.StatusCode)
	}

	var decoded handlers.ProxyResult
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return handlers.ProxyResult{}, ghosterr.Wrap(err, ghosterr.BackendError)
	}
	return decoded, nil
}
