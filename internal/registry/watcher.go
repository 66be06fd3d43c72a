// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ghostrun/ghostd/internal/telemetry"
)

// Watcher supplements filesystem discovery with an fsnotify watch on the
// tape root plus a periodic fallback rescan, so a tape root change made
// out-of-band from the watch (e.g. over a network mount that doesn't
// emit events) is still picked up. Scan itself is unchanged; this only
// decides when to call it.
type Watcher struct {
	registry *Registry
	interval time.Duration
	logger   *telemetry.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewWatcher builds a Watcher for registry with the given fallback
// rescan interval (default 60s if zero).
func NewWatcher(registry *Registry, interval time.Duration, logger *telemetry.Logger) *Watcher {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = telemetry.Default()
	}
	return &Watcher{registry: registry, interval: interval, logger: logger}
}

// Start begins watching. It is idempotent: calling Start twice while
// already running is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("tape root watch unavailable, falling back to ticker-only rescans", "error", err)
		go w.runTickerLoop(ctx, nil)
		return nil
	}
	if err := fsw.Add(w.registry.root); err != nil {
		w.logger.Warn("could not watch tape root", "error", err)
	}

	go w.runTickerLoop(ctx, fsw)
	return nil
}

// Stop halts the watcher's background loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.done)
}

func (w *Watcher) runTickerLoop(ctx context.Context, fsw *fsnotify.Watcher) {
	if fsw != nil {
		defer fsw.Close()
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Stop may land while a tick or event is already pending; checking
	// done before each rescan keeps a stopped watcher from scanning again.
	stopped := func() bool {
		select {
		case <-w.done:
			return true
		default:
			return false
		}
	}
	if stopped() {
		return
	}
	w.rescan(ctx)

	var events <-chan fsnotify.Event
	if fsw != nil {
		events = fsw.Events
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			if stopped() {
				return
			}
			w.rescan(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if stopped() {
					return
				}
				w.rescan(ctx)
			}
		}
	}
}

func (w *Watcher) rescan(ctx context.Context) {
	failures, err := w.registry.Scan(ctx)
	if err != nil {
		w.logger.Error("tape root rescan failed", "error", err)
		return
	}
	for tape, ferr := range failures {
		w.logger.Warn("tape manifest rejected during rescan", "tape", tape, "error", ferr)
	}
}
