// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry keeps the authoritative set of known tapes, their
// mount state, and last-access timestamps.
//
// # Thread Safety
//
// Registry follows the pattern used for every other named registry in
// this codebase: a single sync.RWMutex guarding a byID map, an exclusive
// lock on mutation (mount/unmount/reload), a shared lock on list/get.
// Inflight-request counting per entry uses an atomic counter.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/manifest"
)

// MountState is one state in the per-entry lifecycle machine.
type MountState string

const (
	Unmounted  MountState = "unmounted"
	Mounting   MountState = "mounting"
	Mounted    MountState = "mounted"
	Unmounting MountState = "unmounting"
	Failed     MountState = "failed"
)

// Entry pairs an immutable Descriptor with its mutable mount state.
type Entry struct {
	Descriptor   manifest.Descriptor
	State        MountState
	LastAccess   time.Time
	Generation   int
	inflight     atomic.Int64
}

// Inflight returns the current count of in-progress proxied calls.
func (e *Entry) Inflight() int64 { return e.inflight.Load() }

// MountHook runs when a tape transitions into Mounting, deciding whether
// the transition completes (Mounted) or fails (Failed).
type MountHook func(ctx context.Context, d manifest.Descriptor) error

// Registry is the tape registry (C2).
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Entry
	order []string // insertion order, for reproducible listing

	root             string
	handlerRegistered manifest.HandlerLookup
	mountHook        MountHook

	// UnmountWaitTimeout bounds how long unmount waits for the inflight
	// counter to reach zero before forcing the transition (policy for
	// tape-busy in §4.2).
	UnmountWaitTimeout time.Duration
}

// New builds an empty Registry rooted at root. handlerRegistered is used
// by the manifest loader to validate local-handler API endpoints.
func New(root string, handlerRegistered manifest.HandlerLookup, hook MountHook) *Registry {
	return &Registry{
		byID:               make(map[string]*Entry),
		root:               root,
		handlerRegistered:  handlerRegistered,
		mountHook:          hook,
		UnmountWaitTimeout: 5 * time.Second,
	}
}

// Scan lists immediate subdirectories of the tape root, asks the
// manifest loader to load each one, and inserts successful descriptors
// in read order. Per-tape failures are recorded in the returned map but
// do not abort the scan. A directory already registered under its
// identifier is skipped on a rescan; a different directory claiming a
// registered identifier is recorded as tape-already-registered.
func (r *Registry) Scan(ctx context.Context) (map[string]error, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, ghosterr.Newf(ghosterr.Internal, "reading tape root: %v", err)
	}

	failures := make(map[string]error)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		select {
		case <-ctx.Done():
			return failures, ctx.Err()
		default:
		}

		tapeRoot := filepath.Join(r.root, de.Name())
		desc, err := manifest.Load(tapeRoot, r.handlerRegistered)
		if err != nil {
			failures[de.Name()] = err
			continue
		}

		if existing, exists := r.byID[desc.Identifier]; exists {
			if existing.Descriptor.Root == desc.Root {
				continue
			}
			failures[de.Name()] = ghosterr.Newf(ghosterr.TapeAlreadyRegistered, "tape %q already registered", desc.Identifier)
			continue
		}

		entry := &Entry{Descriptor: desc, State: Mounted, LastAccess: time.Now(), Generation: 1}
		r.byID[desc.Identifier] = entry
		r.order = append(r.order, desc.Identifier)
	}

	return failures, nil
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, ghosterr.Newf(ghosterr.TapeNotFound, "tape %q not found", id)
	}
	return e, nil
}

// List returns entries in insertion order for reproducibility.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.order))
	for _, id := range r.order {
		if e, ok := r.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Mount transitions an entry from unmounted to mounted (or is a no-op if
// already mounted), running the configured mount hooks.
func (r *Registry) Mount(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return ghosterr.Newf(ghosterr.TapeNotFound, "tape %q not found", id)
	}
	if e.State == Mounted {
		r.mu.Unlock()
		return nil // idempotent once in mounted
	}
	e.Generation++
	e.State = Mounting
	r.mu.Unlock()

	var hookErr error
	if r.mountHook != nil {
		hookErr = r.mountHook(ctx, e.Descriptor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if hookErr != nil {
		e.State = Failed
		return ghosterr.Newf(ghosterr.Internal, "mount hook failed: %v", hookErr)
	}
	e.State = Mounted
	e.LastAccess = time.Now()
	return nil
}

// Unmount transitions a mounted entry to unmounting, then waits for the
// inflight counter to reach zero (up to UnmountWaitTimeout) before
// completing the transition to unmounted. If the deadline elapses first,
// the transition is forced per policy.
func (r *Registry) Unmount(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return ghosterr.Newf(ghosterr.TapeNotFound, "tape %q not found", id)
	}
	e.State = Unmounting
	r.mu.Unlock()

	deadline := time.Now().Add(r.UnmountWaitTimeout)
	for e.Inflight() > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break
		case <-time.After(10 * time.Millisecond):
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e.State = Unmounted
	return nil
}

// Reload drains the entry (same as Unmount's wait policy) then re-reads
// its manifest from disk, replacing the descriptor in place.
func (r *Registry) Reload(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return ghosterr.Newf(ghosterr.TapeNotFound, "tape %q not found", id)
	}
	root := e.Descriptor.Root
	e.State = Mounting
	e.Generation++
	r.mu.Unlock()

	desc, err := manifest.Load(root, r.handlerRegistered)
	if err != nil {
		r.mu.Lock()
		e.State = Failed
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e.Descriptor = desc
	e.State = Mounted
	e.LastAccess = time.Now()
	return nil
}

// EnterCall increments the inflight counter for id; callers must pair
// this with ExitCall. Returns tape-not-found if id is unknown, or
// tape-busy if the tape is mid-unmount.
func (r *Registry) EnterCall(id string) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ghosterr.Newf(ghosterr.TapeNotFound, "tape %q not found", id)
	}
	if e.State == Unmounting {
		return nil, ghosterr.Newf(ghosterr.TapeBusy, "tape %q is unmounting", id)
	}
	e.inflight.Add(1)
	e.LastAccess = time.Now()
	return e, nil
}

// ExitCall decrements the inflight counter for id; the count never
// decreases below zero.
func (r *Registry) ExitCall(e *Entry) {
	if e.inflight.Load() > 0 {
		e.inflight.Add(-1)
	}
}

// Remove deletes id from the registry entirely (terminal state for a
// removed tape: unmounted, then deletion).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s@%s (%s)", e.Descriptor.Identifier, e.Descriptor.Version, e.State)
}
