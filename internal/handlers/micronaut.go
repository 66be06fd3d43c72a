// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Micronaut itself — the n-gram model trainer — is explicitly out of
// scope (§1). These handlers are the narrow interface the core consumes
// it through: model absence is never a failure, only a marker result,
// since GHOST never trains or ships a model itself.
package handlers

import "context"

func micronautUnavailable(op string) map[string]any {
	return map[string]any{"available": false, "operation": op, "reason": "no micronaut model loaded"}
}

// MicronautInfer returns a marker result: no inference backend is
// bundled with the core.
func MicronautInfer(_ context.Context, _ *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	return micronautUnavailable("infer"), nil
}

// MicronautIntent returns a marker result for intent classification.
func MicronautIntent(_ context.Context, _ *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	return micronautUnavailable("intent"), nil
}

// MicronautComplete returns a marker result for text completion.
func MicronautComplete(_ context.Context, _ *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	return micronautUnavailable("complete"), nil
}

// MicronautChat returns a marker result for chat completion.
func MicronautChat(_ context.Context, _ *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	return micronautUnavailable("chat"), nil
}

// MicronautTrain returns a marker result — training is explicitly out
// of scope for the core (§1 Non-goals: no ML training).
func MicronautTrain(_ context.Context, _ *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	return micronautUnavailable("train"), nil
}

// MicronautStatus reports that no model is loaded.
func MicronautStatus(_ context.Context, _ *Deps, _ map[string]any, _ map[string]any) (map[string]any, error) {
	return map[string]any{"loaded": false}, nil
}
