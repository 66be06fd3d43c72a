// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"

	"github.com/ghostrun/ghostd/internal/ghosterr"
	"github.com/ghostrun/ghostd/internal/sandbox"
)

// EvalExpr evaluates a restricted arithmetic/comparison/logical
// expression via the sandbox guard's grammar (C10). Identifiers resolve
// only against the fixed constant allow-list and the caller's task
// context — never against arbitrary names.
func EvalExpr(_ context.Context, _ *Deps, input map[string]any, callCtx map[string]any) (map[string]any, error) {
	expr, ok := input["expression"].(string)
	if !ok || expr == "" {
		return nil, ghosterr.New(ghosterr.BadRequest, "expression is required")
	}

	context := make(map[string]float64)
	if raw, ok := input["context"].(map[string]any); ok {
		mergeNumericContext(context, raw)
	}
	mergeNumericContext(context, callCtx)

	result, err := sandbox.EvalExpr(expr, context)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

func mergeNumericContext(dst map[string]float64, src map[string]any) {
	for k, v := range src {
		switch n := v.(type) {
		case float64:
			dst[k] = n
		case int:
			dst[k] = float64(n)
		case bool:
			if n {
				dst[k] = 1
			} else {
				dst[k] = 0
			}
		}
	}
}
