// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sandbox is the shared confinement helper used by every
// filesystem handler and by the restricted expression evaluator.
package sandbox

import (
	"path/filepath"
	"strings"

	"github.com/ghostrun/ghostd/internal/ghosterr"
)

// Guard confines filesystem access to a single root prefix.
type Guard struct {
	root string
}

// NewGuard builds a Guard rooted at root. root is resolved to an absolute
// path at construction time.
func NewGuard(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Guard{root: filepath.Clean(abs)}, nil
}

// Root returns the guard's absolute root.
func (g *Guard) Root() string { return g.root }

// SafePath resolves input against the guard's root, normalising away
// ".", "..", and doubled separators, and rejects anything that escapes
// the root prefix. Every filesystem handler funnels through this.
func (g *Guard) SafePath(input string) (string, error) {
	joined := filepath.Join(g.root, filepath.FromSlash(input))
	cleaned := filepath.Clean(joined)

	rel, err := filepath.Rel(g.root, cleaned)
	if err != nil {
		return "", ghosterr.New(ghosterr.PathEscape, "path does not resolve under sandbox root")
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", ghosterr.Newf(ghosterr.PathEscape, "path %q escapes sandbox root", input)
	}
	return cleaned, nil
}
