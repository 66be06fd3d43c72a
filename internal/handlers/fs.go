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
	"encoding/json"
	"io"
	"os"

	"github.com/ghostrun/ghostd/internal/ghosterr"
)

func inputPath(input map[string]any) (string, error) {
	p, ok := input["path"].(string)
	if !ok || p == "" {
		return "", ghosterr.New(ghosterr.BadRequest, "path is required")
	}
	return p, nil
}

// FSRead reads a file's content confined by the sandbox root.
func FSRead(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	rel, err := inputPath(input)
	if err != nil {
		return nil, err
	}
	abs, err := deps.Sandbox.SafePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ghosterr.Newf(ghosterr.PathNotFound, "no such file: %s", rel)
		}
		return nil, ghosterr.Newf(ghosterr.Internal, "reading file: %v", err)
	}
	return map[string]any{"path": rel, "content": string(data)}, nil
}

// FSWrite writes content to a file confined by the sandbox root,
// creating it if absent.
func FSWrite(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	rel, err := inputPath(input)
	if err != nil {
		return nil, err
	}
	abs, err := deps.Sandbox.SafePath(rel)
	if err != nil {
		return nil, err
	}
	content, _ := input["content"].(string)
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return nil, ghosterr.Newf(ghosterr.Internal, "writing file: %v", err)
	}
	return map[string]any{"path": rel, "bytes": len(content)}, nil
}

// FSList lists the entries of a directory confined by the sandbox root.
func FSList(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	rel, err := inputPath(input)
	if err != nil {
		return nil, err
	}
	abs, err := deps.Sandbox.SafePath(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ghosterr.Newf(ghosterr.PathNotFound, "no such directory: %s", rel)
		}
		return nil, ghosterr.Newf(ghosterr.Internal, "listing directory: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return map[string]any{"path": rel, "entries": names}, nil
}

// FSExists reports whether path exists, confined by the sandbox root.
func FSExists(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	rel, err := inputPath(input)
	if err != nil {
		return nil, err
	}
	abs, err := deps.Sandbox.SafePath(rel)
	if err != nil {
		return nil, err
	}
	_, statErr := os.Stat(abs)
	return map[string]any{"path": rel, "exists": statErr == nil}, nil
}

// FSDelete removes a file or empty directory confined by the sandbox
// root.
func FSDelete(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	rel, err := inputPath(input)
	if err != nil {
		return nil, err
	}
	abs, err := deps.Sandbox.SafePath(rel)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, ghosterr.Newf(ghosterr.PathNotFound, "no such path: %s", rel)
		}
		return nil, ghosterr.Newf(ghosterr.Internal, "deleting path: %v", err)
	}
	return map[string]any{"path": rel, "deleted": true}, nil
}

// FSCopy copies a file, with both source and destination confined by
// the sandbox root.
func FSCopy(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	src, ok := input["path"].(string)
	if !ok || src == "" {
		return nil, ghosterr.New(ghosterr.BadRequest, "path (source) is required")
	}
	dst, ok := input["destination"].(string)
	if !ok || dst == "" {
		return nil, ghosterr.New(ghosterr.BadRequest, "destination is required")
	}

	srcAbs, err := deps.Sandbox.SafePath(src)
	if err != nil {
		return nil, err
	}
	dstAbs, err := deps.Sandbox.SafePath(dst)
	if err != nil {
		return nil, err
	}

	in, err := os.Open(srcAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ghosterr.Newf(ghosterr.PathNotFound, "no such file: %s", src)
		}
		return nil, ghosterr.Newf(ghosterr.Internal, "opening source: %v", err)
	}
	defer in.Close()

	out, err := os.Create(dstAbs)
	if err != nil {
		return nil, ghosterr.Newf(ghosterr.Internal, "creating destination: %v", err)
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return nil, ghosterr.Newf(ghosterr.Internal, "copying: %v", err)
	}
	return map[string]any{"path": src, "destination": dst, "bytes": n}, nil
}

// FSJSONRead reads and decodes a JSON file confined by the sandbox root.
func FSJSONRead(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	rel, err := inputPath(input)
	if err != nil {
		return nil, err
	}
	abs, err := deps.Sandbox.SafePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ghosterr.Newf(ghosterr.PathNotFound, "no such file: %s", rel)
		}
		return nil, ghosterr.Newf(ghosterr.Internal, "reading file: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, ghosterr.Newf(ghosterr.BadRequest, "invalid JSON in %s: %v", rel, err)
	}
	return map[string]any{"path": rel, "content": decoded}, nil
}

// FSJSONWrite encodes and writes a JSON file confined by the sandbox
// root.
func FSJSONWrite(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	rel, err := inputPath(input)
	if err != nil {
		return nil, err
	}
	abs, err := deps.Sandbox.SafePath(rel)
	if err != nil {
		return nil, err
	}
	encoded, err := json.MarshalIndent(input["content"], "", "  ")
	if err != nil {
		return nil, ghosterr.Newf(ghosterr.BadRequest, "content is not JSON-encodable: %v", err)
	}
	if err := os.WriteFile(abs, encoded, 0o644); err != nil {
		return nil, ghosterr.Newf(ghosterr.Internal, "writing file: %v", err)
	}
	return map[string]any{"path": rel, "bytes": len(encoded)}, nil
}
