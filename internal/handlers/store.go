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
	"fmt"

	"github.com/ghostrun/ghostd/internal/ghosterr"
)

// StoreHandler implements the shared process-wide key-value map:
// action in {set, get, delete, list, clear}.
func StoreHandler(_ context.Context, deps *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	action, _ := input["action"].(string)
	switch action {
	case "set":
		key, ok := input["key"].(string)
		if !ok || key == "" {
			return nil, ghosterr.New(ghosterr.BadRequest, "set requires a string key")
		}
		deps.Store.Set(key, input["value"])
		return map[string]any{"ok": true, "key": key}, nil

	case "get":
		key, ok := input["key"].(string)
		if !ok || key == "" {
			return nil, ghosterr.New(ghosterr.BadRequest, "get requires a string key")
		}
		entry, found := deps.Store.Get(key)
		if !found {
			return map[string]any{"ok": false, "key": key}, nil
		}
		return map[string]any{"ok": true, "key": key, "value": entry.Value, "written_at": entry.WrittenAt}, nil

	case "delete":
		key, ok := input["key"].(string)
		if !ok || key == "" {
			return nil, ghosterr.New(ghosterr.BadRequest, "delete requires a string key")
		}
		existed := deps.Store.Delete(key)
		return map[string]any{"ok": existed, "key": key}, nil

	case "list":
		return map[string]any{"ok": true, "keys": deps.Store.Keys()}, nil

	case "clear":
		deps.Store.Clear()
		return map[string]any{"ok": true}, nil

	default:
		return nil, ghosterr.Newf(ghosterr.BadRequest, "unknown store action %v", fmt.Sprint(action))
	}
}
