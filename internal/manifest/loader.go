// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ghostrun/ghostd/internal/ghosterr"
)

// ManifestFilename is the file every tape must carry at its root.
const ManifestFilename = "manifest.json"

var identifierPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

var validate = validator.New()

// HandlerLookup reports whether name is a registered C4 handler. The
// loader uses it to classify and validate a local-handler API endpoint.
type HandlerLookup func(name string) bool

// Load reads and validates the manifest at root, returning an immutable
// Descriptor or the first validation failure encountered.
//
// # Failure
//
//   - manifest-missing: no manifest file at root.
//   - manifest-parse: the file is not valid JSON.
//   - manifest-invalid-field: a required field is absent or malformed.
//   - manifest-escape: the UI entry resolves outside root.
func Load(root string, handlerRegistered HandlerLookup) (Descriptor, error) {
	path := filepath.Join(root, ManifestFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Descriptor{}, ghosterr.New(ghosterr.ManifestMissing, "no manifest.json at tape root")
		}
		return Descriptor{}, ghosterr.Newf(ghosterr.ManifestParse, "reading manifest: %v", err)
	}

	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, ghosterr.Newf(ghosterr.ManifestParse, "parsing manifest: %v", err)
	}
	if err := validate.Struct(raw); err != nil {
		return Descriptor{}, ghosterr.Newf(ghosterr.ManifestInvalidField, "%v", err)
	}

	if !identifierPattern.MatchString(raw.Identifier) {
		return Descriptor{}, ghosterr.Newf(ghosterr.ManifestInvalidField, "identifier %q must be lowercase alphanumeric with dashes", raw.Identifier)
	}

	version, err := parseVersion(raw.Version)
	if err != nil {
		return Descriptor{}, ghosterr.Newf(ghosterr.ManifestInvalidField, "version %q: %v", raw.Version, err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Descriptor{}, ghosterr.Newf(ghosterr.ManifestInvalidField, "resolving tape root: %v", err)
	}
	uiAbs := filepath.Clean(filepath.Join(absRoot, raw.UIEntry))
	if !withinRoot(uiAbs, absRoot) {
		return Descriptor{}, ghosterr.Newf(ghosterr.ManifestEscape, "ui_entry %q resolves outside tape root", raw.UIEntry)
	}

	var endpoint *Endpoint
	if raw.APIEndpoint != "" {
		ep, err := classifyEndpoint(raw.APIEndpoint, handlerRegistered)
		if err != nil {
			return Descriptor{}, err
		}
		endpoint = ep
	}

	caps := make([]Capability, 0, len(raw.Capabilities))
	for _, c := range raw.Capabilities {
		caps = append(caps, Capability(c))
	}

	perms := Permissions{
		Filesystem: FilesystemPermission(orDefault(raw.Permissions.Filesystem, string(FSNone))),
		Network:    NetworkPermission(orDefault(raw.Permissions.Network, string(NetNone))),
		Shell:      raw.Permissions.Shell,
	}

	return Descriptor{
		Identifier:   raw.Identifier,
		DisplayName:  raw.DisplayName,
		Version:      version,
		Root:         absRoot,
		UIEntry:      raw.UIEntry,
		APIEndpoint:  endpoint,
		Agents:       raw.Agents,
		Capabilities: caps,
		Permissions:  perms,
		Metadata:     raw.Metadata,
	}, nil
}

// classifyEndpoint decides whether a manifest's api_endpoint string is a
// local handler name or a remote HTTP URL. An endpoint that parses as
// neither a bare handler-name token nor an absolute URL is ambiguous and
// rejected.
func classifyEndpoint(raw string, handlerRegistered HandlerLookup) (*Endpoint, error) {
	if u, err := url.ParseRequestURI(raw); err == nil && u.IsAbs() && (u.Scheme == "http" || u.Scheme == "https") {
		return &Endpoint{Kind: EndpointRemoteHTTP, URL: raw}, nil
	}

	if isHandlerToken(raw) {
		if handlerRegistered != nil && !handlerRegistered(raw) {
			return nil, ghosterr.Newf(ghosterr.ManifestInvalidField, "api_endpoint %q names an unregistered handler", raw)
		}
		return &Endpoint{Kind: EndpointLocalHandler, Name: raw}, nil
	}

	return nil, ghosterr.Newf(ghosterr.ManifestInvalidField, "api_endpoint %q is neither a handler name nor an absolute URL", raw)
}

var handlerTokenPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func isHandlerToken(s string) bool {
	return handlerTokenPattern.MatchString(s)
}

func parseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, ghosterr.New(ghosterr.ManifestInvalidField, "expected MAJOR.MINOR.PATCH")
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, ghosterr.New(ghosterr.ManifestInvalidField, "version components must be non-negative integers")
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func withinRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
