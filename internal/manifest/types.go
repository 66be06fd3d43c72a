// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest loads and validates a tape's manifest file, producing
// an immutable Descriptor.
package manifest

// Capability is one of the declared capabilities a tape may advertise.
type Capability string

const (
	CapabilityUI      Capability = "ui"
	CapabilityAPI     Capability = "api"
	CapabilityAgents  Capability = "agents"
	CapabilityDataset Capability = "dataset"
)

// FilesystemPermission gates how much of the host filesystem a tape may
// touch through the sandbox guard.
type FilesystemPermission string

const (
	FSReadOnly  FilesystemPermission = "read-only"
	FSReadWrite FilesystemPermission = "read-write"
	FSNone      FilesystemPermission = "none"
)

// NetworkPermission gates whether a tape may be the target of outbound
// network calls through the inter-tape proxy.
type NetworkPermission string

const (
	NetNone     NetworkPermission = "none"
	NetLoopback NetworkPermission = "loopback"
	NetAny      NetworkPermission = "any"
)

// Permissions is the declared permission set for a tape.
type Permissions struct {
	Filesystem FilesystemPermission `json:"filesystem"`
	Network    NetworkPermission    `json:"network"`
	Shell      bool                 `json:"shell"`
}

// Agent is one entry in a tape's declared agent list.
type Agent struct {
	ID     string   `json:"id"`
	Skills []string `json:"skills"`
}

// EndpointKind classifies how an API endpoint string resolves.
type EndpointKind string

const (
	EndpointLocalHandler EndpointKind = "local-handler"
	EndpointRemoteHTTP   EndpointKind = "remote-http"
)

// Endpoint is a tape's classified API endpoint.
type Endpoint struct {
	Kind EndpointKind
	Name string // handler name when Kind == EndpointLocalHandler
	URL  string // absolute URL when Kind == EndpointRemoteHTTP
}

// Metadata is optional free-form descriptive information.
type Metadata struct {
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Descriptor is the immutable, validated record of a tape's manifest.
//
// Invariants (enforced by Load, not by this type): version is
// MAJOR.MINOR.PATCH with non-negative integers; UI entry path resolves
// inside the tape root; when the API endpoint is a local handler, that
// handler must be registered. Identifier uniqueness across the registry
// is checked by the registry's Scan, not by Load.
type Descriptor struct {
	Identifier   string
	DisplayName  string
	Version      Version
	Root         string
	UIEntry      string
	APIEndpoint  *Endpoint
	Agents       []Agent
	Capabilities []Capability
	Permissions  Permissions
	Metadata     *Metadata
}

// Version is a parsed MAJOR.MINOR.PATCH version.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return itoa(v.Major) + "." + itoa(v.Minor) + "." + itoa(v.Patch)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// rawManifest is the on-disk JSON shape. Unknown extra fields are
// ignored for forward compatibility — that's the default behaviour of
// encoding/json when decoding into a named struct.
type rawManifest struct {
	Identifier  string      `json:"identifier" validate:"required"`
	DisplayName string      `json:"display_name" validate:"required"`
	Version     string      `json:"version" validate:"required"`
	UIEntry     string      `json:"ui_entry" validate:"required"`
	APIEndpoint string      `json:"api_endpoint,omitempty"`
	Agents      []Agent     `json:"agents,omitempty"`
	Capabilities []string   `json:"capabilities,omitempty"`
	Permissions rawPerms    `json:"permissions,omitempty"`
	Metadata    *Metadata   `json:"metadata,omitempty"`
}

type rawPerms struct {
	Filesystem string `json:"filesystem,omitempty"`
	Network    string `json:"network,omitempty"`
	Shell      bool   `json:"shell,omitempty"`
}
