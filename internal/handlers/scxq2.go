// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// SCXQ2 is formalised here as a deterministic codec rather than kept as
// the source's naive regex substitution (whose round-trip properties are
// unclear when keys collide with payload data): a fixed envelope around
// zstd, so decode(encode(x)) == x holds unconditionally.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/binary"

	"github.com/klauspost/compress/zstd"

	"github.com/ghostrun/ghostd/internal/ghosterr"
)

const scxq2Magic = 0x53_43_32_00 // "SC2\0"

var (
	sharedEncoder *zstd.Encoder
	sharedDecoder *zstd.Decoder
)

func init() {
	sharedEncoder, _ = zstd.NewWriter(nil)
	sharedDecoder, _ = zstd.NewReader(nil)
}

// scxq2Encode wraps compressed bytes with a magic prefix and original
// length so decode never has to guess.
func scxq2Encode(data []byte) []byte {
	compressed := sharedEncoder.EncodeAll(data, nil)
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], scxq2Magic)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(data)))
	return append(header, compressed...)
}

func scxq2Decode(encoded []byte) ([]byte, int, error) {
	if len(encoded) < 8 {
		return nil, 0, ghosterr.New(ghosterr.BadRequest, "scxq2 payload too short")
	}
	magic := binary.BigEndian.Uint32(encoded[0:4])
	if magic != scxq2Magic {
		return nil, 0, ghosterr.New(ghosterr.BadRequest, "not a scxq2 payload")
	}
	originalLen := int(binary.BigEndian.Uint32(encoded[4:8]))
	decoded, err := sharedDecoder.DecodeAll(encoded[8:], make([]byte, 0, originalLen))
	if err != nil {
		return nil, 0, ghosterr.Newf(ghosterr.BadRequest, "scxq2 decode failed: %v", err)
	}
	return decoded, originalLen, nil
}

// SCXQ2Encode compresses input["data"] (a string) and returns it
// base64-encoded.
func SCXQ2Encode(_ context.Context, _ *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	raw, ok := input["data"].(string)
	if !ok {
		return nil, ghosterr.New(ghosterr.BadRequest, "data (string) is required")
	}
	encoded := scxq2Encode([]byte(raw))
	return map[string]any{
		"encoded":          base64.StdEncoding.EncodeToString(encoded),
		"original_size":    len(raw),
		"compressed_size":  len(encoded),
	}, nil
}

// SCXQ2Decode reverses SCXQ2Encode. decode(encode(x)) == x for every
// valid x, and encode(decode(c)) round-trips stably for every valid c.
func SCXQ2Decode(_ context.Context, _ *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	encodedStr, ok := input["encoded"].(string)
	if !ok {
		return nil, ghosterr.New(ghosterr.BadRequest, "encoded (string) is required")
	}
	raw, err := base64.StdEncoding.DecodeString(encodedStr)
	if err != nil {
		return nil, ghosterr.Newf(ghosterr.BadRequest, "invalid base64: %v", err)
	}
	decoded, originalLen, err := scxq2Decode(raw)
	if err != nil {
		return nil, err
	}
	return map[string]any{"data": string(decoded), "original_size": originalLen}, nil
}

// SCXQ2Stats reports compressed size, original size, and ratio without
// materialising the decoded form.
func SCXQ2Stats(_ context.Context, _ *Deps, input map[string]any, _ map[string]any) (map[string]any, error) {
	raw, ok := input["data"].(string)
	if !ok {
		return nil, ghosterr.New(ghosterr.BadRequest, "data (string) is required")
	}
	encoded := scxq2Encode([]byte(raw))
	ratio := 1.0
	if len(raw) > 0 {
		ratio = float64(len(encoded)) / float64(len(raw))
	}
	return map[string]any{
		"original_size":   len(raw),
		"compressed_size": len(encoded),
		"ratio":           ratio,
	}, nil
}
