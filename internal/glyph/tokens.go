// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package glyph

import (
	"strings"

	"github.com/ghostrun/ghostd/internal/ghosterr"
)

// Opcode names recognised by the bracketed-token front end.
const (
	OpFnBegin = "fn-begin"
	OpPush    = "push"
	OpStore   = "store"
	OpLoad    = "load"
	OpOp      = "op"
	OpFnEnd   = "fn-end"
)

// Token is one bracketed instruction: "[op arg]".
type Token struct {
	Op  string
	Arg string
}

// ParseTokens splits a source string of the form "[op1 arg1][op2 arg2]..."
// into Tokens. "[fn-end]" has no argument.
func ParseTokens(source string) ([]Token, error) {
	var toks []Token
	i := 0
	for i < len(source) {
		if source[i] != '[' {
			i++
			continue
		}
		end := strings.IndexByte(source[i:], ']')
		if end < 0 {
			return nil, ghosterr.New(ghosterr.BadRequest, "unterminated token, missing ']'")
		}
		body := strings.TrimSpace(source[i+1 : i+end])
		i += end + 1

		if body == "" {
			return nil, ghosterr.New(ghosterr.BadRequest, "empty token")
		}
		parts := strings.SplitN(body, " ", 2)
		op := parts[0]
		arg := ""
		if len(parts) == 2 {
			arg = strings.TrimSpace(parts[1])
		}
		toks = append(toks, Token{Op: op, Arg: arg})
	}
	return toks, nil
}
