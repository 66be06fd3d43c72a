// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ghosterr defines the closed set of error kinds that may cross
// the request envelope boundary, and a typed error carrying one of them.
//
// # Description
//
// Every failure that reaches an HTTP client is tagged with one of these
// kinds. Internal functions return ordinary Go errors; only the boundary
// (router, HTTP surface) needs to know the closed Kind set, via As/errors.As
// on *Error.
package ghosterr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of error categories that may appear in a
// result envelope's "error" field.
type Kind string

const (
	BadRequest           Kind = "bad-request"
	HandlerUnknown       Kind = "handler-unknown"
	TapeNotFound         Kind = "tape-not-found"
	TapeBusy             Kind = "tape-busy"
	TapePermissionDenied Kind = "tape-permission-denied"
	TapeAlreadyRegistered Kind = "tape-already-registered"

	ManifestMissing      Kind = "manifest-missing"
	ManifestParse        Kind = "manifest-parse"
	ManifestInvalidField Kind = "manifest-invalid-field"
	ManifestEscape       Kind = "manifest-escape"

	PathEscape   Kind = "path-escape"
	PathNotFound Kind = "path-not-found"

	StackUnderflow    Kind = "stack-underflow"
	UndefinedVariable Kind = "undefined-variable"
	UnknownOperation  Kind = "unknown-operation"
	DivisionByZero    Kind = "division-by-zero"
	LoopLimit         Kind = "loop-limit"

	ShardNotFound      Kind = "shard-not-found"
	EngineError        Kind = "engine-error"
	ScheduleExhausted  Kind = "schedule-exhausted"

	NoJudgesOnline  Kind = "no-judges-online"
	NoQuorum        Kind = "no-quorum"
	DeadlineExceeded Kind = "deadline-exceeded"

	HopLimitExceeded Kind = "hop-limit-exceeded"
	BackendError     Kind = "backend-error"

	ExpressionRejected Kind = "expression-rejected"

	Internal Kind = "internal"
)

// Error is a typed error carrying a Kind plus a human prose message and
// optional structured context, matching the failure-response shape in
// the external interface contract.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithContext attaches structured context to an error and returns it for
// chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Wrap converts an arbitrary error into a *Error of the given kind,
// preserving the original message. If err is already a *Error, it is
// returned unchanged.
func Wrap(err error, kind Kind) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{Kind: kind, Message: err.Error()}
}

// KindOf extracts the Kind from err, defaulting to Internal when err is
// not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
