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
	"math/rand"
	"strconv"

	"github.com/ghostrun/ghostd/internal/ghosterr"
)

// DefaultStackDepthCap bounds recursion-free stack growth. Configurable;
// there is no recursion limit beyond this cap because the VM has no
// call-with-return-address instruction.
const DefaultStackDepthCap = 10000

// VM is the shared evaluator for both the bracketed-token front end and
// the structured-record control-flow front end.
//
// # Thread Safety
//
// A VM is not safe for concurrent use; callers that need parallelism
// construct one VM per concurrent program (programs run synchronously on
// the calling worker, per the concurrency model).
type VM struct {
	stack          []Value
	vars           map[string]Value
	functions      map[string][]Token
	currentFn      string
	stackDepthCap  int
}

// New returns a VM with empty stack, variables, and function table.
func New() *VM {
	return &VM{
		vars:          make(map[string]Value),
		functions:     make(map[string][]Token),
		stackDepthCap: DefaultStackDepthCap,
	}
}

// Reset clears the stack, variables, and current-function slot but
// preserves registered function bodies recorded before the reset.
func (vm *VM) Reset() {
	vm.stack = nil
	vm.vars = make(map[string]Value)
	vm.currentFn = ""
}

// Top returns the value on top of the stack, or Null if the stack is
// empty.
func (vm *VM) Top() Value {
	if len(vm.stack) == 0 {
		return Null()
	}
	return vm.stack[len(vm.stack)-1]
}

// Variables returns a defensive copy of the current variable bindings.
func (vm *VM) Variables() map[string]Value {
	out := make(map[string]Value, len(vm.vars))
	for k, v := range vm.vars {
		out[k] = v
	}
	return out
}

func (vm *VM) push(v Value) error {
	if len(vm.stack) >= vm.stackDepthCap {
		return ghosterr.New(ghosterr.StackUnderflow, "stack depth cap exceeded")
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (Value, error) {
	if len(vm.stack) == 0 {
		return Value{}, ghosterr.New(ghosterr.StackUnderflow, "pop on empty stack")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

// Execute runs a token-stream program to completion and returns the
// top-of-stack value (Null if the stack ends empty).
func (vm *VM) Execute(program []Token) (Value, error) {
	for _, tok := range program {
		if err := vm.step(tok); err != nil {
			return Value{}, err
		}
	}
	return vm.Top(), nil
}

// step executes one token and, while a function body is being recorded
// (between fn-begin and fn-end), also appends it to that body so it can
// be replayed later via Call.
func (vm *VM) step(tok Token) error {
	if vm.currentFn != "" && tok.Op != OpFnEnd {
		vm.functions[vm.currentFn] = append(vm.functions[vm.currentFn], tok)
	}

	switch tok.Op {
	case OpFnBegin:
		vm.currentFn = tok.Arg
		if _, ok := vm.functions[tok.Arg]; !ok {
			vm.functions[tok.Arg] = nil
		}
		return nil

	case OpFnEnd:
		vm.currentFn = ""
		return nil

	case OpPush:
		v, err := parseLiteral(tok.Arg)
		if err != nil {
			return err
		}
		return vm.push(v)

	case OpStore:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.vars[tok.Arg] = v
		return nil

	case OpLoad:
		v, ok := vm.vars[tok.Arg]
		if !ok {
			return ghosterr.Newf(ghosterr.UndefinedVariable, "undefined variable %q", tok.Arg)
		}
		return vm.push(v)

	case OpOp:
		return vm.execOp(tok.Arg)

	default:
		return ghosterr.Newf(ghosterr.UnknownOperation, "unknown opcode %q", tok.Op)
	}
}

// Call replays a previously recorded function body against the current
// VM state (shared stack and variables — the VM has no call stack of its
// own, matching the "no closures, no recursion limits beyond the stack
// depth cap" non-goal).
func (vm *VM) Call(name string) (Value, error) {
	body, ok := vm.functions[name]
	if !ok {
		return Value{}, ghosterr.Newf(ghosterr.UndefinedVariable, "undefined function %q", name)
	}
	return vm.Execute(body)
}

func (vm *VM) execOp(kind string) error {
	switch kind {
	case "not":
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(Bool(!v.Truthy()))
	case "print":
		_, err := vm.pop()
		return err
	case "rand":
		return vm.push(Number(rand.Float64()))
	}

	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}

	switch kind {
	case "add", "sub", "mul", "div":
		an, aok := a.AsNumber()
		bn, bok := b.AsNumber()
		if !aok || !bok {
			return ghosterr.Newf(ghosterr.UnknownOperation, "operands are not numeric for %q", kind)
		}
		switch kind {
		case "add":
			return vm.push(Number(an + bn))
		case "sub":
			return vm.push(Number(an - bn))
		case "mul":
			return vm.push(Number(an * bn))
		case "div":
			if bn == 0 {
				return ghosterr.New(ghosterr.DivisionByZero, "division by zero")
			}
			return vm.push(Number(an / bn))
		}
	case "gt", "lt", "gte", "lte":
		an, aok := a.AsNumber()
		bn, bok := b.AsNumber()
		if !aok || !bok {
			return ghosterr.Newf(ghosterr.UnknownOperation, "operands are not numeric for %q", kind)
		}
		switch kind {
		case "gt":
			return vm.push(Bool(an > bn))
		case "lt":
			return vm.push(Bool(an < bn))
		case "gte":
			return vm.push(Bool(an >= bn))
		case "lte":
			return vm.push(Bool(an <= bn))
		}
	case "eq":
		return vm.push(Bool(a.Equal(b)))
	case "neq":
		return vm.push(Bool(!a.Equal(b)))
	case "and":
		return vm.push(Bool(a.Truthy() && b.Truthy()))
	case "or":
		return vm.push(Bool(a.Truthy() || b.Truthy()))
	}

	return ghosterr.Newf(ghosterr.UnknownOperation, "unknown operation %q", kind)
}

func parseLiteral(s string) (Value, error) {
	switch {
	case s == "true":
		return Bool(true), nil
	case s == "false":
		return Bool(false), nil
	case len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"':
		return String(s[1 : len(s)-1]), nil
	default:
		if n, ok := parseFloat(s); ok {
			return Number(n), nil
		}
		return String(s), nil
	}
}

func parseFloat(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
