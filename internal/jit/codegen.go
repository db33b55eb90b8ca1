package jit

import (
	"fmt"

	"mira/internal/tac"
)

// Env is the live variable binding surface a compiled region reads and
// writes. A Context satisfies it.
type Env interface {
	Get(name string) tac.Value
	Set(name string, v tac.Value)
}

// NativeFunction is the callable produced for one region. The artifact is
// name-free: it works over canonical slot indices, and slots supplies the
// caller's concrete name for each index, in tac.SlotNames order for a
// region with the artifact's fingerprint. That indirection is what lets a
// single artifact serve every consistent renaming of its shape.
//
// Invoking it must be observationally identical to interpreting the
// region's instructions: same final bindings, same script-level error,
// with control falling out just past the region's end. The int result is
// the number of loop iterations completed (at least 1), so callers can
// account compiled time in the same per-iteration units the interpreter
// is profiled in.
type NativeFunction func(env Env, slots []string) (int, error)

// CodeGenerator turns a TAC region (jump targets region-relative) into a
// NativeFunction. Implementations reject regions they cannot express by
// returning a CompileError.
type CodeGenerator interface {
	Compile(instrs []tac.Instruction, entryName string) (NativeFunction, error)
}

// CompileError means the code generator refused or failed to compile a
// region. It is recovered at the dispatcher boundary, never propagated to
// the script.
type CompileError struct {
	Entry  string
	Index  int // region-relative instruction index, -1 when not tied to one
	Reason string
}

func (e *CompileError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("compile %s: instruction %d: %s", e.Entry, e.Index, e.Reason)
	}
	return fmt.Sprintf("compile %s: %s", e.Entry, e.Reason)
}

func compileErrorf(entry string, index int, format string, args ...interface{}) *CompileError {
	return &CompileError{Entry: entry, Index: index, Reason: fmt.Sprintf(format, args...)}
}
