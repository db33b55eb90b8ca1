package jit

import (
	"mira/internal/errors"
	"mira/internal/interp"
	"mira/internal/tac"
)

// ClosureCompiler is the default code generator. It compiles a region into
// a jump-threaded array of Go closures over a flat slot frame: operands are
// resolved to canonical slot indices (tac.SlotNames order) at compile time,
// so the compiled body does no map lookups, and specialized operators run
// with no type dispatch at all. The artifact never captures the compiled
// region's slot names; the caller binds names at invocation, so one
// artifact serves every renaming of the shape. Generic operators delegate
// to the interpreter's own evaluator, which is what pins the compiled path
// to interpreted semantics.
//
// Script errors escape with region-relative line numbers; the dispatcher
// rebases them, since one compiled region serves every context and line
// range that shares its fingerprint.
type ClosureCompiler struct{}

func NewClosureCompiler() *ClosureCompiler { return &ClosureCompiler{} }

// step executes one compiled instruction and returns the next region-
// relative pc.
type step func(fr []tac.Value) (int, error)

// loader yields an operand's value from the frame.
type loader func(fr []tac.Value) tac.Value

func (c *ClosureCompiler) Compile(instrs []tac.Instruction, entryName string) (NativeFunction, error) {
	if len(instrs) == 0 {
		return nil, compileErrorf(entryName, -1, "empty region")
	}

	f := newFrameLayout(instrs)
	steps := make([]step, len(instrs))

	for i, in := range instrs {
		s, err := c.compileOne(f, in, i, len(instrs), entryName)
		if err != nil {
			return nil, err
		}
		steps[i] = s
	}

	size := f.size()
	return func(env Env, slots []string) (int, error) {
		if len(slots) != size {
			return 0, compileErrorf(entryName, -1,
				"slot binding has %d names, frame needs %d", len(slots), size)
		}
		fr := make([]tac.Value, size)
		for i, name := range slots {
			fr[i] = env.Get(name)
		}

		pc := 0
		iterations := 0
		var err error
		for pc < len(steps) && err == nil {
			var next int
			next, err = steps[pc](fr)
			if err == nil && next <= pc {
				// A backward transfer closes one loop iteration.
				iterations++
			}
			pc = next
		}
		if iterations == 0 {
			iterations = 1
		}

		// The interpreter would have committed every write up to the
		// failure point, so the frame is flushed on both exits.
		for i, name := range slots {
			env.Set(name, fr[i])
		}
		return iterations, err
	}, nil
}

// frameLayout maps slot names to canonical frame indices. The mapping is
// fixed up front from tac.SlotNames so that the indices agree with the
// fingerprint's canonical numbering rather than with compilation order.
type frameLayout struct {
	indexes map[string]int
}

func newFrameLayout(instrs []tac.Instruction) *frameLayout {
	names := tac.SlotNames(instrs)
	f := &frameLayout{indexes: make(map[string]int, len(names))}
	for i, name := range names {
		f.indexes[name] = i
	}
	return f
}

func (f *frameLayout) size() int { return len(f.indexes) }

func (f *frameLayout) slot(name string) int { return f.indexes[name] }

func (f *frameLayout) load(o tac.Operand) loader {
	switch o.Kind {
	case tac.ConstOperand:
		v := o.Const
		return func([]tac.Value) tac.Value { return v }
	case tac.NameOperand, tac.TempOperand:
		i := f.slot(o.Name)
		return func(fr []tac.Value) tac.Value { return fr[i] }
	default:
		return func([]tac.Value) tac.Value { return tac.Null }
	}
}

func (c *ClosureCompiler) compileOne(f *frameLayout, in tac.Instruction, i, n int, entry string) (step, error) {
	next := i + 1

	switch in.Op {
	case tac.OpLabel:
		return func([]tac.Value) (int, error) { return next, nil }, nil

	case tac.OpJump, tac.OpJumpIfNot:
		target, ok := constTarget(in.A)
		if !ok {
			return nil, compileErrorf(entry, i, "computed jump target")
		}
		// A target of n is the fall-out-of-region exit; anything past it
		// would land where the dispatcher does not expect control.
		if target < 0 || target > n {
			return nil, compileErrorf(entry, i, "jump target %d escapes region", target)
		}
		if in.Op == tac.OpJump {
			return func([]tac.Value) (int, error) { return target, nil }, nil
		}
		cond := f.load(in.B)
		return func(fr []tac.Value) (int, error) {
			if !cond(fr).Truthy() {
				return target, nil
			}
			return next, nil
		}, nil

	case tac.OpCall:
		return nil, compileErrorf(entry, i, "call instruction is interpreter-only")

	case tac.OpAssign:
		src := f.load(in.A)
		dst := f.slot(in.Result.Name)
		return func(fr []tac.Value) (int, error) {
			fr[dst] = src(fr)
			return next, nil
		}, nil

	case tac.OpNot:
		src := f.load(in.A)
		dst := f.slot(in.Result.Name)
		return func(fr []tac.Value) (int, error) {
			fr[dst] = tac.Bool(!src(fr).Truthy())
			return next, nil
		}, nil

	// Specialized operators compile to direct operations on the frame.
	case tac.OpNumAdd:
		return c.numeric(f, in, next, func(a, b float64) float64 { return a + b }), nil
	case tac.OpNumSub:
		return c.numeric(f, in, next, func(a, b float64) float64 { return a - b }), nil
	case tac.OpNumMul:
		return c.numeric(f, in, next, func(a, b float64) float64 { return a * b }), nil

	case tac.OpNumDiv:
		// Specialization proves the operand types, never that the divisor
		// is non-zero. The check stays.
		a, b := f.load(in.A), f.load(in.B)
		dst := f.slot(in.Result.Name)
		return func(fr []tac.Value) (int, error) {
			bv := b(fr).Num
			if bv == 0 {
				return 0, errors.DivisionByZero(i)
			}
			fr[dst] = tac.Num(a(fr).Num / bv)
			return next, nil
		}, nil

	case tac.OpNumEqual:
		a, b := f.load(in.A), f.load(in.B)
		dst := f.slot(in.Result.Name)
		return func(fr []tac.Value) (int, error) {
			fr[dst] = tac.Bool(a(fr).Num == b(fr).Num)
			return next, nil
		}, nil

	case tac.OpNumLess:
		a, b := f.load(in.A), f.load(in.B)
		dst := f.slot(in.Result.Name)
		return func(fr []tac.Value) (int, error) {
			fr[dst] = tac.Bool(a(fr).Num < b(fr).Num)
			return next, nil
		}, nil

	case tac.OpStrConcat:
		a, b := f.load(in.A), f.load(in.B)
		dst := f.slot(in.Result.Name)
		return func(fr []tac.Value) (int, error) {
			fr[dst] = tac.Str(a(fr).Str + b(fr).Str)
			return next, nil
		}, nil

	case tac.OpStrEqual:
		a, b := f.load(in.A), f.load(in.B)
		dst := f.slot(in.Result.Name)
		return func(fr []tac.Value) (int, error) {
			fr[dst] = tac.Bool(a(fr).Str == b(fr).Str)
			return next, nil
		}, nil

	default:
		// Generic operators run through the interpreter's evaluator, with
		// precompiled operand access.
		op := in.Op
		a, b := f.load(in.A), f.load(in.B)
		dst := f.slot(in.Result.Name)
		return func(fr []tac.Value) (int, error) {
			v, err := interp.EvalBinary(op, a(fr), b(fr), i)
			if err != nil {
				return 0, err
			}
			fr[dst] = v
			return next, nil
		}, nil
	}
}

func (c *ClosureCompiler) numeric(f *frameLayout, in tac.Instruction, next int, fn func(a, b float64) float64) step {
	a, b := f.load(in.A), f.load(in.B)
	dst := f.slot(in.Result.Name)
	return func(fr []tac.Value) (int, error) {
		fr[dst] = tac.Num(fn(a(fr).Num, b(fr).Num))
		return next, nil
	}
}
