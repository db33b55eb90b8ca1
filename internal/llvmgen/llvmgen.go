// Package llvmgen lowers straight-line numeric TAC regions to LLVM IR.
//
// This is the offline surface of the code-generation seam: the in-process
// execution path uses the closure backend, while EmitRegion produces a
// textual LLVM module for inspection, verification against an external
// toolchain, or ahead-of-time experiments. Each region becomes one
// function of type double(double, ...), with the region's free slots as
// parameters, mirroring how the interpreter would feed the region its
// live bindings.
package llvmgen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"mira/internal/tac"
)

// EmitRegion builds an LLVM module containing one function named name that
// evaluates instrs. Regions with control flow, calls or string operands
// are not expressible here and return an error.
func EmitRegion(instrs []tac.Instruction, name string) (*ir.Module, error) {
	if len(instrs) == 0 {
		return nil, fmt.Errorf("llvmgen: empty region")
	}

	// Free slots (read before any definition) become parameters, in
	// first-use order.
	var paramNames []string
	defined := make(map[string]bool)
	seen := make(map[string]bool)
	for _, in := range instrs {
		for _, o := range []tac.Operand{in.A, in.B} {
			if o.IsSlot() && !defined[o.Name] && !seen[o.Name] {
				seen[o.Name] = true
				paramNames = append(paramNames, o.Name)
			}
		}
		if in.Result.IsSlot() {
			defined[in.Result.Name] = true
		}
	}

	m := ir.NewModule()
	params := make([]*ir.Param, len(paramNames))
	for i, pn := range paramNames {
		params[i] = ir.NewParam(pn, types.Double)
	}
	fn := m.NewFunc(name, types.Double, params...)
	entry := fn.NewBlock("entry")

	vals := make(map[string]value.Value, len(paramNames))
	for i, pn := range paramNames {
		vals[pn] = params[i]
	}

	var powDecl *ir.Func
	var last value.Value

	for i, in := range instrs {
		load := func(o tac.Operand) (value.Value, error) {
			switch o.Kind {
			case tac.ConstOperand:
				if o.Const.Kind != tac.KindNumber {
					return nil, fmt.Errorf("llvmgen: instruction %d: non-numeric constant", i)
				}
				return constant.NewFloat(types.Double, o.Const.Num), nil
			case tac.NameOperand, tac.TempOperand:
				v, ok := vals[o.Name]
				if !ok {
					return nil, fmt.Errorf("llvmgen: instruction %d: undefined slot %q", i, o.Name)
				}
				return v, nil
			default:
				return nil, fmt.Errorf("llvmgen: instruction %d: missing operand", i)
			}
		}

		var result value.Value
		switch op := in.Op.Generic(); op {
		case tac.OpAssign:
			v, err := load(in.A)
			if err != nil {
				return nil, err
			}
			result = v

		case tac.OpAdd, tac.OpSub, tac.OpMul, tac.OpDiv, tac.OpPow:
			a, err := load(in.A)
			if err != nil {
				return nil, err
			}
			b, err := load(in.B)
			if err != nil {
				return nil, err
			}
			switch op {
			case tac.OpAdd:
				result = entry.NewFAdd(a, b)
			case tac.OpSub:
				result = entry.NewFSub(a, b)
			case tac.OpMul:
				result = entry.NewFMul(a, b)
			case tac.OpDiv:
				result = entry.NewFDiv(a, b)
			default:
				if powDecl == nil {
					powDecl = m.NewFunc("llvm.pow.f64", types.Double,
						ir.NewParam("", types.Double), ir.NewParam("", types.Double))
				}
				result = entry.NewCall(powDecl, a, b)
			}

		default:
			return nil, fmt.Errorf("llvmgen: instruction %d: operator %s not expressible", i, in.Op)
		}

		if in.Result.IsSlot() {
			vals[in.Result.Name] = result
		}
		last = result
	}

	entry.NewRet(last)
	return m, nil
}
