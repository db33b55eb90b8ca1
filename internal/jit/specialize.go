package jit

import "mira/internal/tac"

// SpecializeStats reports what one specialization pass did. Diagnostics
// only; nothing downstream makes correctness decisions from it.
type SpecializeStats struct {
	Total       int
	Specialized int
}

func (s SpecializeStats) Rate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Specialized) / float64(s.Total)
}

// Specialize rewrites generic binary operations into type-specialized
// variants where both operand types are statically proven. The proof is a
// single forward def-use pass: constants have known types, and a slot's
// type is known from the instruction that most recently defined it within
// an unbroken straight line of the region. At every join point (any line
// some jump targets) the known types are discarded, so the pass is sound in
// the presence of loops without being loop-aware. The input is never
// mutated; a new instruction list is returned.
//
// Specialization changes representation only. An instruction it emits must
// evaluate bit-for-bit identically to the generic form for operands of the
// proven types, and nothing is rewritten on an unproven or mixed proof.
func Specialize(instrs []tac.Instruction) ([]tac.Instruction, SpecializeStats) {
	stats := SpecializeStats{Total: len(instrs)}
	if len(instrs) == 0 {
		return nil, stats
	}

	joins := make(map[int]bool)
	for _, in := range instrs {
		if !in.Op.IsJump() {
			continue
		}
		if t, ok := constTarget(in.A); ok {
			joins[t] = true
		}
	}

	out := make([]tac.Instruction, len(instrs))
	types := make(map[string]tac.ValueKind)

	for i, in := range instrs {
		if joins[i] {
			clear(types)
		}

		ka, aProven := operandType(in.A, types)
		kb, bProven := operandType(in.B, types)

		if aProven && bProven {
			if sp, ok := specializedOp(in.Op, ka, kb); ok {
				in.Op = sp
				stats.Specialized++
			}
		}
		out[i] = in

		// Track the statically known result type of this definition.
		if in.Result.IsSlot() {
			if k, ok := resultType(in, ka, aProven, kb, bProven); ok {
				types[in.Result.Name] = k
			} else {
				delete(types, in.Result.Name)
			}
		}
	}
	return out, stats
}

func constTarget(o tac.Operand) (int, bool) {
	if o.Kind != tac.ConstOperand || o.Const.Kind != tac.KindNumber {
		return 0, false
	}
	return int(o.Const.Num), true
}

func operandType(o tac.Operand, types map[string]tac.ValueKind) (tac.ValueKind, bool) {
	switch o.Kind {
	case tac.ConstOperand:
		return o.Const.Kind, true
	case tac.NameOperand, tac.TempOperand:
		k, ok := types[o.Name]
		return k, ok
	default:
		return tac.KindNull, false
	}
}

// specializedOp maps a generic operator plus a proven operand-type pair to
// its specialized variant, when one exists for that domain.
func specializedOp(op tac.Operator, ka, kb tac.ValueKind) (tac.Operator, bool) {
	nums := ka == tac.KindNumber && kb == tac.KindNumber
	strs := ka == tac.KindString && kb == tac.KindString

	switch op {
	case tac.OpAdd:
		if nums {
			return tac.OpNumAdd, true
		}
		if strs {
			return tac.OpStrConcat, true
		}
	case tac.OpSub:
		if nums {
			return tac.OpNumSub, true
		}
	case tac.OpMul:
		if nums {
			return tac.OpNumMul, true
		}
	case tac.OpDiv:
		if nums {
			// Division is specialized on operand types only; the zero
			// check survives in the specialized form.
			return tac.OpNumDiv, true
		}
	case tac.OpEqual:
		if nums {
			return tac.OpNumEqual, true
		}
		if strs {
			return tac.OpStrEqual, true
		}
	case tac.OpLess:
		if nums {
			return tac.OpNumLess, true
		}
	}
	return op, false
}

// resultType infers the static type an instruction's result slot will hold,
// when provable.
func resultType(in tac.Instruction, ka tac.ValueKind, aProven bool, kb tac.ValueKind, bProven bool) (tac.ValueKind, bool) {
	switch op := in.Op; {
	case op == tac.OpAssign:
		return ka, aProven

	case op == tac.OpAdd || op == tac.OpNumAdd || op == tac.OpStrConcat:
		if aProven && bProven && ka == kb && (ka == tac.KindNumber || ka == tac.KindString) {
			return ka, true
		}
		return tac.KindNull, false

	case op.IsArithmetic() || op == tac.OpNumSub || op == tac.OpNumMul || op == tac.OpNumDiv:
		// Sub/mul/div/mod/pow succeed only on numbers.
		return tac.KindNumber, true

	case op.IsComparison() || op == tac.OpNumEqual || op == tac.OpNumLess || op == tac.OpStrEqual,
		op == tac.OpAnd, op == tac.OpOr, op == tac.OpNot:
		// Booleans are numbers.
		return tac.KindNumber, true

	default:
		// Calls and anything else: unproven.
		return tac.KindNull, false
	}
}
