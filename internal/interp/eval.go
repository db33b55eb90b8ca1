package interp

import (
	"math"

	"mira/internal/errors"
	"mira/internal/tac"
)

// EvalBinary evaluates one binary operator over two concrete values. It is
// the single source of truth for operator semantics: the interpreter step
// and the compiled execution path both call it for generic operators, so a
// compiled region cannot diverge from interpretation. Specialized variants
// are evaluated without the runtime type dispatch; their type proof is the
// specializer's responsibility. The zero-divisor check is never skipped.
func EvalBinary(op tac.Operator, a, b tac.Value, line int) (tac.Value, error) {
	switch op {
	case tac.OpAdd:
		if a.Kind == tac.KindNumber && b.Kind == tac.KindNumber {
			return tac.Num(a.Num + b.Num), nil
		}
		if a.Kind == tac.KindString && b.Kind == tac.KindString {
			return tac.Str(a.Str + b.Str), nil
		}
		return tac.Null, errors.NewTypeError(line, "cannot add %s and %s", a.Kind, b.Kind)

	case tac.OpSub, tac.OpMul, tac.OpDiv, tac.OpMod, tac.OpPow:
		if a.Kind != tac.KindNumber || b.Kind != tac.KindNumber {
			return tac.Null, errors.NewTypeError(line, "operator %s requires numbers, got %s and %s", op, a.Kind, b.Kind)
		}
		switch op {
		case tac.OpSub:
			return tac.Num(a.Num - b.Num), nil
		case tac.OpMul:
			return tac.Num(a.Num * b.Num), nil
		case tac.OpDiv:
			if b.Num == 0 {
				return tac.Null, errors.DivisionByZero(line)
			}
			return tac.Num(a.Num / b.Num), nil
		case tac.OpMod:
			if b.Num == 0 {
				return tac.Null, errors.DivisionByZero(line)
			}
			return tac.Num(math.Mod(a.Num, b.Num)), nil
		default:
			return tac.Num(math.Pow(a.Num, b.Num)), nil
		}

	case tac.OpEqual:
		return tac.Bool(a.Equal(b)), nil
	case tac.OpNotEqual:
		return tac.Bool(!a.Equal(b)), nil

	case tac.OpLess, tac.OpLessEqual, tac.OpGreater, tac.OpGreaterEqual:
		if a.Kind == tac.KindNumber && b.Kind == tac.KindNumber {
			return orderResult(op, a.Num < b.Num, a.Num == b.Num), nil
		}
		if a.Kind == tac.KindString && b.Kind == tac.KindString {
			return orderResult(op, a.Str < b.Str, a.Str == b.Str), nil
		}
		return tac.Null, errors.NewTypeError(line, "cannot compare %s and %s", a.Kind, b.Kind)

	case tac.OpAnd:
		return tac.Bool(a.Truthy() && b.Truthy()), nil
	case tac.OpOr:
		return tac.Bool(a.Truthy() || b.Truthy()), nil

	// Specialized variants: no type dispatch. Division keeps its zero
	// check regardless of specialization.
	case tac.OpNumAdd:
		return tac.Num(a.Num + b.Num), nil
	case tac.OpNumSub:
		return tac.Num(a.Num - b.Num), nil
	case tac.OpNumMul:
		return tac.Num(a.Num * b.Num), nil
	case tac.OpNumDiv:
		if b.Num == 0 {
			return tac.Null, errors.DivisionByZero(line)
		}
		return tac.Num(a.Num / b.Num), nil
	case tac.OpNumEqual:
		return tac.Bool(a.Num == b.Num), nil
	case tac.OpNumLess:
		return tac.Bool(a.Num < b.Num), nil
	case tac.OpStrConcat:
		return tac.Str(a.Str + b.Str), nil
	case tac.OpStrEqual:
		return tac.Bool(a.Str == b.Str), nil
	}

	return tac.Null, errors.NewRuntimeError(line, "operator %s is not a binary operator", op)
}

func orderResult(op tac.Operator, less, equal bool) tac.Value {
	switch op {
	case tac.OpLess:
		return tac.Bool(less)
	case tac.OpLessEqual:
		return tac.Bool(less || equal)
	case tac.OpGreater:
		return tac.Bool(!less && !equal)
	default:
		return tac.Bool(!less)
	}
}

// jumpTarget extracts a statically resolvable jump target. Computed jump
// targets are not resolvable here; the caller decides how to treat them.
func jumpTarget(o tac.Operand) (int, bool) {
	if o.Kind != tac.ConstOperand || o.Const.Kind != tac.KindNumber {
		return 0, false
	}
	return int(o.Const.Num), true
}
