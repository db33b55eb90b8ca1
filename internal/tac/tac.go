package tac

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator identifies one three-address-code operation. The set is closed:
// the evaluator, the specializer, the fingerprinter and the code generators
// all switch exhaustively over it.
type Operator byte

const (
	OpAssign Operator = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAnd
	OpOr
	OpNot
	OpJump      // jump to line A
	OpJumpIfNot // jump to line A unless B is truthy
	OpCall
	OpLabel

	// Specialized variants, emitted only by the type specializer. Each must
	// evaluate bit-for-bit identically to its generic form for operands of
	// the proven type.
	OpNumAdd
	OpNumSub
	OpNumMul
	OpNumDiv
	OpNumEqual
	OpNumLess
	OpStrConcat
	OpStrEqual
)

var opNames = map[Operator]string{
	OpAssign:       "assign",
	OpAdd:          "add",
	OpSub:          "sub",
	OpMul:          "mul",
	OpDiv:          "div",
	OpMod:          "mod",
	OpPow:          "pow",
	OpEqual:        "eq",
	OpNotEqual:     "neq",
	OpLess:         "lt",
	OpLessEqual:    "lte",
	OpGreater:      "gt",
	OpGreaterEqual: "gte",
	OpAnd:          "and",
	OpOr:           "or",
	OpNot:          "not",
	OpJump:         "jump",
	OpJumpIfNot:    "jumpifnot",
	OpCall:         "call",
	OpLabel:        "label",
	OpNumAdd:       "num.add",
	OpNumSub:       "num.sub",
	OpNumMul:       "num.mul",
	OpNumDiv:       "num.div",
	OpNumEqual:     "num.eq",
	OpNumLess:      "num.lt",
	OpStrConcat:    "str.concat",
	OpStrEqual:     "str.eq",
}

func (op Operator) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", byte(op))
}

// Generic maps a specialized operator back to the generic operator it was
// derived from. Non-specialized operators map to themselves.
func (op Operator) Generic() Operator {
	switch op {
	case OpNumAdd, OpStrConcat:
		return OpAdd
	case OpNumSub:
		return OpSub
	case OpNumMul:
		return OpMul
	case OpNumDiv:
		return OpDiv
	case OpNumEqual, OpStrEqual:
		return OpEqual
	case OpNumLess:
		return OpLess
	default:
		return op
	}
}

// IsSpecialized reports whether op is one of the specialized variants.
func (op Operator) IsSpecialized() bool {
	return op != op.Generic()
}

// IsArithmetic reports whether op is a generic binary arithmetic operator.
func (op Operator) IsArithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow:
		return true
	}
	return false
}

// IsComparison reports whether op is a generic binary comparison operator.
func (op Operator) IsComparison() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return true
	}
	return false
}

// IsJump reports whether op transfers control.
func (op Operator) IsJump() bool {
	return op == OpJump || op == OpJumpIfNot
}

// IsExpensive reports whether op is costly enough that a region containing
// it gets the profiler's expensive-op treatment.
func (op Operator) IsExpensive() bool {
	return op == OpPow || op == OpCall
}

// ValueKind tags a runtime value. Booleans are numbers (1/0), as in the
// surrounding interpreter.
type ValueKind byte

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// Value is one Mira runtime value. The zero value is null.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
}

var Null = Value{}

func Num(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func Str(s string) Value  { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value {
	if b {
		return Num(1)
	}
	return Num(0)
}

// Truthy follows the interpreter's rules: nonzero numbers and nonempty
// strings are true, null is false.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNumber:
		return v.Num != 0
	case KindString:
		return v.Str != ""
	default:
		return false
	}
}

func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.Str)
	default:
		return "null"
	}
}

// OperandKind tags an instruction operand.
type OperandKind byte

const (
	NoOperand OperandKind = iota
	ConstOperand
	NameOperand
	TempOperand
)

// Operand references a constant, a named variable slot, or a compiler
// temporary.
type Operand struct {
	Kind  OperandKind
	Name  string
	Const Value
}

func Const(v Value) Operand      { return Operand{Kind: ConstOperand, Const: v} }
func ConstNum(f float64) Operand { return Const(Num(f)) }
func Name(s string) Operand      { return Operand{Kind: NameOperand, Name: s} }
func Temp(s string) Operand      { return Operand{Kind: TempOperand, Name: s} }

// IsSet reports whether the operand slot is used at all.
func (o Operand) IsSet() bool { return o.Kind != NoOperand }

// IsSlot reports whether the operand names a variable or temporary slot.
func (o Operand) IsSlot() bool { return o.Kind == NameOperand || o.Kind == TempOperand }

func (o Operand) String() string {
	switch o.Kind {
	case ConstOperand:
		return o.Const.String()
	case NameOperand:
		return o.Name
	case TempOperand:
		return o.Name
	default:
		return "_"
	}
}

// Instruction is one TAC operation: an operator, up to two operands and a
// result slot. Instructions are immutable once emitted; passes that rewrite
// them produce new slices.
type Instruction struct {
	Op     Operator
	Result Operand
	A      Operand
	B      Operand
}

func (in Instruction) String() string {
	var sb strings.Builder
	if in.Result.IsSet() {
		sb.WriteString(in.Result.String())
		sb.WriteString(" = ")
	}
	sb.WriteString(in.Op.String())
	if in.A.IsSet() {
		sb.WriteByte(' ')
		sb.WriteString(in.A.String())
	}
	if in.B.IsSet() {
		sb.WriteByte(' ')
		sb.WriteString(in.B.String())
	}
	return sb.String()
}

// Convenience constructors used by the demo programs and tests.

func Assign(result, a Operand) Instruction {
	return Instruction{Op: OpAssign, Result: result, A: a}
}

func Binary(op Operator, result, a, b Operand) Instruction {
	return Instruction{Op: op, Result: result, A: a, B: b}
}

func Jump(target int) Instruction {
	return Instruction{Op: OpJump, A: ConstNum(float64(target))}
}

func JumpIfNot(target int, cond Operand) Instruction {
	return Instruction{Op: OpJumpIfNot, A: ConstNum(float64(target)), B: cond}
}
