package jit

import (
	"testing"

	"mira/internal/tac"
)

// Test that proven numeric and string chains specialize.
func TestSpecializeStraightLine(t *testing.T) {
	region := []tac.Instruction{
		tac.Assign(tac.Name("x"), tac.ConstNum(10)),
		tac.Binary(tac.OpAdd, tac.Temp("t0"), tac.Name("x"), tac.ConstNum(5)),
		tac.Binary(tac.OpMul, tac.Temp("t1"), tac.Temp("t0"), tac.Temp("t0")),
		tac.Binary(tac.OpLess, tac.Temp("t2"), tac.Temp("t1"), tac.ConstNum(1000)),
		tac.Assign(tac.Name("s"), tac.Const(tac.Str("a"))),
		tac.Binary(tac.OpAdd, tac.Name("s"), tac.Name("s"), tac.Const(tac.Str("b"))),
		tac.Binary(tac.OpEqual, tac.Temp("t3"), tac.Name("s"), tac.Const(tac.Str("ab"))),
	}

	out, stats := Specialize(region)

	want := []tac.Operator{
		tac.OpAssign,
		tac.OpNumAdd,
		tac.OpNumMul,
		tac.OpNumLess,
		tac.OpAssign,
		tac.OpStrConcat,
		tac.OpStrEqual,
	}
	for i, op := range want {
		if out[i].Op != op {
			t.Errorf("instruction %d: op = %s, want %s", i, out[i].Op, op)
		}
	}
	if stats.Specialized != 5 {
		t.Errorf("specialized = %d, want 5", stats.Specialized)
	}
	if stats.Total != len(region) {
		t.Errorf("total = %d, want %d", stats.Total, len(region))
	}

	// The input is never mutated.
	if region[1].Op != tac.OpAdd {
		t.Error("input slice was mutated")
	}
}

// Test that unproven operands block specialization.
func TestSpecializeUnprovenOperands(t *testing.T) {
	region := []tac.Instruction{
		// x has no definition in the region, so its type is unknown.
		tac.Binary(tac.OpAdd, tac.Temp("t0"), tac.Name("x"), tac.ConstNum(1)),
		// Mixed proven kinds never specialize.
		tac.Assign(tac.Name("s"), tac.Const(tac.Str("a"))),
		tac.Binary(tac.OpEqual, tac.Temp("t1"), tac.Name("s"), tac.ConstNum(1)),
	}
	out, stats := Specialize(region)
	if out[0].Op != tac.OpAdd {
		t.Errorf("unproven operand specialized to %s", out[0].Op)
	}
	if out[2].Op != tac.OpEqual {
		t.Errorf("mixed-kind comparison specialized to %s", out[2].Op)
	}
	if stats.Specialized != 0 {
		t.Errorf("specialized = %d, want 0", stats.Specialized)
	}
}

// Test that type knowledge is discarded at join points, so a slot defined
// before a loop head cannot leak its type into the loop body.
func TestSpecializeClearsAtJoins(t *testing.T) {
	region := []tac.Instruction{
		// x is a proven number here, but line 1 is the loop's join target,
		// so the proof is discarded before the add.
		tac.Assign(tac.Name("x"), tac.ConstNum(0)),
		tac.Binary(tac.OpAdd, tac.Name("x"), tac.Name("x"), tac.ConstNum(1)),
		tac.Binary(tac.OpLess, tac.Temp("t0"), tac.Name("x"), tac.ConstNum(10)),
		tac.JumpIfNot(5, tac.Temp("t0")),
		tac.Jump(1),
	}
	out, _ := Specialize(region)
	if out[1].Op != tac.OpAdd {
		t.Errorf("add at join point specialized to %s; the loop edge invalidates the proof", out[1].Op)
	}
	// Within the body the comparison's left side was just redefined by the
	// add, whose result is unprovable after the join wipe, so it stays
	// generic too.
	if out[2].Op != tac.OpLess {
		t.Errorf("comparison specialized to %s", out[2].Op)
	}
}

// Test that straight-line knowledge downstream of a join is rebuilt from
// scratch and can specialize again.
func TestSpecializeRebuildsAfterJoin(t *testing.T) {
	region := []tac.Instruction{
		tac.JumpIfNot(1, tac.Name("c")),
		// Line 1 is a join target; the assign below it re-proves x.
		tac.Assign(tac.Name("x"), tac.ConstNum(2)),
		tac.Binary(tac.OpMul, tac.Temp("t0"), tac.Name("x"), tac.Name("x")),
	}
	out, _ := Specialize(region)
	if out[2].Op != tac.OpNumMul {
		t.Errorf("op = %s, want num.mul; the assign after the join re-proves x", out[2].Op)
	}
}

// Test that specialization preserves observable behavior.
func TestSpecializeEquivalence(t *testing.T) {
	region := []tac.Instruction{
		tac.Assign(tac.Name("a"), tac.ConstNum(7)),
		tac.Binary(tac.OpAdd, tac.Name("b"), tac.Name("a"), tac.ConstNum(3)),
		tac.Binary(tac.OpMul, tac.Name("c"), tac.Name("b"), tac.Name("a")),
		tac.Binary(tac.OpDiv, tac.Name("d"), tac.Name("c"), tac.ConstNum(2)),
		tac.Binary(tac.OpEqual, tac.Name("e"), tac.Name("d"), tac.ConstNum(35)),
	}
	specialized, stats := Specialize(region)
	if stats.Specialized == 0 {
		t.Fatal("expected some specialization")
	}

	cc := NewClosureCompiler()
	genericFn, err := cc.Compile(region, "generic")
	if err != nil {
		t.Fatalf("compile generic: %v", err)
	}
	specializedFn, err := cc.Compile(specialized, "specialized")
	if err != nil {
		t.Fatalf("compile specialized: %v", err)
	}

	ga, sa := make(mapEnv), make(mapEnv)
	if _, err := genericFn(ga, tac.SlotNames(region)); err != nil {
		t.Fatalf("generic run: %v", err)
	}
	if _, err := specializedFn(sa, tac.SlotNames(specialized)); err != nil {
		t.Fatalf("specialized run: %v", err)
	}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if !ga.Get(name).Equal(sa.Get(name)) {
			t.Errorf("%s: generic %s vs specialized %s", name, ga.Get(name), sa.Get(name))
		}
	}
}

// Test that division keeps its zero check through specialization.
func TestSpecializeDivisionKeepsZeroCheck(t *testing.T) {
	region := []tac.Instruction{
		tac.Assign(tac.Name("z"), tac.ConstNum(0)),
		tac.Binary(tac.OpDiv, tac.Name("q"), tac.ConstNum(1), tac.Name("z")),
	}
	out, _ := Specialize(region)
	if out[1].Op != tac.OpNumDiv {
		t.Fatalf("op = %s, want num.div", out[1].Op)
	}

	fn, err := NewClosureCompiler().Compile(out, "divzero")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := fn(make(mapEnv), tac.SlotNames(out)); err == nil {
		t.Error("specialized division by zero did not error")
	}
}

func TestSpecializeEmpty(t *testing.T) {
	out, stats := Specialize(nil)
	if out != nil || stats.Total != 0 || stats.Rate() != 0 {
		t.Errorf("empty input: out = %v, stats = %+v", out, stats)
	}
}
