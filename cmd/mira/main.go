// cmd/mira/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"mira/internal/interp"
	"mira/internal/jit"
	"mira/internal/llvmgen"
	"mira/internal/tac"
)

func main() {
	var (
		jitOn      = flag.Bool("jit", true, "enable adaptive compilation")
		configPath = flag.String("config", "", "TOML config file (defaults apply when empty)")
		program    = flag.String("program", "sum", "demo program: sum, polynomial, strings, divzero")
		iterations = flag.Int("n", 200000, "loop iterations for the demo programs")
		emitLLVM   = flag.Bool("emit-llvm", false, "print LLVM IR for the program's hot region and exit")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, "mira:", err)
			os.Exit(1)
		}
		logger = l
		defer logger.Sync()
	}

	cfg := jit.DefaultConfig()
	// The demo loops interpret fast; let count and frequency alone drive
	// candidacy so the compiled path actually shows up in the report.
	cfg.MinAvgExecutionTime = 0
	if *configPath != "" {
		c, err := jit.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "mira:", err)
			os.Exit(1)
		}
		cfg = c
	}

	code, ok := programs[*program]
	if !ok {
		fmt.Fprintf(os.Stderr, "mira: unknown program %q\n", *program)
		os.Exit(1)
	}

	if *emitLLVM {
		if err := emitRegion(code, *program); err != nil {
			fmt.Fprintln(os.Stderr, "mira:", err)
			os.Exit(1)
		}
		return
	}

	profiler := jit.NewProfiler(cfg)
	cache := jit.NewCache(cfg, logger)
	disp := jit.NewDispatcher(profiler, cache, jit.NewClosureCompiler(), cfg, logger)
	disp.Enable(*jitOn)

	ctx := interp.NewContext(code)
	ctx.Set("n", tac.Num(float64(*iterations)))

	start := time.Now()
	err := disp.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mira: runtime error:", err)
		os.Exit(1)
	}

	fmt.Printf("program %s finished in %v\n", *program, elapsed)
	fmt.Printf("  result = %s\n", ctx.Get("result"))
	report(disp.Stats())
}

func report(s jit.RuntimeStats) {
	fmt.Println("runtime statistics:")
	fmt.Printf("  dispatched steps:     %s\n", humanize.Comma(int64(s.TotalInstructions)))
	fmt.Printf("  interpreted:          %s (%v)\n", humanize.Comma(int64(s.InterpreterExecutions)), s.InterpreterTime)
	fmt.Printf("  compiled executions:  %s (%v)\n", humanize.Comma(int64(s.JITExecutions)), s.JITTime)
	fmt.Printf("  compiled regions:     %d (%s instructions, %v spent compiling)\n",
		s.CachedRegions, humanize.Comma(int64(s.CompiledInstructions)), s.CompileTime)
}

// emitRegion prints LLVM IR for the program's arithmetic core: the body of
// its innermost loop with control flow stripped, which is the shape the
// offline backend accepts.
func emitRegion(code []tac.Instruction, name string) error {
	start, end := -1, -1
	for j := range code {
		in := code[j]
		if !in.Op.IsJump() {
			continue
		}
		if t := int(in.A.Const.Num); in.A.Kind == tac.ConstOperand && t <= j {
			start, end = t, j
			break
		}
	}
	if start < 0 {
		return fmt.Errorf("program %s has no loop to emit", name)
	}

	var body []tac.Instruction
	for _, in := range code[start : end+1] {
		if in.Op.IsJump() || in.Op == tac.OpLabel || in.Op.IsComparison() {
			continue
		}
		body = append(body, in)
	}

	m, err := llvmgen.EmitRegion(body, "region_"+name)
	if err != nil {
		return err
	}
	fmt.Print(m.String())
	return nil
}

// Demo programs. Each reads n and leaves its answer in result.
var programs = map[string][]tac.Instruction{
	// result = 0 + 1 + ... + (n-1)
	"sum": {
		tac.Assign(tac.Name("i"), tac.ConstNum(0)),
		tac.Assign(tac.Name("result"), tac.ConstNum(0)),
		tac.Binary(tac.OpLess, tac.Temp("t0"), tac.Name("i"), tac.Name("n")),
		tac.JumpIfNot(7, tac.Temp("t0")),
		tac.Binary(tac.OpAdd, tac.Name("result"), tac.Name("result"), tac.Name("i")),
		tac.Binary(tac.OpAdd, tac.Name("i"), tac.Name("i"), tac.ConstNum(1)),
		tac.Jump(2),
	},

	// result = sum of 3x^2 + 2x + 1 for x in [0, n)
	"polynomial": {
		tac.Assign(tac.Name("x"), tac.ConstNum(0)),
		tac.Assign(tac.Name("result"), tac.ConstNum(0)),
		tac.Binary(tac.OpLess, tac.Temp("t0"), tac.Name("x"), tac.Name("n")),
		tac.JumpIfNot(11, tac.Temp("t0")),
		tac.Binary(tac.OpMul, tac.Temp("t1"), tac.Name("x"), tac.Name("x")),
		tac.Binary(tac.OpMul, tac.Temp("t1"), tac.Temp("t1"), tac.ConstNum(3)),
		tac.Binary(tac.OpMul, tac.Temp("t2"), tac.Name("x"), tac.ConstNum(2)),
		tac.Binary(tac.OpAdd, tac.Temp("t1"), tac.Temp("t1"), tac.Temp("t2")),
		tac.Binary(tac.OpAdd, tac.Name("result"), tac.Name("result"), tac.Temp("t1")),
		tac.Binary(tac.OpAdd, tac.Name("x"), tac.Name("x"), tac.ConstNum(1)),
		tac.Jump(2),
	},

	// result = "ab" repeated by concatenation (kept short; string building
	// in a loop is quadratic on purpose, it exercises the string paths)
	"strings": {
		tac.Assign(tac.Name("i"), tac.ConstNum(0)),
		tac.Assign(tac.Name("result"), tac.Const(tac.Str(""))),
		tac.Binary(tac.OpLess, tac.Temp("t0"), tac.Name("i"), tac.Name("n")),
		tac.JumpIfNot(7, tac.Temp("t0")),
		tac.Binary(tac.OpAdd, tac.Name("result"), tac.Name("result"), tac.Const(tac.Str("ab"))),
		tac.Binary(tac.OpAdd, tac.Name("i"), tac.Name("i"), tac.ConstNum(1)),
		tac.Jump(2),
	},

	// divides by a counter that reaches zero on the last pass; shows the
	// compiled path raising the same error the interpreter would
	"divzero": {
		tac.Assign(tac.Name("d"), tac.Name("n")),
		tac.Assign(tac.Name("result"), tac.ConstNum(0)),
		tac.Binary(tac.OpGreaterEqual, tac.Temp("t0"), tac.Name("d"), tac.ConstNum(0)),
		tac.JumpIfNot(7, tac.Temp("t0")),
		tac.Binary(tac.OpDiv, tac.Name("result"), tac.ConstNum(100), tac.Name("d")),
		tac.Binary(tac.OpSub, tac.Name("d"), tac.Name("d"), tac.ConstNum(1)),
		tac.Jump(2),
	},
}
