package interp

import (
	"time"

	"github.com/google/uuid"

	"mira/internal/errors"
	"mira/internal/tac"
)

// Intrinsic is a host function callable from script code.
type Intrinsic func(arg tac.Value) (tac.Value, error)

// Context is one executing TAC program: code, an instruction pointer and a
// variable environment. It is the interpreter-side collaborator the JIT
// dispatcher drives; one goroutine owns a Context at a time.
type Context struct {
	Code []tac.Instruction

	id         string
	line       int
	vars       map[string]tac.Value
	intrinsics map[string]Intrinsic
}

func NewContext(code []tac.Instruction) *Context {
	return &Context{
		Code:       code,
		id:         uuid.NewString(),
		vars:       make(map[string]tac.Value),
		intrinsics: make(map[string]Intrinsic),
	}
}

// ID is the context's identity, unique per invocation.
func (c *Context) ID() string { return c.id }

func (c *Context) CurrentLine() int { return c.line }

func (c *Context) InstructionAt(line int) tac.Instruction { return c.Code[line] }

func (c *Context) CodeLen() int { return len(c.Code) }

// AdvanceTo moves the instruction pointer, e.g. past a compiled region.
func (c *Context) AdvanceTo(line int) { c.line = line }

func (c *Context) Done() bool { return c.line >= len(c.Code) }

// Get returns the value bound to name, or null when unbound.
func (c *Context) Get(name string) tac.Value { return c.vars[name] }

func (c *Context) Set(name string, v tac.Value) { c.vars[name] = v }

// Register installs a host intrinsic reachable via call instructions.
func (c *Context) Register(name string, fn Intrinsic) { c.intrinsics[name] = fn }

// Reset rewinds the program without clearing variables, so the same context
// can be re-entered (one invocation per run of the code).
func (c *Context) Reset() { c.line = 0 }

func (c *Context) operand(o tac.Operand) tac.Value {
	switch o.Kind {
	case tac.ConstOperand:
		return o.Const
	case tac.NameOperand, tac.TempOperand:
		return c.vars[o.Name]
	default:
		return tac.Null
	}
}

// jumpTargetAt resolves a jump operand to a line number. A target of
// len(code) is the normal fall-off-the-end exit; anything outside [0,
// len(code)] is a script error, not a panic.
func (c *Context) jumpTargetAt(o tac.Operand, line int) (int, error) {
	target, ok := jumpTarget(o)
	if !ok {
		return 0, errors.NewRuntimeError(line, "jump target is not a constant line")
	}
	if target < 0 || target > len(c.Code) {
		return 0, errors.NewRuntimeError(line, "jump target %d is out of range", target)
	}
	return target, nil
}

// StepOne executes exactly one instruction at the current line and reports
// how long it took. Control-flow instructions move the line pointer
// themselves; everything else falls through to the next line.
func (c *Context) StepOne() (time.Duration, error) {
	start := time.Now()
	err := c.exec()
	return time.Since(start), err
}

func (c *Context) exec() error {
	in := c.Code[c.line]
	line := c.line

	switch in.Op {
	case tac.OpLabel:
		c.line++
		return nil

	case tac.OpJump:
		target, err := c.jumpTargetAt(in.A, line)
		if err != nil {
			return err
		}
		c.line = target
		return nil

	case tac.OpJumpIfNot:
		target, err := c.jumpTargetAt(in.A, line)
		if err != nil {
			return err
		}
		if !c.operand(in.B).Truthy() {
			c.line = target
		} else {
			c.line++
		}
		return nil

	case tac.OpAssign:
		c.vars[in.Result.Name] = c.operand(in.A)
		c.line++
		return nil

	case tac.OpNot:
		c.vars[in.Result.Name] = tac.Bool(!c.operand(in.A).Truthy())
		c.line++
		return nil

	case tac.OpCall:
		fn, ok := c.intrinsics[in.A.Name]
		if !ok {
			return errors.NewRuntimeError(line, "unknown function %q", in.A.Name)
		}
		result, err := fn(c.operand(in.B))
		if err != nil {
			return err
		}
		if in.Result.IsSet() {
			c.vars[in.Result.Name] = result
		}
		c.line++
		return nil

	default:
		result, err := EvalBinary(in.Op, c.operand(in.A), c.operand(in.B), line)
		if err != nil {
			return err
		}
		c.vars[in.Result.Name] = result
		c.line++
		return nil
	}
}

// Run interprets the whole program without any JIT involvement. Used by
// tests as the reference semantics and by the demo driver for comparison
// runs.
func (c *Context) Run() error {
	for !c.Done() {
		if _, err := c.StepOne(); err != nil {
			return err
		}
	}
	return nil
}
