package jit

import (
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"mira/internal/errors"
	"mira/internal/tac"
)

// ExecContext is the interpreter-side surface the dispatcher drives. A
// *interp.Context satisfies it.
type ExecContext interface {
	Env
	ID() string
	CurrentLine() int
	CodeLen() int
	InstructionAt(line int) tac.Instruction
	AdvanceTo(line int)
	Done() bool
	StepOne() (time.Duration, error)
}

// State is the dispatcher's execution mode for the current step.
type State int32

const (
	Interpreting State = iota
	ExecutingCompiled
)

func (s State) String() string {
	if s == ExecutingCompiled {
		return "executing-compiled"
	}
	return "interpreting"
}

// RuntimeStats are the dispatcher's cumulative totals.
type RuntimeStats struct {
	TotalInstructions     uint64
	CompiledInstructions  uint64
	JITExecutions         uint64
	InterpreterExecutions uint64
	JITTime               time.Duration
	InterpreterTime       time.Duration
	CompileTime           time.Duration
	CachedRegions         int
}

// window is one fingerprinted candidate region of a context's code.
type window struct {
	valid bool
	start int
	end   int
	fp    tac.Fingerprint
	body  []tac.Instruction // region-relative
	slots []string          // this code's names for the canonical slots
}

type installedRegion struct {
	start  int
	end    int
	slots  []string
	region *CompiledRegion
}

// ctxState is the dispatcher's per-context bookkeeping: the window memo
// (fingerprinting every step would dwarf the interpreter) and the regions
// installed against this context's line ranges.
type ctxState struct {
	windows   map[int]window
	installed []installedRegion

	// iterNS accumulates interpreted time inside a window, keyed by the
	// window's start line, so the profiler sees whole loop iterations
	// rather than single instructions.
	iterNS map[int]time.Duration
}

// Dispatcher is the per-step control loop deciding between interpretation
// and compiled execution. One dispatcher serves one interpreter instance
// at a time, but any number of dispatchers may share a Profiler and Cache
// so that repeated invocations, or entirely separate scripts with the same
// hot shapes, learn from each other.
type Dispatcher struct {
	profiler *Profiler
	cache    *Cache
	gen      CodeGenerator
	cfg      Config
	logger   *zap.Logger

	enabled atomic.Bool
	state   atomic.Int32
	steps   uint64

	contexts map[string]*ctxState

	totalInstructions    atomic.Uint64
	compiledInstructions atomic.Uint64
	jitExecutions        atomic.Uint64
	interpExecutions     atomic.Uint64
	jitNS                atomic.Uint64
	interpNS             atomic.Uint64
}

func NewDispatcher(profiler *Profiler, cache *Cache, gen CodeGenerator, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		profiler: profiler,
		cache:    cache,
		gen:      gen,
		cfg:      cfg.Normalize(),
		logger:   logger,
		contexts: make(map[string]*ctxState),
	}
	d.enabled.Store(true)
	return d
}

// Enable turns the JIT path on or off. Disabled, Step degrades to plain
// interpretation.
func (d *Dispatcher) Enable(on bool) { d.enabled.Store(on) }

func (d *Dispatcher) Enabled() bool { return d.enabled.Load() }

func (d *Dispatcher) State() State { return State(d.state.Load()) }

// ClearCache drops all compiled regions and per-context installations.
// Must not race a Step in flight; call it only between runs.
func (d *Dispatcher) ClearCache() {
	d.cache.Clear()
	d.contexts = make(map[string]*ctxState)
}

// Release forgets the per-context bookkeeping for a finished context. The
// profiler and cache keep everything learned from it.
func (d *Dispatcher) Release(ctx ExecContext) {
	delete(d.contexts, ctx.ID())
}

func (d *Dispatcher) Stats() RuntimeStats {
	return RuntimeStats{
		TotalInstructions:     d.totalInstructions.Load(),
		CompiledInstructions:  d.compiledInstructions.Load(),
		JITExecutions:         d.jitExecutions.Load(),
		InterpreterExecutions: d.interpExecutions.Load(),
		JITTime:               time.Duration(d.jitNS.Load()),
		InterpreterTime:       time.Duration(d.interpNS.Load()),
		CompileTime:           d.cache.TotalCompileTime(),
		CachedRegions:         d.cache.Len(),
	}
}

// Run drives a context to completion and releases its bookkeeping.
func (d *Dispatcher) Run(ctx ExecContext) error {
	defer d.Release(ctx)
	for !ctx.Done() {
		if err := d.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Step executes one unit of work: either a whole compiled region covering
// the current line, or exactly one interpreted instruction plus the
// profiling and compilation decisions hanging off it. A code generation
// failure never surfaces as a script error; with FallbackOnFailure set
// (the default) it is invisible to the host as well.
func (d *Dispatcher) Step(ctx ExecContext) error {
	line := ctx.CurrentLine()
	d.totalInstructions.Add(1)

	if d.enabled.Load() {
		if inst, ok := d.regionAt(ctx, line); ok {
			return d.executeCompiled(ctx, inst)
		}
	}

	elapsed, err := ctx.StepOne()
	d.interpExecutions.Add(1)
	d.interpNS.Add(uint64(elapsed))
	if err != nil {
		return err
	}
	if !d.enabled.Load() {
		return nil
	}

	if w := d.windowAt(ctx, line); w.valid {
		st := d.ctxState(ctx)
		st.iterNS[w.start] += elapsed
		if line == w.end {
			// The backward jump closes one iteration; record it whole.
			d.profiler.RecordExecution(w.fp, w.body, st.iterNS[w.start])
			delete(st.iterNS, w.start)
			if region, ok := d.cache.Lookup(w.fp); ok {
				// Another context (or a previous invocation) already paid
				// for this shape; just install it here.
				d.install(ctx, w, region)
			} else if d.profiler.ShouldCompile(w.fp) {
				if err := d.compileWindow(ctx, w); err != nil {
					return err
				}
			}
		}
	}

	d.steps++
	if d.steps%d.cfg.ThresholdUpdateInterval == 0 {
		d.profiler.UpdateThresholds()
	}
	return nil
}

func (d *Dispatcher) ctxState(ctx ExecContext) *ctxState {
	st, ok := d.contexts[ctx.ID()]
	if !ok {
		st = &ctxState{
			windows: make(map[int]window),
			iterNS:  make(map[int]time.Duration),
		}
		d.contexts[ctx.ID()] = st
	}
	return st
}

// regionAt finds an installed compiled region starting at line. Entry is
// only ever at a region's first instruction: the compiled body begins at
// pc 0, so entering mid-region would replay the instructions before the
// entry line. When several regions share a start, the longest wins.
func (d *Dispatcher) regionAt(ctx ExecContext, line int) (installedRegion, bool) {
	st, ok := d.contexts[ctx.ID()]
	if !ok {
		return installedRegion{}, false
	}
	var best installedRegion
	found := false
	for _, inst := range st.installed {
		if inst.start != line {
			continue
		}
		if !found || inst.end > best.end {
			best = inst
			found = true
		}
	}
	return best, found
}

func (d *Dispatcher) executeCompiled(ctx ExecContext, inst installedRegion) error {
	d.state.Store(int32(ExecutingCompiled))
	defer d.state.Store(int32(Interpreting))

	start := time.Now()
	iterations, err := inst.region.Fn(ctx, inst.slots)
	elapsed := time.Since(start)

	inst.region.noteExecution()
	d.jitExecutions.Add(1)
	d.jitNS.Add(uint64(elapsed))
	// One compiled call covers many loop iterations; the profiler compares
	// against per-iteration interpreted samples, so hand it the same unit.
	d.profiler.RecordCompiledExecution(inst.region.Fingerprint, elapsed, iterations)

	if err != nil {
		// Compiled bodies report region-relative lines; rebase so the
		// script sees exactly what interpretation would have raised.
		if me, ok := err.(*errors.MiraError); ok {
			rebased := *me
			rebased.Line = me.Line + inst.start
			ctx.AdvanceTo(rebased.Line)
			return &rebased
		}
		return err
	}
	ctx.AdvanceTo(inst.end + 1)
	return nil
}

// windowAt locates the hot-path window around line: the innermost backward
// jump enclosing it, bounded by MaxInstructionSequence. The result is
// memoized per line; code is immutable per context. Lines outside any
// loop-shaped window are never profiled or compiled.
func (d *Dispatcher) windowAt(ctx ExecContext, line int) window {
	st := d.ctxState(ctx)
	if w, ok := st.windows[line]; ok {
		return w
	}

	w := window{}
	limit := line + d.cfg.MaxInstructionSequence
	if n := ctx.CodeLen(); limit > n {
		limit = n
	}
	for j := line; j < limit; j++ {
		in := ctx.InstructionAt(j)
		if !in.Op.IsJump() {
			continue
		}
		t, ok := constTarget(in.A)
		if !ok || t < 0 || t > line {
			// Forward edges and computed targets do not close a loop
			// around this line.
			continue
		}
		if j-t+1 > d.cfg.MaxInstructionSequence {
			continue
		}
		raw := make([]tac.Instruction, 0, j-t+1)
		for k := t; k <= j; k++ {
			raw = append(raw, ctx.InstructionAt(k))
		}
		body := tac.RebaseJumps(raw, t)
		w = window{
			valid: true,
			start: t,
			end:   j,
			fp:    tac.FingerprintOf(body),
			body:  body,
			slots: tac.SlotNames(body),
		}
		break
	}

	st.windows[line] = w
	return w
}

// compileWindow compiles and installs a candidate window. Failures are
// reported to the profiler (terminally, so the region is never retried)
// and otherwise swallowed per FallbackOnFailure.
func (d *Dispatcher) compileWindow(ctx ExecContext, w window) error {
	start := time.Now()
	region, err := d.cache.GetOrCompile(w.fp, w.body, w.start, w.end, d.gen)
	if err != nil {
		d.profiler.RecordCompilation(w.fp, false, time.Since(start))
		d.logger.Debug("jit compilation rejected",
			zap.String("fingerprint", w.fp.Short()),
			zap.Int("start", w.start),
			zap.Int("end", w.end),
			zap.Error(err))
		if !d.cfg.FallbackOnFailure {
			return err
		}
		return nil
	}

	d.profiler.RecordCompilation(w.fp, true, region.CompileTime)
	d.compiledInstructions.Add(uint64(region.InstructionCount))
	d.install(ctx, w, region)
	return nil
}

func (d *Dispatcher) install(ctx ExecContext, w window, region *CompiledRegion) {
	st := d.ctxState(ctx)
	for _, inst := range st.installed {
		if inst.start == w.start && inst.end == w.end {
			return
		}
	}
	st.installed = append(st.installed, installedRegion{
		start:  w.start,
		end:    w.end,
		slots:  w.slots,
		region: region,
	})
}
