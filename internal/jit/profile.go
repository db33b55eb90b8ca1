package jit

import (
	"time"

	"go.uber.org/atomic"

	"mira/internal/tac"
)

// Status is a profile's position in the compilation lifecycle. Transitions
// only move forward: Unanalyzed decides once and for all into
// InterpreterOnly or Candidate, and only a Candidate can become Compiled or
// Failed. Failed and InterpreterOnly are terminal so a pathological region
// is analyzed exactly once and never causes compile thrash.
type Status int32

const (
	Unanalyzed Status = iota
	InterpreterOnly
	Candidate
	Compiled
	Failed
)

func (s Status) String() string {
	switch s {
	case InterpreterOnly:
		return "interpreter-only"
	case Candidate:
		return "candidate"
	case Compiled:
		return "compiled"
	case Failed:
		return "failed"
	default:
		return "unanalyzed"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == InterpreterOnly || s == Compiled || s == Failed
}

// Complexity is computed once, when a fingerprint is first seen, and is
// immutable afterwards.
type Complexity struct {
	OpCount   int
	Depth     int // longest def-use chain
	Expensive bool
}

// AnalyzeComplexity measures the static shape of a region: operation
// count, dependency depth via the longest def-use chain, and whether any
// operation is expensive (pow, call).
func AnalyzeComplexity(instrs []tac.Instruction) Complexity {
	cx := Complexity{OpCount: len(instrs)}
	depths := make(map[string]int, len(instrs))
	for _, in := range instrs {
		if in.Op.IsExpensive() {
			cx.Expensive = true
		}
		d := 1
		if in.A.IsSlot() {
			if pd, ok := depths[in.A.Name]; ok && pd+1 > d {
				d = pd + 1
			}
		}
		if in.B.IsSlot() {
			if pd, ok := depths[in.B.Name]; ok && pd+1 > d {
				d = pd + 1
			}
		}
		if in.Result.IsSlot() {
			depths[in.Result.Name] = d
		}
		if d > cx.Depth {
			cx.Depth = d
		}
	}
	return cx
}

// Profile accumulates execution statistics for one fingerprint. Counters
// are atomic so multiple interpreter threads can record into a shared
// profiler without taking a lock per step; the status word transitions via
// CAS, which is what makes the lifecycle monotone under concurrency.
type Profile struct {
	complexity Complexity
	firstSeen  time.Time

	count    atomic.Uint64
	totalNS  atomic.Uint64
	lastExec atomic.Int64 // unix nanos
	status   atomic.Int32

	compileNS atomic.Uint64

	jitCount   atomic.Uint64
	jitTotalNS atomic.Uint64
}

func newProfile(instrs []tac.Instruction) *Profile {
	return &Profile{
		complexity: AnalyzeComplexity(instrs),
		firstSeen:  time.Now(),
	}
}

func (p *Profile) Status() Status { return Status(p.status.Load()) }

// transition moves from exactly one expected status to next. It fails (and
// changes nothing) when another thread already decided.
func (p *Profile) transition(from, to Status) bool {
	return p.status.CompareAndSwap(int32(from), int32(to))
}

func (p *Profile) Count() uint64 { return p.count.Load() }

func (p *Profile) Complexity() Complexity { return p.complexity }

// AvgExecutionTime is the mean interpreted time per execution.
func (p *Profile) AvgExecutionTime() time.Duration {
	n := p.count.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(p.totalNS.Load() / n)
}

// AvgCompiledTime is the mean compiled-path time per loop iteration, the
// same unit interpreted executions are recorded in.
func (p *Profile) AvgCompiledTime() time.Duration {
	n := p.jitCount.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(p.jitTotalNS.Load() / n)
}

// Frequency is the observed execution rate in executions per second since
// the profile was first seen.
func (p *Profile) Frequency() float64 {
	elapsed := time.Since(p.firstSeen).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.count.Load()) / elapsed
}

// Speedup is interpreted average time over compiled average time, or zero
// when either side has no samples.
func (p *Profile) Speedup() float64 {
	jit := p.AvgCompiledTime()
	if jit == 0 {
		return 0
	}
	interp := p.AvgExecutionTime()
	if interp == 0 {
		return 0
	}
	return float64(interp) / float64(jit)
}

func (p *Profile) recordExecution(d time.Duration) uint64 {
	n := p.count.Add(1)
	p.totalNS.Add(uint64(d))
	p.lastExec.Store(time.Now().UnixNano())
	return n
}

func (p *Profile) recordCompiledExecution(d time.Duration, iterations int) {
	if iterations < 1 {
		iterations = 1
	}
	p.jitCount.Add(uint64(iterations))
	p.jitTotalNS.Add(uint64(d))
}
