package jit

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"mira/internal/tac"
)

// Profiler owns all execution profiles, keyed by fingerprint, plus the
// adaptive thresholds. One Profiler may be shared by any number of
// interpreter instances: per-profile counters are atomic, the map and the
// thresholds sit behind a read-mostly lock, and profiles are never handed
// out as mutable aliases.
type Profiler struct {
	mu         sync.RWMutex
	profiles   map[tac.Fingerprint]*Profile
	thresholds Thresholds

	candidates atomic.Uint64
	successes  atomic.Uint64
	failures   atomic.Uint64
}

func NewProfiler(cfg Config) *Profiler {
	return &Profiler{
		profiles:   make(map[tac.Fingerprint]*Profile),
		thresholds: defaultThresholds(cfg.Normalize()),
	}
}

func (p *Profiler) lookup(fp tac.Fingerprint) *Profile {
	p.mu.RLock()
	prof := p.profiles[fp]
	p.mu.RUnlock()
	return prof
}

func (p *Profiler) getOrCreate(fp tac.Fingerprint, region []tac.Instruction) *Profile {
	if prof := p.lookup(fp); prof != nil {
		return prof
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if prof, ok := p.profiles[fp]; ok {
		return prof
	}
	prof := newProfile(region)
	p.profiles[fp] = prof
	return prof
}

// RecordExecution notes one interpreted execution of a region. On first
// sight of a fingerprint the region's static complexity is computed once
// and stored immutably. Once the execution count reaches the adaptive
// minimum, the candidacy test runs; its decision is terminal.
func (p *Profiler) RecordExecution(fp tac.Fingerprint, region []tac.Instruction, d time.Duration) {
	if fp.IsEmpty() {
		return
	}
	prof := p.getOrCreate(fp, region)
	n := prof.recordExecution(d)

	if prof.Status() == Unanalyzed && n >= p.Thresholds().MinExecutionCount {
		p.analyze(prof)
	}
}

// analyze runs the candidacy test. The CAS transitions make it decide at
// most once per fingerprint even when several threads race here.
func (p *Profiler) analyze(prof *Profile) {
	t := p.Thresholds()
	cx := prof.Complexity()

	reject := prof.Frequency() < t.MinFrequency ||
		prof.AvgExecutionTime() < t.MinAvgExecutionTime ||
		cx.OpCount > t.MaxComplexity
	if reject {
		prof.transition(Unanalyzed, InterpreterOnly)
		return
	}
	if prof.transition(Unanalyzed, Candidate) {
		p.candidates.Add(1)
	}
}

// ShouldCompile reports whether fp is a compilation candidate. An unseen
// fingerprint is simply not one; absence of data is never a fault.
func (p *Profiler) ShouldCompile(fp tac.Fingerprint) bool {
	prof := p.lookup(fp)
	return prof != nil && prof.Status() == Candidate
}

// RecordCompilation resolves a candidate into Compiled or Failed. Both
// outcomes are terminal: a region that failed to compile is never retried.
func (p *Profiler) RecordCompilation(fp tac.Fingerprint, success bool, compileTime time.Duration) {
	prof := p.lookup(fp)
	if prof == nil {
		return
	}
	prof.compileNS.Store(uint64(compileTime))
	if success {
		if prof.transition(Candidate, Compiled) {
			p.successes.Add(1)
		}
	} else {
		if prof.transition(Candidate, Failed) {
			p.failures.Add(1)
		}
	}
}

// RecordCompiledExecution accumulates compiled-path timing: d covering
// iterations loop iterations. Interpreted samples are per iteration, so
// spreading a compiled call over its iterations keeps the speedup ratio in
// one unit.
func (p *Profiler) RecordCompiledExecution(fp tac.Fingerprint, d time.Duration, iterations int) {
	if prof := p.lookup(fp); prof != nil {
		prof.recordCompiledExecution(d, iterations)
	}
}

// UpdateThresholds recomputes the smoothed success rate and speedup from
// everything observed so far and applies the adaptation rule. The
// dispatcher calls it periodically; it is a no-op until at least one
// compilation has been attempted.
func (p *Profiler) UpdateThresholds() {
	succ, fail := p.successes.Load(), p.failures.Load()
	attempts := succ + fail
	if attempts == 0 {
		return
	}
	successRate := float64(succ) / float64(attempts)

	var total float64
	var samples int
	p.mu.RLock()
	for _, prof := range p.profiles {
		if prof.Status() != Compiled {
			continue
		}
		if s := prof.Speedup(); s > 0 {
			total += s
			samples++
		}
	}
	p.mu.RUnlock()

	speedup := 1.0
	if samples > 0 {
		speedup = total / float64(samples)
	}

	p.mu.Lock()
	p.thresholds.adjust(successRate, speedup)
	p.mu.Unlock()
}

// Thresholds returns a snapshot of the current thresholds.
func (p *Profiler) Thresholds() Thresholds {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.thresholds
}

// Priority orders candidates when compile capacity is contended. It weighs
// frequency, average time, total count and a complexity sweet spot; an
// unseen fingerprint is VeryLow.
type Priority int

const (
	VeryLow Priority = iota
	Low
	Medium
	High
	VeryHigh
)

func (pr Priority) String() string {
	switch pr {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case VeryHigh:
		return "very-high"
	default:
		return "very-low"
	}
}

func (p *Profiler) Priority(fp tac.Fingerprint) Priority {
	prof := p.lookup(fp)
	if prof == nil {
		return VeryLow
	}

	var score float64

	switch freq := prof.Frequency(); {
	case freq > 1000:
		score += 2.0
	case freq > 500:
		score += 1.5
	case freq > 100:
		score += 1.0
	}

	switch avg := prof.AvgExecutionTime(); {
	case avg > 100*time.Microsecond:
		score += 2.0
	case avg > 50*time.Microsecond:
		score += 1.5
	case avg > 10*time.Microsecond:
		score += 1.0
	}

	switch n := prof.Count(); {
	case n > 10000:
		score += 2.0
	case n > 5000:
		score += 1.5
	case n > 1000:
		score += 1.0
	}

	cx := prof.Complexity()
	if cx.OpCount >= 3 && cx.OpCount <= 20 {
		score += 1.0
	}
	if cx.Expensive {
		score += 0.5
	}

	switch {
	case score >= 6.0:
		return VeryHigh
	case score >= 4.0:
		return High
	case score >= 2.0:
		return Medium
	case score >= 1.0:
		return Low
	default:
		return VeryLow
	}
}

// ProfileSnapshot is a read-only copy of one profile's observable state.
type ProfileSnapshot struct {
	Status      Status
	Count       uint64
	AvgTime     time.Duration
	AvgCompiled time.Duration
	Speedup     float64
	Complexity  Complexity
}

// Snapshot returns the observable state of a fingerprint's profile.
func (p *Profiler) Snapshot(fp tac.Fingerprint) (ProfileSnapshot, bool) {
	prof := p.lookup(fp)
	if prof == nil {
		return ProfileSnapshot{}, false
	}
	return ProfileSnapshot{
		Status:      prof.Status(),
		Count:       prof.Count(),
		AvgTime:     prof.AvgExecutionTime(),
		AvgCompiled: prof.AvgCompiledTime(),
		Speedup:     prof.Speedup(),
		Complexity:  prof.Complexity(),
	}, true
}
