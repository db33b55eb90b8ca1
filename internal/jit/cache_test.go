package jit

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"

	"mira/internal/tac"
)

// countingGenerator wraps the closure compiler and counts Compile calls.
type countingGenerator struct {
	inner CodeGenerator
	calls atomic.Int64
	delay time.Duration
}

func (g *countingGenerator) Compile(instrs []tac.Instruction, entry string) (NativeFunction, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return g.inner.Compile(instrs, entry)
}

func cacheRegion() []tac.Instruction {
	return []tac.Instruction{
		tac.Binary(tac.OpAdd, tac.Name("x"), tac.Name("x"), tac.ConstNum(1)),
		tac.Binary(tac.OpMul, tac.Name("y"), tac.Name("x"), tac.ConstNum(2)),
	}
}

// Test that repeated requests for one fingerprint compile exactly once and
// share the artifact.
func TestCacheCompilesOnce(t *testing.T) {
	cache := NewCache(DefaultConfig(), nil)
	gen := &countingGenerator{inner: NewClosureCompiler()}
	region := cacheRegion()
	fp := tac.FingerprintOf(region)

	first, err := cache.GetOrCompile(fp, region, 10, 11, gen)
	if err != nil {
		t.Fatalf("first compile: %v", err)
	}
	second, err := cache.GetOrCompile(fp, region, 10, 11, gen)
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}

	if first != second {
		t.Error("same fingerprint returned distinct regions")
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generator invoked %d times, want 1", n)
	}
	if cache.Len() != 1 {
		t.Errorf("cache size = %d, want 1", cache.Len())
	}
	if r, ok := cache.Lookup(fp); !ok || r != first {
		t.Error("Lookup does not return the compiled region")
	}
	if first.StartLine != 10 || first.EndLine != 11 {
		t.Errorf("region range = [%d, %d], want [10, 11]", first.StartLine, first.EndLine)
	}
	if first.InstructionCount != 2 {
		t.Errorf("instruction count = %d, want 2", first.InstructionCount)
	}
	if cache.TotalCompileTime() <= 0 {
		t.Error("no compile time accounted")
	}
}

// Test that concurrent misses for one fingerprint collapse into a single
// compilation.
func TestCacheConcurrentMissesCollapse(t *testing.T) {
	cache := NewCache(DefaultConfig(), nil)
	gen := &countingGenerator{inner: NewClosureCompiler(), delay: 20 * time.Millisecond}
	region := cacheRegion()
	fp := tac.FingerprintOf(region)

	const workers = 32
	regions := make([]*CompiledRegion, workers)
	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			r, err := cache.GetOrCompile(fp, region, 0, 1, gen)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			regions[i] = r
		}(i)
	}
	start.Done()
	done.Wait()

	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generator invoked %d times under contention, want 1", n)
	}
	for i := 1; i < workers; i++ {
		if regions[i] != regions[0] {
			t.Fatalf("worker %d got a different artifact", i)
		}
	}
}

// Test that a failed compilation leaves the cache untouched.
func TestCacheFailureNotCached(t *testing.T) {
	cache := NewCache(DefaultConfig(), nil)
	gen := &countingGenerator{inner: NewClosureCompiler()}
	region := []tac.Instruction{
		{Op: tac.OpCall, Result: tac.Name("r"), A: tac.Name("f"), B: tac.ConstNum(1)},
	}
	fp := tac.FingerprintOf(region)

	if _, err := cache.GetOrCompile(fp, region, 0, 0, gen); err == nil {
		t.Fatal("expected a compile error")
	}
	if cache.Len() != 0 {
		t.Errorf("cache size = %d after failure, want 0", cache.Len())
	}
	if _, ok := cache.Lookup(fp); ok {
		t.Error("failed region is resolvable")
	}

	// The cache does not memoize failures; not retrying is the
	// profiler's job.
	if _, err := cache.GetOrCompile(fp, region, 0, 0, gen); err == nil {
		t.Fatal("expected the second attempt to fail too")
	}
	if n := gen.calls.Load(); n != 2 {
		t.Errorf("generator invoked %d times, want 2", n)
	}
}

// Test that cached artifacts survive while the specializer is off.
func TestCacheWithoutOptimizations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableOptimizations = false
	cache := NewCache(cfg, nil)
	region := cacheRegion()
	fp := tac.FingerprintOf(region)

	r, err := cache.GetOrCompile(fp, region, 0, 1, NewClosureCompiler())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	env := mapEnv{"x": tac.Num(4)}
	if _, err := r.Fn(env, tac.SlotNames(region)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !env.Get("y").Equal(tac.Num(10)) {
		t.Errorf("y = %s, want 10", env.Get("y"))
	}
}

func TestCacheClear(t *testing.T) {
	cache := NewCache(DefaultConfig(), nil)
	region := cacheRegion()
	fp := tac.FingerprintOf(region)
	if _, err := cache.GetOrCompile(fp, region, 0, 1, NewClosureCompiler()); err != nil {
		t.Fatalf("compile: %v", err)
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("cache size = %d after Clear, want 0", cache.Len())
	}
	if _, ok := cache.Lookup(fp); ok {
		t.Error("cleared region still resolvable")
	}
}
