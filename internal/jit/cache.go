package jit

import (
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mira/internal/tac"
)

// CompiledRegion is one successfully compiled artifact. The cache owns it;
// callers borrow the function handle for the duration of one execution.
type CompiledRegion struct {
	Fingerprint tac.Fingerprint
	Fn          NativeFunction

	// Line range the region was first compiled from. Dispatchers keep
	// their own installation records, so a region compiled at one
	// location can serve an identical code shape elsewhere.
	StartLine int
	EndLine   int

	InstructionCount int
	CompileTime      time.Duration

	execCount atomic.Uint64
}

func (r *CompiledRegion) ExecCount() uint64 { return r.execCount.Load() }

func (r *CompiledRegion) noteExecution() { r.execCount.Add(1) }

// Cache stores compiled regions by fingerprint. Successful entries are
// append-only: a fingerprint is compiled at most once for the cache's
// lifetime, and concurrent misses for the same fingerprint collapse into a
// single compilation whose outcome every caller shares.
type Cache struct {
	mu      sync.RWMutex
	regions map[tac.Fingerprint]*CompiledRegion

	group      singleflight.Group
	specialize bool
	logger     *zap.Logger

	compileNS atomic.Uint64
}

func NewCache(cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		regions:    make(map[tac.Fingerprint]*CompiledRegion),
		specialize: cfg.EnableOptimizations,
		logger:     logger,
	}
}

// Lookup returns the compiled region for fp, if any. O(1), read-locked.
func (c *Cache) Lookup(fp tac.Fingerprint) (*CompiledRegion, bool) {
	c.mu.RLock()
	r, ok := c.regions[fp]
	c.mu.RUnlock()
	return r, ok
}

// GetOrCompile returns the cached region for fp or compiles one: the
// region is specialized (when optimizations are on), handed to gen, and
// inserted on success. A failed compilation leaves the cache untouched and
// returns the generator's error; the caller reports it to the profiler.
func (c *Cache) GetOrCompile(fp tac.Fingerprint, instrs []tac.Instruction, startLine, endLine int, gen CodeGenerator) (*CompiledRegion, error) {
	if r, ok := c.Lookup(fp); ok {
		return r, nil
	}

	v, err, _ := c.group.Do(string(fp[:]), func() (interface{}, error) {
		// Re-check: the flight may have been won between our miss and
		// joining the group in a previous call.
		if r, ok := c.Lookup(fp); ok {
			return r, nil
		}

		entry := "region_" + fp.Short()
		body := instrs
		if c.specialize {
			var stats SpecializeStats
			body, stats = Specialize(instrs)
			c.logger.Debug("specialized region",
				zap.String("region", entry),
				zap.Int("instructions", stats.Total),
				zap.Int("specialized", stats.Specialized))
		}

		start := time.Now()
		fn, err := gen.Compile(body, entry)
		elapsed := time.Since(start)
		if err != nil {
			c.logger.Debug("compilation failed",
				zap.String("region", entry),
				zap.Error(err))
			return nil, err
		}

		r := &CompiledRegion{
			Fingerprint:      fp,
			Fn:               fn,
			StartLine:        startLine,
			EndLine:          endLine,
			InstructionCount: len(instrs),
			CompileTime:      elapsed,
		}
		c.mu.Lock()
		c.regions[fp] = r
		c.mu.Unlock()
		c.compileNS.Add(uint64(elapsed))

		c.logger.Info("compiled region",
			zap.String("region", entry),
			zap.Int("instructions", len(instrs)),
			zap.Duration("compile_time", elapsed))
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CompiledRegion), nil
}

// TotalCompileTime is the cumulative time spent in successful
// compilations.
func (c *Cache) TotalCompileTime() time.Duration {
	return time.Duration(c.compileNS.Load())
}

// Len reports the number of cached regions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.regions)
}

// Clear removes every entry. Callers must guarantee no compiled execution
// is in flight; this runs only at controlled lifecycle points such as
// interpreter shutdown.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.regions)
	c.regions = make(map[tac.Fingerprint]*CompiledRegion)
	c.mu.Unlock()
	c.logger.Info("cache cleared", zap.Int("evicted", n))
}
