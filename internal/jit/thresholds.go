package jit

import "time"

// Default threshold floors and ceilings. The effective bounds also honor
// the configured seed: adaptation may only loosen a threshold below its
// starting value, never tighten it above one, so a seed outside [floor,
// ceiling] widens the band instead of being clamped back into it.
const (
	minCountFloor   = 500
	minCountCeiling = 5000
	minFreqFloor    = 50.0
	minFreqCeiling  = 500.0

	// smoothingAlpha is the exponential smoothing factor applied to the
	// observed success rate and speedup.
	smoothingAlpha = 0.1
)

// Thresholds are the process-wide knobs of the candidacy test, plus the
// smoothed feedback metrics that drive their adaptation. All access goes
// through the Profiler's lock.
type Thresholds struct {
	MinExecutionCount   uint64
	MinFrequency        float64 // executions per second
	MinAvgExecutionTime time.Duration
	MaxComplexity       int
	MinSpeedup          float64

	// Exponentially smoothed observations.
	SuccessRate float64
	AvgSpeedup  float64

	// Effective adaptation bounds, fixed from the seed at construction.
	countFloor   uint64
	countCeiling uint64
	freqFloor    float64
	freqCeiling  float64
}

func defaultThresholds(cfg Config) Thresholds {
	const seedFreq = 100.0
	return Thresholds{
		MinExecutionCount:   cfg.MinExecutionCount,
		MinFrequency:        seedFreq,
		MinAvgExecutionTime: cfg.MinAvgExecutionTime,
		MaxComplexity:       50,
		MinSpeedup:          1.5,

		countFloor:   min(cfg.MinExecutionCount, minCountFloor),
		countCeiling: max(cfg.MinExecutionCount, minCountCeiling),
		freqFloor:    min(seedFreq, minFreqFloor),
		freqCeiling:  max(seedFreq, minFreqCeiling),
	}
}

// adjust folds one observation of compilation success rate and speedup into
// the smoothed metrics, then moves the thresholds: toward compiling more
// only when compilation is clearly paying off, toward compiling less only
// when it is clearly not, and holds otherwise.
func (t *Thresholds) adjust(successRate, speedup float64) {
	t.SuccessRate = smoothingAlpha*successRate + (1-smoothingAlpha)*t.SuccessRate
	t.AvgSpeedup = smoothingAlpha*speedup + (1-smoothingAlpha)*t.AvgSpeedup

	switch {
	case t.SuccessRate > 0.8 && t.AvgSpeedup > 2.0:
		t.MinExecutionCount = max(t.countFloor, uint64(float64(t.MinExecutionCount)*0.9))
		t.MinFrequency = max(t.freqFloor, t.MinFrequency*0.9)
	case t.SuccessRate < 0.5 || t.AvgSpeedup < 1.2:
		t.MinExecutionCount = min(t.countCeiling, uint64(float64(t.MinExecutionCount)*1.1))
		t.MinFrequency = min(t.freqCeiling, t.MinFrequency*1.1)
	}
}
