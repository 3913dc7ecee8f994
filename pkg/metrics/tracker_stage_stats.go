// Package metrics keeps in-process run statistics with percentile
// durations.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the number of duration samples kept per stage.
const DefaultWindow = 200

// Run results counted by StageTracker.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultLocked    = "locked"
)

// StageTracker keeps a sliding window of run durations for one stage plus
// result counters.
type StageTracker struct {
	mu         sync.Mutex
	samples    []time.Duration
	maxSamples int
	counts     map[string]int64
	lastRun    time.Time
	lastResult string
}

func NewStageTracker(window int) *StageTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &StageTracker{
		samples:    make([]time.Duration, 0, window),
		maxSamples: window,
		counts:     make(map[string]int64),
	}
}

// Record adds one run. Locked runs are counted but carry no duration.
func (t *StageTracker) Record(result string, d time.Duration, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[result]++
	t.lastRun = at
	t.lastResult = result
	if result == ResultLocked {
		return
	}

	if len(t.samples) >= t.maxSamples {
		// drop the oldest tenth to avoid shifting on every record
		drop := t.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		t.samples = t.samples[drop:]
	}
	t.samples = append(t.samples, d)
}

// StageStats is a snapshot of one stage.
type StageStats struct {
	Runs       int64            `json:"runs"`
	Results    map[string]int64 `json:"results"`
	LastRun    *time.Time       `json:"last_run,omitempty"`
	LastResult string           `json:"last_result,omitempty"`
	MinMs      float64          `json:"min_ms"`
	MaxMs      float64          `json:"max_ms"`
	AvgMs      float64          `json:"avg_ms"`
	P50Ms      float64          `json:"p50_ms"`
	P95Ms      float64          `json:"p95_ms"`
	Samples    int              `json:"samples"`
}

func (t *StageTracker) Stats() StageStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := StageStats{Results: make(map[string]int64, len(t.counts)), LastResult: t.lastResult}
	for k, v := range t.counts {
		stats.Results[k] = v
		stats.Runs += v
	}
	if !t.lastRun.IsZero() {
		last := t.lastRun
		stats.LastRun = &last
	}

	n := len(t.samples)
	if n == 0 {
		return stats
	}
	sorted := make([]time.Duration, n)
	copy(sorted, t.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	stats.Samples = n
	stats.MinMs = millis(sorted[0])
	stats.MaxMs = millis(sorted[n-1])
	stats.AvgMs = millis(sum / time.Duration(n))
	stats.P50Ms = millis(percentile(sorted, 0.50))
	stats.P95Ms = millis(percentile(sorted, 0.95))
	return stats
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	return sorted[int(float64(len(sorted)-1)*p)]
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Registry holds one StageTracker per stage.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*StageTracker
	window   int
	now      func() time.Time
}

func NewRegistry(window int) *Registry {
	return &Registry{
		trackers: make(map[string]*StageTracker),
		window:   window,
		now:      time.Now,
	}
}

// RecordRun files a run under stage.
func (r *Registry) RecordRun(stage, result string, d time.Duration) {
	r.mu.RLock()
	tracker, ok := r.trackers[stage]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if tracker, ok = r.trackers[stage]; !ok {
			tracker = NewStageTracker(r.window)
			r.trackers[stage] = tracker
		}
		r.mu.Unlock()
	}
	tracker.Record(result, d, r.now().UTC())
}

// Snapshot returns stats for every stage seen so far.
func (r *Registry) Snapshot() map[string]StageStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]StageStats, len(r.trackers))
	for name, tracker := range r.trackers {
		out[name] = tracker.Stats()
	}
	return out
}
