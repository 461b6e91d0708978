package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Pipeline stages timed per analyze request.
const (
	StageUploadWrite    = "upload_write"
	StageAdmissionWait  = "admission_wait"
	StageDetect         = "detect"
	StageLocateArtifact = "locate_artifact"
	StageRequestTotal   = "request_total"
)

// Detection has no target; it scales with footage length.
var stageTargetsMS = map[string]float64{
	StageUploadWrite:    2000,
	StageAdmissionWait:  5000,
	StageLocateArtifact: 50,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	// OverTarget counts windowed samples slower than TargetP95MS.
	OverTarget int `json:"over_target,omitempty"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
}

// stageSeries holds the most recent samples for one stage, oldest first.
type stageSeries struct {
	samples []float64
}

func (s *stageSeries) add(ms float64, limit int) {
	if len(s.samples) == limit {
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:limit-1]
	}
	s.samples = append(s.samples, ms)
}

func (s *stageSeries) stats(stage string) StageStats {
	n := len(s.samples)
	sorted := slices.Clone(s.samples)
	slices.Sort(sorted)

	target := stageTargetsMS[stage]
	var sum float64
	over := 0
	for _, v := range sorted {
		sum += v
		if target > 0 && v > target {
			over++
		}
	}
	return StageStats{
		Stage:       stage,
		Samples:     n,
		LastMS:      round2(s.samples[n-1]),
		AvgMS:       round2(sum / float64(n)),
		P50MS:       round2(percentile(sorted, 0.50)),
		P95MS:       round2(percentile(sorted, 0.95)),
		P99MS:       round2(percentile(sorted, 0.99)),
		TargetP95MS: target,
		OverTarget:  over,
	}
}

// stageWindow is a per-stage sliding window of latencies in milliseconds.
type stageWindow struct {
	mu     sync.Mutex
	size   int
	series map[string]*stageSeries
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	return &stageWindow{size: size, series: make(map[string]*stageSeries)}
}

func (w *stageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 || math.IsNaN(ms) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.series[stage]
	if s == nil {
		s = &stageSeries{samples: make([]float64, 0, w.size)}
		w.series[stage] = s
	}
	s.add(ms, w.size)
}

// Snapshot reports every observed stage, sorted by name.
func (w *stageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(w.series)),
	}
	for stage, s := range w.series {
		if len(s.samples) == 0 {
			continue
		}
		out.Stages = append(out.Stages, s.stats(stage))
	}
	slices.SortFunc(out.Stages, func(a, b StageStats) int {
		switch {
		case a.Stage < b.Stage:
			return -1
		case a.Stage > b.Stage:
			return 1
		}
		return 0
	})
	return out
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	switch n := len(sorted); {
	case n == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[n-1]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
