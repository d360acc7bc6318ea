package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// StageStats summarises the recent samples of one chat stage.
type StageStats struct {
	Stage   string  `json:"stage"`
	Samples int     `json:"samples"`
	LastMS  float64 `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
}

// stageWindow keeps a fixed ring of latency samples per stage name.
type stageWindow struct {
	mu   sync.Mutex
	size int
	ring map[string]*sampleRing
}

type sampleRing struct {
	values []float64
	next   int
	count  int
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	return &stageWindow{size: size, ring: make(map[string]*sampleRing)}
}

func (w *stageWindow) Observe(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	r, ok := w.ring[stage]
	if !ok {
		r = &sampleRing{values: make([]float64, w.size)}
		w.ring[stage] = r
	}
	r.values[r.next] = ms
	r.next = (r.next + 1) % w.size
	if r.count < w.size {
		r.count++
	}
}

func (w *stageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.ring))
	for name := range w.ring {
		names = append(names, name)
	}
	slices.Sort(names)

	out := StageSnapshot{GeneratedAt: time.Now().UTC(), WindowSize: w.size}
	for _, name := range names {
		r := w.ring[name]
		if r.count == 0 {
			continue
		}
		last := r.values[(r.next-1+w.size)%w.size]
		sorted := slices.Clone(r.values[:r.count])
		slices.Sort(sorted)

		var sum float64
		for _, v := range sorted {
			sum += v
		}
		out.Stages = append(out.Stages, StageStats{
			Stage:   name,
			Samples: r.count,
			LastMS:  round2(last),
			AvgMS:   round2(sum / float64(r.count)),
			P50MS:   round2(percentile(sorted, 0.50)),
			P95MS:   round2(percentile(sorted, 0.95)),
		})
	}
	return out
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
