// Package semantic ranks events against a query embedding.
package semantic

import (
	"math"
	"sort"
)

const (
	// DefaultThreshold is the minimum similarity for keyword-only searches.
	DefaultThreshold = 0.3
	// DateRangeThreshold applies when a date range already narrows the set.
	DateRangeThreshold = 0.05
	// UpcomingPrefilterSize is the embedded-event count above which only
	// events that have not started yet are ranked.
	UpcomingPrefilterSize = 200
)

// Cosine returns the cosine similarity of a and b in [-1, 1]. Vectors of
// different length or with a zero norm score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}

// Candidate is an item with an optional embedding.
type Candidate[T any] struct {
	Item      T
	Embedding []float32
}

// Scored is a candidate that passed the threshold.
type Scored[T any] struct {
	Item  T
	Score float64
}

// Rank scores candidates against query, drops those without an embedding or
// below threshold, and returns at most limit results best first. Ties keep
// input order.
func Rank[T any](query []float32, candidates []Candidate[T], threshold float64, limit int) []Scored[T] {
	if len(query) == 0 {
		return nil
	}
	out := make([]Scored[T], 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		score := Cosine(query, c.Embedding)
		if score < threshold {
			continue
		}
		out = append(out, Scored[T]{Item: c.Item, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Threshold picks the similarity cut-off for a search.
func Threshold(hasDateRange bool) float64 {
	if hasDateRange {
		return DateRangeThreshold
	}
	return DefaultThreshold
}
