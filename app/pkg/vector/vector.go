// Package vector holds the similarity math behind semantic task search.
package vector

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b. It is 0 when either vector
// is empty, the lengths differ, or either vector has zero norm.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// Scored pairs an item with its similarity to a query.
type Scored[T any] struct {
	Item  T
	Score float64
}

// TopK scores every item against query, keeps those at or above threshold and
// returns at most k of them ordered by descending score. Items with equal
// scores keep their input order. A non-positive k yields no results.
func TopK[T any](query []float64, items []T, embedding func(T) []float64, k int, threshold float64) []Scored[T] {
	if k <= 0 || len(items) == 0 {
		return nil
	}
	scored := make([]Scored[T], 0, len(items))
	for _, item := range items {
		vec := embedding(item)
		if len(vec) == 0 {
			continue
		}
		score := Cosine(query, vec)
		if score < threshold {
			continue
		}
		scored = append(scored, Scored[T]{Item: item, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
