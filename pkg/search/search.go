// Package search ranks a namespace's content vectors against a query
// embedding by exact cosine similarity.
package search

import (
	"math"
	"slices"

	"github.com/papercomputeco/vectorvault/pkg/storage"
)

// Result is one ranked candidate.
type Result struct {
	VectorID int64   `json:"vector_id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// Cosine returns (a·b) / (‖a‖·‖b‖). Vectors of different length are compared
// over their common prefix. A zero vector yields 0.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))

	var dot, na, nb float64
	for i := range n {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	for _, x := range a[n:] {
		na += float64(x) * float64(x)
	}
	for _, y := range b[n:] {
		nb += float64(y) * float64(y)
	}

	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK scores every candidate against query and returns the k best, highest
// similarity first. Ties are broken by ascending vector id. k <= 0 returns
// every candidate.
func TopK(query []float32, candidates []storage.ContentVector, k int) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{
			VectorID: c.ID,
			Text:     c.Text,
			Score:    Cosine(query, c.Embedding),
		})
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.VectorID < b.VectorID:
			return -1
		case a.VectorID > b.VectorID:
			return 1
		}
		return 0
	})

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results
}
