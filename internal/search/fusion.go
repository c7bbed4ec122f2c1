// Package search runs queries against the dense and sparse indexes and
// fuses the two rankings.
package search

import (
	"sort"

	"github.com/knowtools/know/internal/store"
)

// fusedCandidate carries one chunk through hybrid re-ranking.
type fusedCandidate struct {
	ID          string
	Score       float64
	DenseScore  float64 // normalized [0,1], 0 when the dense path missed it
	SparseScore float64 // normalized [0,1], 0 when the sparse path missed it
}

// fuse combines the two candidate lists into a single ranking. Each path's
// scores are min-max normalized within its own candidate set, then combined
// as a weighted sum. A chunk retrieved by only one path keeps its single
// normalized score with zero contribution from the other; it is never
// dropped for missing one path. Ties break by chunk ID ascending.
func fuse(dense []store.DenseResult, sparse []store.SparseResult, denseWeight, sparseWeight float64, k int) []fusedCandidate {
	denseNorm := normalizeDense(dense)
	sparseNorm := normalizeSparse(sparse)

	candidates := make(map[string]*fusedCandidate, len(denseNorm)+len(sparseNorm))
	for id, score := range denseNorm {
		candidates[id] = &fusedCandidate{ID: id, DenseScore: score}
	}
	for id, score := range sparseNorm {
		c, ok := candidates[id]
		if !ok {
			c = &fusedCandidate{ID: id}
			candidates[id] = c
		}
		c.SparseScore = score
	}

	total := denseWeight + sparseWeight
	ranked := make([]fusedCandidate, 0, len(candidates))
	for _, c := range candidates {
		c.Score = (denseWeight*c.DenseScore + sparseWeight*c.SparseScore) / total
		ranked = append(ranked, *c)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// normalizeDense min-max normalizes dense scores to [0,1] within the
// candidate set. A degenerate set where every score is equal maps to 1.
func normalizeDense(results []store.DenseResult) map[string]float64 {
	if len(results) == 0 {
		return nil
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}

	norm := make(map[string]float64, len(results))
	for _, r := range results {
		norm[r.ChunkID] = normalize(r.Score, min, max)
	}
	return norm
}

func normalizeSparse(results []store.SparseResult) map[string]float64 {
	if len(results) == 0 {
		return nil
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}

	norm := make(map[string]float64, len(results))
	for _, r := range results {
		norm[r.ChunkID] = normalize(r.Score, min, max)
	}
	return norm
}

func normalize(score, min, max float64) float64 {
	if max == min {
		return 1
	}
	return (score - min) / (max - min)
}
