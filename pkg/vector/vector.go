package vector

import (
	"math"
	"sort"

	"github.com/strata-systems/strata/pkg/types"
)

// Score rates how well stored matches query under the metric; higher is
// better for every metric so callers can sort uniformly. Euclidean
// distances are negated. Vectors must share a length; the controller
// enforces that before calling.
func Score(metric types.DistanceMetric, query, stored []float32) float64 {
	switch metric {
	case types.MetricCosine:
		return cosine(query, stored)
	case types.MetricEuclidean:
		return -euclidean(query, stored)
	case types.MetricDotProduct:
		return dot(query, stored)
	default:
		return 0
	}
}

// cosine returns the cosine similarity. A zero-norm operand (all-zeros
// query or stored vector) yields 0 rather than dividing by zero.
func cosine(a, b []float32) float64 {
	var dotSum, normA, normB float64
	for i := range a {
		dotSum += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotSum / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Search scans entries and returns the top-k keys by metric, best first.
// Ties break by key ascending. NaN scores sort last so a poisoned vector
// cannot shadow real matches.
func Search(metric types.DistanceMetric, entries []types.VectorEntry, query []float32, k int) []types.SearchResult {
	if k <= 0 || len(entries) == 0 {
		return nil
	}
	results := make([]types.SearchResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, types.SearchResult{
			Key:   e.Key,
			Score: Score(metric, query, e.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		si, sj := results[i].Score, results[j].Score
		iNaN, jNaN := math.IsNaN(si), math.IsNaN(sj)
		if iNaN != jNaN {
			return jNaN
		}
		if !iNaN && si != sj {
			return si > sj
		}
		return results[i].Key < results[j].Key
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}
