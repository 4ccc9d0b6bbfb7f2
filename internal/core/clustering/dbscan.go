package clustering

import "face-search-go/internal/core/search"

// Labels assigned by DBSCAN. Cluster IDs start at 0 and follow discovery
// order; they are stable only within one invocation.
const (
	labelUndefined = -2
	// Noise marks points not assigned to any dense region.
	Noise = -1
)

// DBSCAN clusters the vectors by density over cosine distance
// (1 - cosine similarity). eps is the neighborhood radius, minPts the
// minimum neighborhood size for a core point. Returns one label per
// vector; Noise for unclustered points.
func DBSCAN(vectors [][]float32, eps float64, minPts int) []int {
	n := len(vectors)
	if n == 0 {
		return nil
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = labelUndefined
	}

	clusterID := -1
	for i := 0; i < n; i++ {
		if labels[i] != labelUndefined {
			continue
		}

		neighbors := rangeQuery(vectors, i, eps)
		if len(neighbors) < minPts {
			labels[i] = Noise
			continue
		}

		clusterID++
		labels[i] = clusterID

		// Seed set: neighbors minus the point itself.
		seed := make([]int, 0, len(neighbors))
		for _, j := range neighbors {
			if j != i {
				seed = append(seed, j)
			}
		}

		for len(seed) > 0 {
			q := seed[0]
			seed = seed[1:]

			if labels[q] == Noise {
				labels[q] = clusterID
			}
			if labels[q] != labelUndefined {
				continue
			}
			labels[q] = clusterID

			qNeighbors := rangeQuery(vectors, q, eps)
			if len(qNeighbors) >= minPts {
				seed = append(seed, qNeighbors...)
			}
		}
	}

	return labels
}

// rangeQuery returns the indexes of all vectors within eps cosine
// distance of vectors[idx], the point itself included.
func rangeQuery(vectors [][]float32, idx int, eps float64) []int {
	var result []int
	q := vectors[idx]
	for i, v := range vectors {
		if CosineDistance(q, v) <= eps {
			result = append(result, i)
		}
	}
	return result
}

// CosineDistance returns 1 - cosine similarity.
func CosineDistance(a, b []float32) float64 {
	return 1.0 - search.CosineSimilarity(a, b)
}
