package consistency

import "math"

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// their lengths differ or either is the zero vector.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// centroid is the mean of the L2-normalized members of vectors having
// length dim. Vectors of any other length, or of zero norm, are skipped.
func centroid(vectors [][]float32, dim int) []float32 {
	sum := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for i, x := range v {
			sum[i] += float64(x) / norm
		}
		n++
	}
	out := make([]float32, dim)
	if n == 0 {
		return out
	}
	for i := range sum {
		out[i] = float32(sum[i] / float64(n))
	}
	return out
}

// dominantDim returns the most common vector length, preferring the longer
// one on a tie.
func dominantDim(vectors [][]float32) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, v := range vectors {
		counts[len(v)]++
	}
	for dim, c := range counts {
		if dim == 0 {
			continue
		}
		if c > bestCount || (c == bestCount && dim > best) {
			best, bestCount = dim, c
		}
	}
	return best
}
