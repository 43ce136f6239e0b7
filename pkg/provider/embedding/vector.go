package embedding

import (
	"fmt"
	"math"
)

// L2Normalize scales v to unit length in place and returns it. A zero
// vector is returned unchanged.
func L2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Returns 0
// when either vector has zero norm or when the result is not finite, so a
// degenerate embedding can never satisfy a similarity threshold.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return float32(sim)
}

// Centroid returns the L2-normalized element-wise mean of the given
// vectors. All vectors must share the same dimension.
func Centroid(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding: centroid of zero vectors")
	}
	dim := len(vectors[0])
	mean := make([]float32, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embedding: dimension mismatch: %d != %d", len(v), dim)
		}
		for i, x := range v {
			mean[i] += x
		}
	}
	n := float32(len(vectors))
	for i := range mean {
		mean[i] /= n
	}
	return L2Normalize(mean), nil
}
