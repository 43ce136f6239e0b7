package embedding

import (
	"math"
	"testing"
)

func TestL2Normalize(t *testing.T) {
	v := L2Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("L2Normalize([3 4]) = %v, want [0.6 0.8]", v)
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("norm² = %v, want 1.0", norm)
	}
}

func TestL2NormalizeZeroVector(t *testing.T) {
	v := L2Normalize([]float32{0, 0, 0})
	for i, x := range v {
		if x != 0 {
			t.Errorf("v[%d] = %v, want 0", i, x)
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"dimension mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCosineRejectsNonFinite(t *testing.T) {
	inf := float32(math.Inf(1))
	if got := Cosine([]float32{inf, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("Cosine with Inf input = %v, want 0", got)
	}
	nan := float32(math.NaN())
	if got := Cosine([]float32{nan, 1}, []float32{1, 1}); got != 0 {
		t.Errorf("Cosine with NaN input = %v, want 0", got)
	}
}

func TestCentroid(t *testing.T) {
	c, err := Centroid([][]float32{{2, 0}, {0, 2}})
	if err != nil {
		t.Fatalf("Centroid error = %v", err)
	}
	// Mean is (1, 1); normalized to (1/√2, 1/√2).
	want := float32(1 / math.Sqrt2)
	if math.Abs(float64(c[0]-want)) > 1e-6 || math.Abs(float64(c[1]-want)) > 1e-6 {
		t.Errorf("Centroid = %v, want [%v %v]", c, want, want)
	}
}

func TestCentroidErrors(t *testing.T) {
	if _, err := Centroid(nil); err == nil {
		t.Error("Centroid(nil) error = nil, want error")
	}
	if _, err := Centroid([][]float32{{1, 2}, {1}}); err == nil {
		t.Error("Centroid(mismatched dims) error = nil, want error")
	}
}
