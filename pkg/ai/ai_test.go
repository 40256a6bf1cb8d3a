package ai

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := NormalizeL2([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("expected [0.6 0.8], got %v", v)
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Fatalf("expected unit norm, got %f", norm)
	}
}

func TestNormalizeL2_ZeroVector(t *testing.T) {
	v := NormalizeL2([]float32{0, 0, 0})
	for i, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector unchanged, got %f at %d", x, i)
		}
	}
}

func TestDot(t *testing.T) {
	got := Dot([]float32{1, 2, 3}, []float32{4, 5, 6})
	if got != 32 {
		t.Fatalf("expected 32, got %f", got)
	}
}
