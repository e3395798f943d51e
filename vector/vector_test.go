package vector

import (
	"math"
	"testing"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	v := Vector{1, 2, 3, 4.5}
	got, err := Deserialize(v.Serialize())
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(got) != len(v) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("element %d mismatch: got %v want %v", i, got[i], v[i])
		}
	}
}

func TestDeserializeRejectsShortBuffer(t *testing.T) {
	if _, err := Deserialize([]byte{1, 2}); err == nil {
		t.Fatalf("expected error for truncated buffer")
	}
}

func TestCosineDistanceZeroVectorIsOrthogonal(t *testing.T) {
	a := Vector{0, 0, 0}
	b := Vector{1, 2, 3}
	if d := Distance(Cosine, a, b); d != 1 {
		t.Fatalf("expected distance 1 for zero vector, got %v", d)
	}
}

func TestCosineDistanceIdenticalVectorsIsZero(t *testing.T) {
	a := Vector{1, 2, 3}
	d := Distance(Cosine, a, a)
	if math.Abs(d) > 1e-6 {
		t.Fatalf("expected ~0 distance for identical vectors, got %v", d)
	}
}

func TestEuclideanAndManhattan(t *testing.T) {
	a := Vector{0, 0}
	b := Vector{3, 4}
	if d := Distance(Euclidean, a, b); math.Abs(d-5) > 1e-6 {
		t.Fatalf("expected euclidean distance 5, got %v", d)
	}
	if d := Distance(Manhattan, a, b); d != 7 {
		t.Fatalf("expected manhattan distance 7, got %v", d)
	}
}
