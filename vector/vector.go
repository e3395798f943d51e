// Package vector implements the fixed-dimension float vector type and the
// HNSW (hierarchical navigable small-world) proximity graph used for
// approximate nearest-neighbor search.
package vector

import (
	"encoding/binary"
	"math"

	"github.com/oarkflow/coreengine/errs"
)

// Vector is a fixed-dimension sequence of single-precision floats.
type Vector []float32

// Serialize writes u32 dimension followed by dimension×4 little-endian
// float32 bytes.
func (v Vector) Serialize() []byte {
	buf := make([]byte, 4+len(v)*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4+i*4:8+i*4], math.Float32bits(f))
	}
	return buf
}

// Deserialize parses the wire format written by Serialize.
func Deserialize(buf []byte) (Vector, error) {
	if len(buf) < 4 {
		return nil, errs.Corruptf("vector.Deserialize", "buffer too short for dimension header")
	}
	dim := binary.LittleEndian.Uint32(buf[0:4])
	want := 4 + int(dim)*4
	if len(buf) != want {
		return nil, errs.Corruptf("vector.Deserialize", "expected %d bytes for dimension %d, got %d", want, dim, len(buf))
	}
	v := make(Vector, dim)
	for i := range v {
		off := 4 + i*4
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
	}
	return v, nil
}

// Magnitude returns the Euclidean norm of v.
func (v Vector) Magnitude() float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// Normalize returns v scaled to unit length; a zero vector is returned
// unchanged.
func (v Vector) Normalize() Vector {
	mag := v.Magnitude()
	if mag == 0 {
		out := make(Vector, len(v))
		copy(out, v)
		return out
	}
	out := make(Vector, len(v))
	for i, f := range v {
		out[i] = f / mag
	}
	return out
}

// Metric selects the distance function used by the index.
type Metric int

const (
	Cosine Metric = iota
	Euclidean
	DotProduct
	Manhattan
)

// Distance computes the configured metric's distance between a and b.
// Smaller is closer for every metric, including DotProduct (negated dot
// product, for maximum inner product search).
func Distance(metric Metric, a, b Vector) float64 {
	switch metric {
	case Euclidean:
		return euclidean(a, b)
	case DotProduct:
		return -dot(a, b)
	case Manhattan:
		return manhattan(a, b)
	default:
		return cosineDistance(a, b)
	}
}

func dot(a, b Vector) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func euclidean(a, b Vector) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func manhattan(a, b Vector) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

// cosineDistance is 1 - cos(a,b); an undefined cosine on a zero vector
// yields distance 1 (treated as orthogonal).
func cosineDistance(a, b Vector) float64 {
	na := a.Magnitude()
	nb := b.Magnitude()
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot(a, b) / (float64(na) * float64(nb))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return 1 - cos
}
