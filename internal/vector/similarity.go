package vector

import (
	"errors"
	"math"
)

// ErrZeroVector is returned when a zero-norm vector cannot be normalized.
var ErrZeroVector = errors.New("cannot normalize zero vector")

// InnerProduct returns the inner product of two vectors (for normalized
// vectors this equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

// L2Norm returns the Euclidean norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

// Normalize returns a copy of x scaled to unit L2 norm. A zero vector
// returns ErrZeroVector rather than dividing by zero.
func Normalize(x []float32) ([]float32, error) {
	norm := L2Norm(x)
	if norm == 0 {
		return nil, ErrZeroVector
	}
	out := make([]float32, len(x))
	inv := float32(1.0 / norm)
	for i, v := range x {
		out[i] = v * inv
	}
	return out, nil
}
