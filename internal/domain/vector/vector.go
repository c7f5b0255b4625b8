// Package vector holds L2-normalized embedding vectors and the similarity measure over them.
package vector

import (
	"errors"
	"math"
)

// ErrZeroVector signals an embedding with no magnitude, which cannot be normalized.
var ErrZeroVector = errors.New("zero-length embedding")

// Vector is an immutable L2-normalized embedding.
type Vector struct {
	values []float32
}

// Normalize copies raw into a new unit-length Vector.
func Normalize(raw []float32) (Vector, error) {
	var sum float64
	for _, v := range raw {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return Vector{}, ErrZeroVector
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(float64(v) / norm)
	}
	return Vector{values: out}, nil
}

// Dim returns the vector dimensionality.
func (v Vector) Dim() int { return len(v.values) }

// IsZero reports whether the vector was never initialized.
func (v Vector) IsZero() bool { return len(v.values) == 0 }

// Values returns a copy of the components.
func (v Vector) Values() []float32 {
	out := make([]float32, len(v.values))
	copy(out, v.values)
	return out
}

// Similarity returns the cosine similarity of two normalized vectors, in [-1, 1].
// Vectors of different dimensionality score 0.
func Similarity(a, b Vector) float64 {
	if len(a.values) != len(b.values) {
		return 0
	}
	var dot float64
	for i := range a.values {
		dot += float64(a.values[i]) * float64(b.values[i])
	}
	// float32 rounding can push a self-similarity slightly past 1
	return math.Max(-1, math.Min(1, dot))
}
