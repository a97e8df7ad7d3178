// Package vecmath provides numeric primitives on equal-length float32
// vectors. Accumulation happens in float64 so long sums keep precision.
package vecmath

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch indicates two vectors of different lengths.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyVector indicates a zero-length vector argument.
	ErrEmptyVector = errors.New("empty vector")
)

// normEpsilon is the threshold below which a norm counts as zero and
// in-place normalization becomes a no-op.
const normEpsilon = 1e-12

func checkPair(a, b []float32) error {
	if len(a) == 0 || len(b) == 0 {
		return fmt.Errorf("%w: lengths %d and %d", ErrEmptyVector, len(a), len(b))
	}
	if len(a) != len(b) {
		return fmt.Errorf("%w: lengths %d and %d", ErrDimensionMismatch, len(a), len(b))
	}
	return nil
}

// Dot returns the dot product of a and b.
func Dot(a, b []float32) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// CosineSimilarity returns the cosine of the angle between a and b.
// A zero-norm operand yields 0 rather than NaN.
func CosineSimilarity(a, b []float32) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Norm returns the Euclidean norm of v, 0 for the zero vector.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// AddInPlace adds src into dst element-wise. Both slices must have the
// same length; callers hold that by construction.
func AddInPlace(dst, src []float32) {
	for i := range src {
		dst[i] += src[i]
	}
}

// DivInPlace divides every element of v by s.
func DivInPlace(v []float32, s float64) {
	inv := 1.0 / s
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// NormalizeL2InPlace scales v to unit length. Vectors with a norm below
// the zero threshold are left unchanged so all-zero pooled outputs never
// turn into NaN.
func NormalizeL2InPlace(v []float32) {
	n := Norm(v)
	if n < normEpsilon {
		return
	}
	DivInPlace(v, n)
}
