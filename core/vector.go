package core

import "math"

// NormalizeVector scales v to unit length in place and returns it.
// Normalizing at write time makes cosine similarity a plain dot product
// at query time. A zero vector is returned unchanged.
func NormalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// DotProduct returns the dot product of two vectors. For unit vectors
// this is the cosine similarity. Mismatched lengths score zero.
func DotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
