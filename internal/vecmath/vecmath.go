// Package vecmath holds small vector-arithmetic helpers shared by the
// semantic chunker and the adapter so the same cosine-similarity
// definition is used everywhere a similarity score crosses a spec boundary.
package vecmath

import "math"

// Cosine returns the cosine similarity between a and b, or 0 if either is
// the zero vector.
func Cosine(a, b []float32) float64 {
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// L2Normalize returns a unit-length copy of v, or a zero-vector copy if v is
// the zero vector.
func L2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sumSq == 0 {
		return out
	}
	norm := math.Sqrt(sumSq)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// MaxSim is the ColBERT-style late-interaction comparator between two
// per-token matrices: for every row in a, take its best cosine match in b,
// then sum those best matches.
func MaxSim(a, b [][]float32) float64 {
	var total float64
	for _, rowA := range a {
		best := -1.0
		for _, rowB := range b {
			if s := Cosine(rowA, rowB); s > best {
				best = s
			}
		}
		if best > -1.0 {
			total += best
		}
	}
	return total
}
