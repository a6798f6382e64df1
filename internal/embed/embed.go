// Package embed combines a record's per-field sparse vectors into the
// single dense, L2-normalised embedding the corpus and scorer operate on
// (spec.md §4.3).
package embed

import (
	"math"

	"github.com/nblibris/libris-match/internal/tokenize"
)

// Embedder projects sparse per-field vectors onto the full vocabulary axis
// and L2-normalises the sum. Dimension D equals the vocabulary size V.
type Embedder struct {
	Dim int
}

// New creates an Embedder for a vocabulary of the given size.
func New(dim int) *Embedder {
	return &Embedder{Dim: dim}
}

// Embed sums the weighted field vectors into a dense embedding and
// L2-normalises it. Records where every field was entirely
// out-of-vocabulary receive the zero sentinel vector, which can never
// match (cosine similarity 0 against anything) per spec.md §4.3.
func (e *Embedder) Embed(fields map[string]tokenize.FieldVector) []float32 {
	dense := make([]float64, e.Dim)
	for _, fv := range fields {
		for _, wt := range fv {
			if int(wt.ID) < e.Dim {
				dense[wt.ID] += wt.Weight
			}
		}
	}

	var normSq float64
	for _, v := range dense {
		normSq += v * v
	}
	out := make([]float32, e.Dim)
	if normSq == 0 {
		return out // zero sentinel vector
	}
	norm := math.Sqrt(normSq)
	for i, v := range dense {
		out[i] = float32(v / norm)
	}
	return out
}

// IsZero reports whether an embedding is the all-zero sentinel vector
// produced for all-OOV records.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Norm returns the L2 norm of a dense vector, for invariant checks
// (spec.md §8 property 1).
func Norm(v []float32) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	return math.Sqrt(sumSq)
}
