// Package similarity provides vector math primitives for embedding comparison.
//
// All functions operate on float32 vectors (the embedding element type used
// throughout the organizer) and return ErrDimensionMismatch when the input
// vectors have different lengths.
package similarity

import (
	"errors"
	"math"
)

// ErrDimensionMismatch indicates that two vectors have different lengths.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Cosine calculates the cosine similarity between two vectors.
//
// The result is dot(a,b) / (|a| * |b|), in the range [-1, 1].
// If either vector has zero norm, the similarity is 0.
//
// Returns ErrDimensionMismatch if len(a) != len(b).
func Cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}

// Euclidean calculates the Euclidean (L2) distance between two vectors.
//
// Returns ErrDimensionMismatch if len(a) != len(b).
func Euclidean(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}

	return float32(math.Sqrt(sum)), nil
}

// Centroid calculates the mean vector of a non-empty set of vectors.
//
// Returns ErrDimensionMismatch if the vectors do not all share the same
// length. An empty input yields a nil centroid and no error.
func Centroid(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	dimension := len(vectors[0])
	sums := make([]float64, dimension)
	for _, vector := range vectors {
		if len(vector) != dimension {
			return nil, ErrDimensionMismatch
		}
		for i, value := range vector {
			sums[i] += float64(value)
		}
	}

	centroid := make([]float32, dimension)
	count := float64(len(vectors))
	for i, sum := range sums {
		centroid[i] = float32(sum / count)
	}

	return centroid, nil
}
