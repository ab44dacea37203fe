package similarity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdb/organizer-go/pkg/similarity"
)

func TestCosineIdenticalVectors(t *testing.T) {
	a := []float32{0.5, 0.3, 0.2}

	sim, err := similarity.Cosine(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-6, "Identical vectors should have similarity 1")
}

func TestCosineOrthogonalVectors(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	sim, err := similarity.Cosine(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-6, "Orthogonal vectors should have similarity 0")
}

func TestCosineOppositeVectors(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}

	sim, err := similarity.Cosine(a, b)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-6)
}

func TestCosineZeroNorm(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}

	sim, err := similarity.Cosine(a, b)
	require.NoError(t, err)
	assert.Equal(t, float32(0), sim, "Zero-norm vector should yield similarity 0")
}

func TestCosineDimensionMismatch(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{1, 2, 3}

	_, err := similarity.Cosine(a, b)
	assert.ErrorIs(t, err, similarity.ErrDimensionMismatch)
}

func TestEuclideanDistance(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}

	distance, err := similarity.Euclidean(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, distance, 1e-6)

	same, err := similarity.Euclidean(b, b)
	require.NoError(t, err)
	assert.Equal(t, float32(0), same)
}

func TestEuclideanDimensionMismatch(t *testing.T) {
	_, err := similarity.Euclidean([]float32{1}, []float32{1, 2})
	assert.ErrorIs(t, err, similarity.ErrDimensionMismatch)
}

func TestCentroid(t *testing.T) {
	vectors := [][]float32{
		{0, 0, 0},
		{2, 4, 6},
	}

	centroid, err := similarity.Centroid(vectors)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, centroid)
}

func TestCentroidEmptyInput(t *testing.T) {
	centroid, err := similarity.Centroid(nil)
	require.NoError(t, err)
	assert.Nil(t, centroid)
}

func TestCentroidDimensionMismatch(t *testing.T) {
	vectors := [][]float32{
		{1, 2},
		{1, 2, 3},
	}

	_, err := similarity.Centroid(vectors)
	assert.ErrorIs(t, err, similarity.ErrDimensionMismatch)
}
