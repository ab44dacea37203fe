package intelligence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdb/organizer-go/pkg/intelligence"
	"github.com/agentdb/organizer-go/pkg/similarity"
	"github.com/agentdb/organizer-go/pkg/storage"
)

func TestEvaluatePersistsScoreAndAccess(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	now := time.Now()

	memory := seedMemory("m1", 42, "semantic", 0.5, []float32{1, 0, 0}, now.Add(-time.Hour))
	memory.AccessCount = 3
	require.NoError(t, store.InsertMemory(ctx, memory))

	evaluator := intelligence.NewImportanceEvaluator(store, nil)
	score, err := evaluator.Evaluate(ctx, "m1", 42)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, score, float32(0.0))
	assert.LessOrEqual(t, score, float32(1.0))

	updated, err := store.GetMemory(ctx, "m1", 42)
	require.NoError(t, err)
	assert.Equal(t, score, updated.Importance)
	assert.Equal(t, uint32(4), updated.AccessCount, "Evaluation should count as an access")
	assert.True(t, updated.LastAccess.After(memory.CreatedAt))
}

func TestEvaluateMissingMemory(t *testing.T) {
	store := newFakeStore()
	evaluator := intelligence.NewImportanceEvaluator(store, nil)

	_, err := evaluator.Evaluate(context.Background(), "missing", 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEvaluateAgentIsolation(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	require.NoError(t, store.InsertMemory(ctx, seedMemory("m1", 1, "episodic", 0.5, nil, time.Now())))

	evaluator := intelligence.NewImportanceEvaluator(store, nil)
	_, err := evaluator.Evaluate(ctx, "m1", 2)
	assert.ErrorIs(t, err, storage.ErrNotFound, "Another agent's memory must be invisible")
}

func TestScoreDeterministic(t *testing.T) {
	evaluator := intelligence.NewImportanceEvaluator(newFakeStore(), nil)
	now := time.Now()

	memory := seedMemory("m1", 42, "procedural", 0.4, []float32{1, 0}, now.Add(-48*time.Hour))
	memory.AccessCount = 7
	neighbors := []*storage.Memory{
		seedMemory("m2", 42, "semantic", 0.8, []float32{0.9, 0.1}, now),
		seedMemory("m3", 42, "semantic", 0.2, []float32{0, 1}, now),
	}

	first, err := evaluator.Score(memory, neighbors, now)
	require.NoError(t, err)
	second, err := evaluator.Score(memory, neighbors, now)
	require.NoError(t, err)

	assert.Equal(t, first, second, "Identical inputs must yield identical scores")
}

func TestScoreBounds(t *testing.T) {
	evaluator := intelligence.NewImportanceEvaluator(newFakeStore(), nil)
	now := time.Now()

	// Everything maxed out still clamps at 1.
	memory := seedMemory("m1", 42, "procedural", 1.0, []float32{1, 0}, now)
	memory.AccessCount = 1 << 30
	memory.Content = repetitiveContent(200)
	neighbors := []*storage.Memory{
		seedMemory("m2", 42, "procedural", 1.0, []float32{1, 0}, now),
	}

	score, err := evaluator.Score(memory, neighbors, now)
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), score)

	// Everything minimal stays non-negative.
	empty := seedMemory("m3", 42, "unknown_type", 0.0, nil, now.Add(-10*365*24*time.Hour))
	empty.Content = ""
	score, err = evaluator.Score(empty, nil, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, float32(0.0))
}

func TestScoreTypeOrdering(t *testing.T) {
	evaluator := intelligence.NewImportanceEvaluator(newFakeStore(), nil)
	now := time.Now()

	types := []string{"procedural", "semantic", "episodic", "working"}
	scores := make([]float32, len(types))
	for i, memoryType := range types {
		memory := seedMemory("m", 42, memoryType, 0.3, nil, now)
		score, err := evaluator.Score(memory, nil, now)
		require.NoError(t, err)
		scores[i] = score
	}

	assert.Greater(t, scores[0], scores[1], "procedural should outrank semantic")
	assert.Greater(t, scores[1], scores[2], "semantic should outrank episodic")
	assert.Greater(t, scores[2], scores[3], "episodic should outrank working")
}

func TestScoreAssociationRaisesWellConnectedMemory(t *testing.T) {
	evaluator := intelligence.NewImportanceEvaluator(newFakeStore(), nil)
	now := time.Now()

	isolated := seedMemory("m1", 42, "semantic", 0.3, []float32{1, 0, 0}, now)
	connected := seedMemory("m2", 42, "semantic", 0.3, []float32{1, 0, 0}, now)
	neighbors := []*storage.Memory{
		seedMemory("n1", 42, "semantic", 0.9, []float32{0.99, 0.01, 0}, now),
		seedMemory("n2", 42, "semantic", 0.9, []float32{0.98, 0.02, 0}, now),
	}

	isolatedScore, err := evaluator.Score(isolated, nil, now)
	require.NoError(t, err)
	connectedScore, err := evaluator.Score(connected, neighbors, now)
	require.NoError(t, err)

	assert.Greater(t, connectedScore, isolatedScore,
		"Association with important similar memories should raise the score")
}

func TestScoreDimensionMismatch(t *testing.T) {
	evaluator := intelligence.NewImportanceEvaluator(newFakeStore(), nil)
	now := time.Now()

	memory := seedMemory("m1", 42, "semantic", 0.3, []float32{1, 0}, now)
	neighbors := []*storage.Memory{
		seedMemory("n1", 42, "semantic", 0.5, []float32{1, 0, 0}, now),
	}

	_, err := evaluator.Score(memory, neighbors, now)
	assert.ErrorIs(t, err, similarity.ErrDimensionMismatch)
}
