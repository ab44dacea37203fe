// Package intelligence provides the memory organization algorithms:
// importance evaluation, embedding-space clustering, and archival of aged
// low-value memories.
package intelligence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/agentdb/organizer-go/pkg/similarity"
	"github.com/agentdb/organizer-go/pkg/storage"
)

// ScoringConfig contains the weights of the importance scoring function.
//
// The score of a memory is the sum of its current importance and five
// bounded feature terms, clamped to [0.0, 1.0]:
//
//	importance = clamp(base + access + recency + content + type + association)
type ScoringConfig struct {
	// AccessFactor scales the access-frequency term:
	// ln(access_count + 1) * AccessFactor.
	AccessFactor float64 `json:"access_factor"`

	// RecencyFactor scales the recency term:
	// exp(-age_days / 365) * RecencyFactor. The bonus decays toward zero
	// as the memory ages past roughly a year.
	RecencyFactor float64 `json:"recency_factor"`

	// ContentFactorMax caps the content-richness term:
	// min(len(content) / 1000, ContentFactorMax).
	ContentFactorMax float64 `json:"content_factor_max"`

	// AssociationNeighbors is the number of most-similar peer memories
	// considered for the association term.
	AssociationNeighbors int `json:"association_neighbors"`

	// TypeWeights maps each memory type to its fixed additive weight.
	// Types missing from the map contribute zero.
	TypeWeights map[string]float64 `json:"type_weights,omitempty"`
}

// DefaultScoringConfig returns the default scoring weights.
//
// The per-type weights follow the original scorer's relative ordering:
// procedural memories rank highest, working memories lowest.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		AccessFactor:         0.1,
		RecencyFactor:        0.2,
		ContentFactorMax:     0.1,
		AssociationNeighbors: 5,
		TypeWeights: map[string]float64{
			"procedural": 0.09,
			"semantic":   0.08,
			"episodic":   0.07,
			"working":    0.05,
		},
	}
}

// ImportanceEvaluator computes and persists memory importance scores.
//
// Evaluation blends five signals: access frequency, recency, content
// richness, memory type, and association with the memory's nearest
// embedding-space neighbors. The evaluator reads the memory and its
// neighbors from the store, computes the new score, and writes back the
// updated importance together with the access bookkeeping (access_count + 1,
// last_access = now).
//
// Example usage:
//
//	evaluator := intelligence.NewImportanceEvaluator(store, nil)
//	score, err := evaluator.Evaluate(ctx, "memory_001", 42)
type ImportanceEvaluator struct {
	// store is the memory persistence backend.
	store storage.MemoryStore

	// config contains the scoring weights.
	config *ScoringConfig
}

// NewImportanceEvaluator creates a new importance evaluator.
//
// Parameters:
//   - store: Memory persistence backend
//   - config: Scoring weights (nil uses DefaultScoringConfig)
func NewImportanceEvaluator(store storage.MemoryStore, config *ScoringConfig) *ImportanceEvaluator {
	if config == nil {
		config = DefaultScoringConfig()
	}
	return &ImportanceEvaluator{
		store:  store,
		config: config,
	}
}

// Evaluate computes the importance of a memory and persists the result.
//
// The method:
//  1. Loads the memory (storage.ErrNotFound if it does not exist for the agent)
//  2. Loads the agent's embedded memories as association candidates
//  3. Computes the new score from the memory's pre-evaluation feature values
//  4. Writes back importance, access_count + 1, and last_access
//
// Parameters:
//   - ctx: Context for cancellation
//   - memoryID: ID of the memory to evaluate
//   - agentID: Owning agent (isolation boundary)
//
// Returns the new importance score in [0.0, 1.0].
func (e *ImportanceEvaluator) Evaluate(ctx context.Context, memoryID string, agentID uint64) (float32, error) {
	memory, err := e.store.GetMemory(ctx, memoryID, agentID)
	if err != nil {
		return 0, err
	}

	var neighbors []*storage.Memory
	if memory.Embedding != nil {
		neighbors, err = e.store.ListMemories(ctx, agentID, &storage.ListOptions{OnlyEmbedded: true})
		if err != nil {
			return 0, err
		}
	}

	now := time.Now()
	score, err := e.Score(memory, neighbors, now)
	if err != nil {
		return 0, err
	}

	if err := e.store.UpdateScore(ctx, memoryID, agentID, score, memory.AccessCount+1, now); err != nil {
		return 0, fmt.Errorf("persist score: %w", err)
	}

	return score, nil
}

// Score computes the importance of a memory from its current feature values
// without touching the store.
//
// The function is deterministic: identical feature values (importance,
// access_count, content, age, type, neighbors) always yield the same score.
// The memory itself is excluded from the neighbor set if present.
//
// Returns a score in [0.0, 1.0], or similarity.ErrDimensionMismatch if the
// memory's embedding and a neighbor's embedding have different lengths.
func (e *ImportanceEvaluator) Score(memory *storage.Memory, neighbors []*storage.Memory, now time.Time) (float32, error) {
	score := float64(memory.Importance)

	// Access frequency: ln(n+1) avoids the ln(0) singularity and grows
	// monotonically with access count.
	score += math.Log(float64(memory.AccessCount)+1) * e.config.AccessFactor

	// Recency bonus decaying over roughly a year.
	ageDays := now.Sub(memory.CreatedAt).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	score += math.Exp(-ageDays/365.0) * e.config.RecencyFactor

	// Content richness, capped.
	score += math.Min(float64(len(memory.Content))/1000.0, e.config.ContentFactorMax)

	// Fixed per-type weight.
	score += e.config.TypeWeights[memory.MemoryType]

	// Association with nearest embedded peers.
	association, err := e.associationWeight(memory, neighbors)
	if err != nil {
		return 0, err
	}
	score += association

	return float32(math.Max(0.0, math.Min(1.0, score))), nil
}

// associationWeight computes the mean of (similarity * neighbor importance)
// over the top-N most similar neighbors. Returns 0 if the memory has no
// embedding or no neighbor qualifies.
func (e *ImportanceEvaluator) associationWeight(memory *storage.Memory, neighbors []*storage.Memory) (float64, error) {
	if memory.Embedding == nil || e.config.AssociationNeighbors <= 0 {
		return 0, nil
	}

	type scored struct {
		similarity float64
		importance float64
	}

	var candidates []scored
	for _, neighbor := range neighbors {
		if neighbor.ID == memory.ID || neighbor.Embedding == nil {
			continue
		}
		sim, err := similarity.Cosine(memory.Embedding, neighbor.Embedding)
		if err != nil {
			return 0, err
		}
		candidates = append(candidates, scored{
			similarity: float64(sim),
			importance: float64(neighbor.Importance),
		})
	}

	if len(candidates) == 0 {
		return 0, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].similarity > candidates[j].similarity
	})

	topN := e.config.AssociationNeighbors
	if topN > len(candidates) {
		topN = len(candidates)
	}

	var sum float64
	for _, candidate := range candidates[:topN] {
		sum += candidate.similarity * candidate.importance
	}

	return sum / float64(topN), nil
}
