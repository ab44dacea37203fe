package intelligence

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/agentdb/organizer-go/pkg/similarity"
	"github.com/agentdb/organizer-go/pkg/storage"
)

// defaultMaxIterations bounds the k-means refinement loop, guaranteeing
// termination even when assignments oscillate.
const defaultMaxIterations = 100

// ClusteringEngine groups an agent's embedded memories into semantic
// clusters using k-means over their embedding vectors.
//
// The cluster count adapts to the data: k = floor(sqrt(n)) + 1 where n is
// the number of memories that carry an embedding. Memories without an
// embedding are simply left unclustered.
//
// Determinism: centroids are seeded from the first k distinct embeddings in
// creation order, and assignment ties break toward the lower cluster index,
// so identical input always yields identical clusters. Distances are
// Euclidean, matching the original clusterer.
//
// Example usage:
//
//	engine := intelligence.NewClusteringEngine(store, node, 0)
//	clusters, err := engine.ClusterMemories(ctx, 42)
type ClusteringEngine struct {
	// store is the memory persistence backend.
	store storage.MemoryStore

	// node generates unique cluster IDs.
	node *snowflake.Node

	// maxIterations bounds the refinement loop.
	maxIterations int
}

// NewClusteringEngine creates a new clustering engine.
//
// Parameters:
//   - store: Memory persistence backend
//   - node: Snowflake node for cluster ID generation
//   - maxIterations: Iteration cap (0 uses the default of 100)
func NewClusteringEngine(store storage.MemoryStore, node *snowflake.Node, maxIterations int) *ClusteringEngine {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &ClusteringEngine{
		store:         store,
		node:          node,
		maxIterations: maxIterations,
	}
}

// ClusterMemories recomputes the agent's cluster set from scratch.
//
// Each call supersedes the previous run: the new clusters replace the old
// ones wholesale in a single transaction. An agent with no embedded
// memories yields an empty result and no error, and any prior clusters
// are removed.
//
// The context is checked between iterations; cancellation aborts the run
// before anything is persisted, leaving the store unchanged.
//
// Returns the new clusters ordered by seed index.
func (e *ClusteringEngine) ClusterMemories(ctx context.Context, agentID uint64) ([]*storage.Cluster, error) {
	memories, err := e.store.ListMemories(ctx, agentID, &storage.ListOptions{OnlyEmbedded: true})
	if err != nil {
		return nil, err
	}

	if len(memories) == 0 {
		// An empty recompute still supersedes the prior run, so stale
		// clusters never outlive their members.
		if err := e.store.ReplaceClusters(ctx, agentID, nil); err != nil {
			return nil, fmt.Errorf("persist clusters: %w", err)
		}
		return nil, nil
	}

	vectors := make([][]float32, len(memories))
	for i, memory := range memories {
		vectors[i] = memory.Embedding
	}

	k := int(math.Sqrt(float64(len(vectors)))) + 1
	if k > len(vectors) {
		k = len(vectors)
	}

	assignments, err := e.kmeans(ctx, vectors, k)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	clusters, err := e.buildClusters(memories, assignments, k, agentID, now)
	if err != nil {
		return nil, err
	}

	if err := e.store.ReplaceClusters(ctx, agentID, clusters); err != nil {
		return nil, fmt.Errorf("persist clusters: %w", err)
	}

	return clusters, nil
}

// kmeans runs the bounded Lloyd iteration and returns the final assignment
// of each vector to a centroid index.
func (e *ClusteringEngine) kmeans(ctx context.Context, vectors [][]float32, k int) ([]int, error) {
	centroids, err := seedCentroids(vectors, k)
	if err != nil {
		return nil, err
	}

	assignments := make([]int, len(vectors))
	for iteration := 0; iteration < e.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		newAssignments, err := assignToCentroids(vectors, centroids)
		if err != nil {
			return nil, err
		}

		changed := false
		for i := range newAssignments {
			if newAssignments[i] != assignments[i] {
				changed = true
				break
			}
		}
		assignments = newAssignments

		if !changed && iteration > 0 {
			break
		}

		centroids, err = recomputeCentroids(vectors, assignments, centroids)
		if err != nil {
			return nil, err
		}
	}

	return assignments, nil
}

// buildClusters converts assignments into persisted cluster records,
// dropping centroid slots that ended up with no members.
func (e *ClusteringEngine) buildClusters(memories []*storage.Memory, assignments []int, k int, agentID uint64, now time.Time) ([]*storage.Cluster, error) {
	memberIndexes := make([][]int, k)
	for i, assignment := range assignments {
		memberIndexes[assignment] = append(memberIndexes[assignment], i)
	}

	var clusters []*storage.Cluster
	for _, members := range memberIndexes {
		if len(members) == 0 {
			continue
		}

		memoryIDs := make([]string, len(members))
		vectors := make([][]float32, len(members))
		var importanceSum float64
		for i, idx := range members {
			memoryIDs[i] = memories[idx].ID
			vectors[i] = memories[idx].Embedding
			importanceSum += float64(memories[idx].Importance)
		}

		centroid, err := similarity.Centroid(vectors)
		if err != nil {
			return nil, err
		}

		clusters = append(clusters, &storage.Cluster{
			ID:         fmt.Sprintf("cluster-%s", e.node.Generate()),
			AgentID:    agentID,
			MemoryIDs:  memoryIDs,
			Centroid:   centroid,
			Importance: float32(importanceSum / float64(len(members))),
			CreatedAt:  now,
			LastAccess: now,
		})
	}

	return clusters, nil
}

// seedCentroids picks the first k distinct vectors in input order. If fewer
// than k distinct vectors exist, the seed set shrinks accordingly.
func seedCentroids(vectors [][]float32, k int) ([][]float32, error) {
	var seeds [][]float32
	for _, vector := range vectors {
		if len(seeds) == k {
			break
		}
		distinct := true
		for _, seed := range seeds {
			if vectorsEqual(seed, vector) {
				distinct = false
				break
			}
		}
		if distinct {
			seed := make([]float32, len(vector))
			copy(seed, vector)
			seeds = append(seeds, seed)
		}
	}
	return seeds, nil
}

// assignToCentroids assigns each vector to its nearest centroid by
// Euclidean distance, breaking ties toward the lower centroid index.
func assignToCentroids(vectors [][]float32, centroids [][]float32) ([]int, error) {
	assignments := make([]int, len(vectors))
	for i, vector := range vectors {
		best := 0
		bestDistance := float32(math.MaxFloat32)
		for j, centroid := range centroids {
			distance, err := similarity.Euclidean(vector, centroid)
			if err != nil {
				return nil, err
			}
			if distance < bestDistance {
				bestDistance = distance
				best = j
			}
		}
		assignments[i] = best
	}
	return assignments, nil
}

// recomputeCentroids replaces each centroid with the mean of its current
// members. Empty centroids keep their previous position.
func recomputeCentroids(vectors [][]float32, assignments []int, centroids [][]float32) ([][]float32, error) {
	grouped := make([][][]float32, len(centroids))
	for i, assignment := range assignments {
		grouped[assignment] = append(grouped[assignment], vectors[i])
	}

	updated := make([][]float32, len(centroids))
	for i, members := range grouped {
		if len(members) == 0 {
			updated[i] = centroids[i]
			continue
		}
		centroid, err := similarity.Centroid(members)
		if err != nil {
			return nil, err
		}
		updated[i] = centroid
	}
	return updated, nil
}

// vectorsEqual reports whether two vectors are element-wise identical.
func vectorsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
