package core_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdb/organizer-go/pkg/core"
	"github.com/agentdb/organizer-go/pkg/storage"
)

// stubStore is an in-memory MemoryStore backing the facade tests.
type stubStore struct {
	mu       sync.Mutex
	memories []*storage.Memory
	clusters []*storage.Cluster
	archives []*storage.Archive
	closed   bool
}

func newStubStore() *stubStore {
	return &stubStore{}
}

func (s *stubStore) InsertMemory(_ context.Context, memory *storage.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories = append(s.memories, memory)
	return nil
}

func (s *stubStore) GetMemory(_ context.Context, id string, agentID uint64) (*storage.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, memory := range s.memories {
		if memory.ID == id && memory.AgentID == agentID {
			copied := *memory
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *stubStore) UpdateScore(_ context.Context, id string, agentID uint64, importance float32, accessCount uint32, lastAccess time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, memory := range s.memories {
		if memory.ID == id && memory.AgentID == agentID {
			memory.Importance = importance
			memory.AccessCount = accessCount
			memory.LastAccess = lastAccess
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *stubStore) DeleteMemory(_ context.Context, id string, agentID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, memory := range s.memories {
		if memory.ID == id && memory.AgentID == agentID {
			s.memories = append(s.memories[:i], s.memories[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *stubStore) ListMemories(_ context.Context, agentID uint64, opts *storage.ListOptions) ([]*storage.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*storage.Memory
	for _, memory := range s.memories {
		if memory.AgentID != agentID {
			continue
		}
		if opts != nil {
			if opts.OnlyEmbedded && memory.Embedding == nil {
				continue
			}
			if opts.MemoryType != "" && memory.MemoryType != opts.MemoryType {
				continue
			}
			if opts.OlderThan != nil && !memory.CreatedAt.Before(*opts.OlderThan) {
				continue
			}
			if opts.MinImportance > 0 && float64(memory.Importance) < opts.MinImportance {
				continue
			}
		}
		copied := *memory
		result = append(result, &copied)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(result) {
				return nil, nil
			}
			result = result[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(result) {
			result = result[:opts.Limit]
		}
	}
	return result, nil
}

func (s *stubStore) DeleteExpired(_ context.Context, agentID uint64, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*storage.Memory
	deleted := 0
	for _, memory := range s.memories {
		if memory.AgentID == agentID && memory.ExpiresAt != nil && memory.ExpiresAt.Before(now) {
			deleted++
			continue
		}
		kept = append(kept, memory)
	}
	s.memories = kept
	return deleted, nil
}

func (s *stubStore) ReplaceClusters(_ context.Context, agentID uint64, clusters []*storage.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*storage.Cluster
	for _, cluster := range s.clusters {
		if cluster.AgentID != agentID {
			kept = append(kept, cluster)
		}
	}
	s.clusters = append(kept, clusters...)

	membership := make(map[string]string)
	for _, cluster := range clusters {
		for _, memoryID := range cluster.MemoryIDs {
			membership[memoryID] = cluster.ID
		}
	}
	for _, memory := range s.memories {
		if memory.AgentID == agentID {
			memory.ClusterID = membership[memory.ID]
		}
	}
	return nil
}

func (s *stubStore) CreateArchives(_ context.Context, agentID uint64, writes []storage.ArchiveWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[string]bool)
	for _, write := range writes {
		s.archives = append(s.archives, write.Archive)
		for _, memoryID := range write.MemoryIDs {
			doomed[memoryID] = true
		}
	}

	var kept []*storage.Memory
	for _, memory := range s.memories {
		if memory.AgentID == agentID && doomed[memory.ID] {
			continue
		}
		kept = append(kept, memory)
	}
	s.memories = kept
	return nil
}

func (s *stubStore) ListClusters(_ context.Context, agentID uint64) ([]*storage.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*storage.Cluster
	for _, cluster := range s.clusters {
		if cluster.AgentID == agentID {
			result = append(result, cluster)
		}
	}
	return result, nil
}

func (s *stubStore) ListArchives(_ context.Context, agentID uint64) ([]*storage.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*storage.Archive
	for _, archive := range s.archives {
		if archive.AgentID == agentID {
			result = append(result, archive)
		}
	}
	return result, nil
}

func (s *stubStore) Stats(_ context.Context, agentID uint64) (*storage.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &storage.Stats{CountsByType: make(map[string]int)}
	var importanceSum, accessSum float64
	for _, memory := range s.memories {
		if memory.AgentID != agentID {
			continue
		}
		stats.TotalCount++
		stats.CountsByType[memory.MemoryType]++
		importanceSum += float64(memory.Importance)
		accessSum += float64(memory.AccessCount)
	}
	if stats.TotalCount > 0 {
		stats.AvgImportance = importanceSum / float64(stats.TotalCount)
		stats.AvgAccessCount = accessSum / float64(stats.TotalCount)
	}
	return stats, nil
}

func (s *stubStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// blockingStore parks InsertMemory until released, for exercising the
// per-agent lock.
type blockingStore struct {
	*stubStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) InsertMemory(ctx context.Context, memory *storage.Memory) error {
	close(s.entered)
	<-s.release
	return s.stubStore.InsertMemory(ctx, memory)
}

func newTestOrganizer(t *testing.T, store storage.MemoryStore, mutate func(*core.Config)) *core.Organizer {
	t.Helper()

	config := core.DefaultConfig()
	if mutate != nil {
		mutate(config)
	}

	organizer, err := core.NewOrganizer(config, core.WithStore(store))
	require.NoError(t, err)
	t.Cleanup(func() { _ = organizer.Close() })
	return organizer
}

func TestAddAndGetMemory(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)
	ctx := context.Background()

	added, err := organizer.AddMemory(ctx, "staging deploys need approval",
		core.ForAgent(42),
		core.WithMemoryType(core.TypeSemantic),
		core.WithEmbedding([]float32{0.1, 0.2, 0.3}),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, uint32(0), added.AccessCount)
	assert.Equal(t, float32(0.5), added.Importance)

	fetched, err := organizer.GetMemory(ctx, added.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, added.Content, fetched.Content)
	assert.Equal(t, core.TypeSemantic, fetched.MemoryType)
	assert.Equal(t, uint32(1), fetched.AccessCount, "Get should record the access")
}

func TestAddMemoryValidation(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)
	ctx := context.Background()

	_, err := organizer.AddMemory(ctx, "", core.ForAgent(42))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = organizer.AddMemory(ctx, "content",
		core.ForAgent(42), core.WithMemoryType("prospective"))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = organizer.AddMemory(ctx, "content",
		core.ForAgent(42), core.WithImportance(1.5))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestZeroAgentIDPolicy(t *testing.T) {
	ctx := context.Background()

	strict := newTestOrganizer(t, newStubStore(), nil)
	_, err := strict.AddMemory(ctx, "content", core.ForAgent(0))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	assert.Equal(t, core.CodeInvalidArgument, core.ErrorCode(err))

	permissive := newTestOrganizer(t, newStubStore(), func(config *core.Config) {
		config.AllowZeroAgentID = true
	})
	_, err = permissive.AddMemory(ctx, "content", core.ForAgent(0))
	assert.NoError(t, err)
}

func TestGetMemoryNotFound(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)

	_, err := organizer.GetMemory(context.Background(), "missing", 42)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, core.CodeNotFound, core.ErrorCode(err))
}

func TestEvaluateImportanceValidation(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)
	ctx := context.Background()

	_, err := organizer.EvaluateImportance(ctx, "", 42)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	assert.Equal(t, core.CodeInvalidArgument, core.ErrorCode(err))

	_, err = organizer.EvaluateImportance(ctx, "missing", 42)
	assert.Equal(t, core.CodeNotFound, core.ErrorCode(err))
}

func TestEvaluateImportanceBounds(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)
	ctx := context.Background()

	memory, err := organizer.AddMemory(ctx, "a recurring deployment fact",
		core.ForAgent(42),
		core.WithMemoryType(core.TypeProcedural),
	)
	require.NoError(t, err)

	score, err := organizer.EvaluateImportance(ctx, memory.ID, 42)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, float32(0.0))
	assert.LessOrEqual(t, score, float32(1.0))
}

func TestAgentIsolation(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)
	ctx := context.Background()

	mine, err := organizer.AddMemory(ctx, "agent one's memory", core.ForAgent(1))
	require.NoError(t, err)

	_, err = organizer.GetMemory(ctx, mine.ID, 2)
	assert.ErrorIs(t, err, core.ErrNotFound, "Agents must not see each other's memories")

	memories, err := organizer.ListMemories(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, memories)
}

func TestClusterMemoriesViaFacade(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		_, err := organizer.AddMemory(ctx, fmt.Sprintf("observation %d", i),
			core.ForAgent(42),
			core.WithEmbedding([]float32{float32(i * 10), float32((i % 3) * 10), 1}),
		)
		require.NoError(t, err)
	}

	clusters, err := organizer.ClusterMemories(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, clusters, 4, "floor(sqrt(9)) + 1 clusters")

	persisted, err := organizer.ListClusters(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, persisted, len(clusters))
}

func TestClusterMemoriesNoEmbeddings(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)
	ctx := context.Background()

	_, err := organizer.AddMemory(ctx, "no embedding here", core.ForAgent(42))
	require.NoError(t, err)

	clusters, err := organizer.ClusterMemories(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, clusters, "No embedded memories yields an empty result, not an error")
}

func TestArchiveOldMemoriesViaFacade(t *testing.T) {
	store := newStubStore()
	organizer := newTestOrganizer(t, store, nil)
	ctx := context.Background()

	// Backdated, low-importance rows go straight into the store; the facade
	// only creates fresh memories.
	old := time.Now().AddDate(0, 0, -90)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertMemory(ctx, &storage.Memory{
			ID:         fmt.Sprintf("old%d", i),
			AgentID:    42,
			MemoryType: "episodic",
			Content:    "legacy observation, repeated. legacy observation, repeated.",
			Importance: 0.1,
			CreatedAt:  old,
			LastAccess: old,
		}))
	}

	archives, err := organizer.ArchiveOldMemories(ctx, 42)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, 3, archives[0].OriginalCount)
	assert.NotEmpty(t, archives[0].Summary)

	remaining, err := organizer.ListMemories(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, remaining, "Archived memories leave active storage")

	listed, err := organizer.ListArchives(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestPruneExpired(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)
	ctx := context.Background()

	_, err := organizer.AddMemory(ctx, "short-lived scratch state",
		core.ForAgent(42),
		core.WithMemoryType(core.TypeWorking),
		core.WithExpiry(time.Now().Add(-time.Minute)),
	)
	require.NoError(t, err)
	_, err = organizer.AddMemory(ctx, "durable fact", core.ForAgent(42))
	require.NoError(t, err)

	pruned, err := organizer.PruneExpired(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	remaining, err := organizer.ListMemories(ctx, 42)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "durable fact", remaining[0].Content)
}

func TestStats(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)
	ctx := context.Background()

	_, err := organizer.AddMemory(ctx, "fact", core.ForAgent(42),
		core.WithMemoryType(core.TypeSemantic))
	require.NoError(t, err)
	_, err = organizer.AddMemory(ctx, "event", core.ForAgent(42),
		core.WithMemoryType(core.TypeEpisodic))
	require.NoError(t, err)

	stats, err := organizer.Stats(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, 1, stats.CountsByType[core.TypeSemantic])
	assert.Equal(t, 1, stats.CountsByType[core.TypeEpisodic])
	assert.InDelta(t, 0.5, stats.AvgImportance, 1e-6)
}

func TestBusyWhenAgentLocked(t *testing.T) {
	store := &blockingStore{
		stubStore: newStubStore(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	organizer := newTestOrganizer(t, store, func(config *core.Config) {
		config.LockTimeout = 0 // fail immediately instead of queueing
	})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = organizer.AddMemory(ctx, "slow write", core.ForAgent(42))
	}()

	<-store.entered
	_, err := organizer.GetMemory(ctx, "anything", 42)
	assert.ErrorIs(t, err, core.ErrBusy)
	assert.Equal(t, core.CodeBusy, core.ErrorCode(err))

	// A different agent is unaffected.
	_, err = organizer.GetMemory(ctx, "anything", 43)
	assert.ErrorIs(t, err, core.ErrNotFound)

	close(store.release)
	<-done
}

func TestOrganizeAgents(t *testing.T) {
	organizer := newTestOrganizer(t, newStubStore(), nil)
	ctx := context.Background()

	agentIDs := []uint64{1, 2}
	for _, agentID := range agentIDs {
		for i := 0; i < 4; i++ {
			_, err := organizer.AddMemory(ctx, fmt.Sprintf("agent %d note %d", agentID, i),
				core.ForAgent(agentID),
				core.WithEmbedding([]float32{float32(i), float32(i * i), 1}),
			)
			require.NoError(t, err)
		}
	}

	reports, err := organizer.OrganizeAgents(ctx, agentIDs)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	for _, agentID := range agentIDs {
		report := reports[agentID]
		require.NotNil(t, report)
		assert.Equal(t, agentID, report.AgentID)
		assert.Equal(t, 4, report.Evaluated)
		assert.Greater(t, report.Clusters, 0)
		assert.Equal(t, 0, report.Archives, "Fresh memories are not archived")
	}
}

func TestCloseIdempotent(t *testing.T) {
	store := newStubStore()
	organizer := newTestOrganizer(t, store, nil)

	require.NoError(t, organizer.Close())
	require.NoError(t, organizer.Close())
	assert.True(t, store.closed)
}
