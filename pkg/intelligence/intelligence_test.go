package intelligence_test

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/agentdb/organizer-go/pkg/storage"
)

// fakeStore is an in-memory MemoryStore for exercising the organization
// algorithms without a database.
type fakeStore struct {
	memories []*storage.Memory
	clusters []*storage.Cluster
	archives []*storage.Archive
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) InsertMemory(_ context.Context, memory *storage.Memory) error {
	s.memories = append(s.memories, memory)
	return nil
}

func (s *fakeStore) GetMemory(_ context.Context, id string, agentID uint64) (*storage.Memory, error) {
	for _, memory := range s.memories {
		if memory.ID == id && memory.AgentID == agentID {
			copied := *memory
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) UpdateScore(_ context.Context, id string, agentID uint64, importance float32, accessCount uint32, lastAccess time.Time) error {
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

func (s *fakeStore) DeleteMemory(_ context.Context, id string, agentID uint64) error {
	for i, memory := range s.memories {
		if memory.ID == id && memory.AgentID == agentID {
			s.memories = append(s.memories[:i], s.memories[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *fakeStore) ListMemories(_ context.Context, agentID uint64, opts *storage.ListOptions) ([]*storage.Memory, error) {
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

func (s *fakeStore) DeleteExpired(_ context.Context, agentID uint64, now time.Time) (int, error) {
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

func (s *fakeStore) ReplaceClusters(_ context.Context, agentID uint64, clusters []*storage.Cluster) error {
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

func (s *fakeStore) CreateArchives(_ context.Context, agentID uint64, writes []storage.ArchiveWrite) error {
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

func (s *fakeStore) ListClusters(_ context.Context, agentID uint64) ([]*storage.Cluster, error) {
	var result []*storage.Cluster
	for _, cluster := range s.clusters {
		if cluster.AgentID == agentID {
			result = append(result, cluster)
		}
	}
	return result, nil
}

func (s *fakeStore) ListArchives(_ context.Context, agentID uint64) ([]*storage.Archive, error) {
	var result []*storage.Archive
	for _, archive := range s.archives {
		if archive.AgentID == agentID {
			result = append(result, archive)
		}
	}
	return result, nil
}

func (s *fakeStore) Stats(_ context.Context, agentID uint64) (*storage.Stats, error) {
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

func (s *fakeStore) Close() error {
	return nil
}

// seedMemory builds a memory record with the fields the algorithms read.
func seedMemory(id string, agentID uint64, memoryType string, importance float32, embedding []float32, createdAt time.Time) *storage.Memory {
	return &storage.Memory{
		ID:         id,
		AgentID:    agentID,
		MemoryType: memoryType,
		Content:    "content of " + id,
		Embedding:  embedding,
		Importance: importance,
		CreatedAt:  createdAt,
		LastAccess: createdAt,
	}
}

// repetitiveContent returns text that compresses well.
func repetitiveContent(n int) string {
	return strings.Repeat("the same observation repeated over and over. ", n)
}
