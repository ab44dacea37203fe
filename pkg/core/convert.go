// Package core provides the main Organizer client and memory organization functionality.
package core

import (
	"time"

	"github.com/agentdb/organizer-go/pkg/storage"
)

// toStorageMemory converts a core.Memory to storage.Memory.
//
// This function is used internally to convert between package types
// to avoid circular dependencies.
func toStorageMemory(m *Memory) *storage.Memory {
	return &storage.Memory{
		ID:          m.ID,
		AgentID:     m.AgentID,
		MemoryType:  string(m.MemoryType),
		Content:     m.Content,
		Embedding:   copyVector(m.Embedding),
		Importance:  m.Importance,
		AccessCount: m.AccessCount,
		CreatedAt:   m.CreatedAt,
		LastAccess:  m.LastAccess,
		ExpiresAt:   copyTime(m.ExpiresAt),
		ClusterID:   m.ClusterID,
	}
}

// fromStorageMemory converts a storage.Memory to core.Memory.
//
// The returned value owns its slices; callers may retain it after the
// organizer is closed.
func fromStorageMemory(m *storage.Memory) *Memory {
	return &Memory{
		ID:          m.ID,
		AgentID:     m.AgentID,
		MemoryType:  MemoryType(m.MemoryType),
		Content:     m.Content,
		Embedding:   copyVector(m.Embedding),
		Importance:  m.Importance,
		AccessCount: m.AccessCount,
		CreatedAt:   m.CreatedAt,
		LastAccess:  m.LastAccess,
		ExpiresAt:   copyTime(m.ExpiresAt),
		ClusterID:   m.ClusterID,
	}
}

// fromStorageMemories converts a slice of storage.Memory to a slice of core.Memory.
func fromStorageMemories(memories []*storage.Memory) []*Memory {
	result := make([]*Memory, len(memories))
	for i, m := range memories {
		result[i] = fromStorageMemory(m)
	}
	return result
}

// fromStorageCluster converts a storage.Cluster to core.MemoryCluster.
func fromStorageCluster(c *storage.Cluster) *MemoryCluster {
	return &MemoryCluster{
		ID:          c.ID,
		AgentID:     c.AgentID,
		MemoryIDs:   append([]string(nil), c.MemoryIDs...),
		Centroid:    copyVector(c.Centroid),
		Importance:  c.Importance,
		CreatedAt:   c.CreatedAt,
		LastAccess:  c.LastAccess,
		AccessCount: c.AccessCount,
	}
}

// fromStorageClusters converts a slice of storage.Cluster to a slice of core.MemoryCluster.
func fromStorageClusters(clusters []*storage.Cluster) []*MemoryCluster {
	result := make([]*MemoryCluster, len(clusters))
	for i, c := range clusters {
		result[i] = fromStorageCluster(c)
	}
	return result
}

// fromStorageArchive converts a storage.Archive to core.MemoryArchive.
func fromStorageArchive(a *storage.Archive) *MemoryArchive {
	return &MemoryArchive{
		ID:               a.ID,
		AgentID:          a.AgentID,
		Compressed:       append([]byte(nil), a.Compressed...),
		Summary:          a.Summary,
		OriginalCount:    a.OriginalCount,
		CompressionRatio: a.CompressionRatio,
		ArchivedAt:       a.ArchivedAt,
	}
}

// fromStorageArchives converts a slice of storage.Archive to a slice of core.MemoryArchive.
func fromStorageArchives(archives []*storage.Archive) []*MemoryArchive {
	result := make([]*MemoryArchive, len(archives))
	for i, a := range archives {
		result[i] = fromStorageArchive(a)
	}
	return result
}

// fromStorageStats converts storage.Stats to core.MemoryStats.
func fromStorageStats(s *storage.Stats) *MemoryStats {
	counts := make(map[MemoryType]int, len(s.CountsByType))
	for memoryType, count := range s.CountsByType {
		counts[MemoryType(memoryType)] = count
	}
	return &MemoryStats{
		TotalCount:     s.TotalCount,
		CountsByType:   counts,
		AvgImportance:  s.AvgImportance,
		AvgAccessCount: s.AvgAccessCount,
	}
}

// copyVector returns an owned copy of an embedding (nil stays nil).
func copyVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// copyTime returns an owned copy of an optional time (nil stays nil).
func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
