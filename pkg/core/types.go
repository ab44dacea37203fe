// Package core provides the main Organizer client and memory organization functionality.
package core

import (
	"fmt"
	"time"
)

// MemoryType classifies a memory by its cognitive role.
//
// The type influences importance scoring: procedural memories (learned
// skills) score highest, working memories (scratch state) lowest.
type MemoryType string

const (
	// TypeEpisodic is a memory of a specific event or interaction.
	TypeEpisodic MemoryType = "episodic"

	// TypeSemantic is a memory of a fact or piece of knowledge.
	TypeSemantic MemoryType = "semantic"

	// TypeProcedural is a memory of a learned skill or procedure.
	TypeProcedural MemoryType = "procedural"

	// TypeWorking is a short-lived memory of in-progress task state.
	TypeWorking MemoryType = "working"
)

// Valid reports whether t is one of the defined memory types.
func (t MemoryType) Valid() bool {
	switch t {
	case TypeEpisodic, TypeSemantic, TypeProcedural, TypeWorking:
		return true
	}
	return false
}

// ParseMemoryType converts a string to a MemoryType.
//
// Returns ErrInvalidArgument if the string is not a defined type.
func ParseMemoryType(s string) (MemoryType, error) {
	t := MemoryType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown memory type %q", ErrInvalidArgument, s)
	}
	return t, nil
}

// Memory represents a single memory owned by an agent.
//
// Example:
//
//	memory := &core.Memory{
//	    ID:         "550e8400-e29b-41d4-a716-446655440000",
//	    AgentID:    42,
//	    MemoryType: core.TypeSemantic,
//	    Content:    "User prefers Go for backend services",
//	    Importance: 0.5,
//	}
type Memory struct {
	// ID is the unique identifier of the memory.
	ID string `json:"id"`

	// AgentID identifies the agent that owns this memory.
	AgentID uint64 `json:"agent_id"`

	// MemoryType classifies the memory (episodic, semantic, procedural, working).
	MemoryType MemoryType `json:"memory_type"`

	// Content is the text content of the memory.
	Content string `json:"content"`

	// Embedding is the vector embedding for similarity comparison.
	// Nil when no embedding has been attached.
	// Omitted from JSON to reduce payload size.
	Embedding []float32 `json:"embedding,omitempty"`

	// Importance is the current importance score in [0.0, 1.0].
	Importance float32 `json:"importance"`

	// AccessCount is the number of times the memory has been accessed.
	AccessCount uint32 `json:"access_count"`

	// CreatedAt is when the memory was created.
	CreatedAt time.Time `json:"created_at"`

	// LastAccess is when the memory was last accessed.
	LastAccess time.Time `json:"last_access"`

	// ExpiresAt is when the memory expires (nil if it never expires).
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// ClusterID is the cluster the memory currently belongs to
	// (empty if unclustered).
	ClusterID string `json:"cluster_id,omitempty"`
}

// Expired reports whether the memory has an expiry in the past.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// MemoryCluster is a group of semantically related memories produced by
// a clustering run.
type MemoryCluster struct {
	// ID is the unique identifier of the cluster.
	ID string `json:"id"`

	// AgentID identifies the agent whose memories were clustered.
	AgentID uint64 `json:"agent_id"`

	// MemoryIDs lists the member memories.
	MemoryIDs []string `json:"memory_ids"`

	// Centroid is the mean embedding of the members.
	Centroid []float32 `json:"centroid,omitempty"`

	// Importance is the mean importance of the members.
	Importance float32 `json:"importance"`

	// CreatedAt is when the cluster was created.
	CreatedAt time.Time `json:"created_at"`

	// LastAccess is when the cluster was last accessed.
	LastAccess time.Time `json:"last_access"`

	// AccessCount is the number of times the cluster has been accessed.
	AccessCount uint32 `json:"access_count"`
}

// MemoryArchive is a compressed bundle of memories removed from active
// storage by an archival run.
type MemoryArchive struct {
	// ID is the unique identifier of the archive.
	ID string `json:"id"`

	// AgentID identifies the agent whose memories were archived.
	AgentID uint64 `json:"agent_id"`

	// Compressed is the gzip-compressed serialized member memories.
	// Omitted from JSON to reduce payload size.
	Compressed []byte `json:"compressed,omitempty"`

	// Summary is a bounded-length digest of the archived content.
	Summary string `json:"summary"`

	// OriginalCount is the number of memories in the archive.
	OriginalCount int `json:"original_count"`

	// CompressionRatio is compressed size divided by original size.
	CompressionRatio float32 `json:"compression_ratio"`

	// ArchivedAt is when the archive was created.
	ArchivedAt time.Time `json:"archived_at"`
}

// MemoryStats summarizes an agent's active memories.
type MemoryStats struct {
	// TotalCount is the number of active memories.
	TotalCount int `json:"total_count"`

	// CountsByType breaks the total down per memory type.
	CountsByType map[MemoryType]int `json:"counts_by_type"`

	// AvgImportance is the mean importance across active memories.
	AvgImportance float64 `json:"avg_importance"`

	// AvgAccessCount is the mean access count across active memories.
	AvgAccessCount float64 `json:"avg_access_count"`
}

// OrganizeReport summarizes one agent's pass through a batch
// organization run.
type OrganizeReport struct {
	// AgentID identifies the agent the report covers.
	AgentID uint64 `json:"agent_id"`

	// Evaluated is the number of memories rescored.
	Evaluated int `json:"evaluated"`

	// Clusters is the number of clusters produced.
	Clusters int `json:"clusters"`

	// Archives is the number of archives created.
	Archives int `json:"archives"`

	// ArchivedMemories is the number of memories moved into archives.
	ArchivedMemories int `json:"archived_memories"`

	// Duration is how long the agent's pass took.
	Duration time.Duration `json:"duration"`
}
