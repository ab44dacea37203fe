// Package storage provides the MemoryStore contract used by the memory
// organizer, along with the record types persisted by each backend.
//
// It defines the MemoryStore interface that all storage implementations must
// satisfy. Every query is partitioned by agent ID: no operation may read or
// mutate records belonging to a different agent.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates that a requested record does not exist for the
// given agent. Implementations must return it (possibly wrapped) from
// GetMemory, UpdateScore, and DeleteMemory when no row matches.
var ErrNotFound = errors.New("record not found")

// Memory is a persisted unit of agent experience.
//
// A memory is owned by exactly one agent and is in exactly one lifecycle
// state: active (ClusterID empty), clustered (ClusterID set), or archived
// (removed from the memories table and folded into an Archive).
type Memory struct {
	// ID is the opaque unique identifier of the memory.
	ID string

	// AgentID identifies the agent that owns this memory.
	AgentID uint64

	// MemoryType is one of "episodic", "semantic", "procedural", "working".
	MemoryType string

	// Content is the text payload of the memory.
	Content string

	// Embedding is the fixed-length vector representation of the content.
	// Nil for memories that were stored without an embedding.
	Embedding []float32

	// Importance is the current importance score in [0.0, 1.0].
	Importance float32

	// AccessCount is the number of times the memory has been read.
	AccessCount uint32

	// CreatedAt is when the memory was created.
	CreatedAt time.Time

	// LastAccess is when the memory was last read or re-scored.
	LastAccess time.Time

	// ExpiresAt is when the memory expires (nil if it never expires).
	ExpiresAt *time.Time

	// ClusterID is the cluster the memory belongs to (empty if unclustered).
	ClusterID string
}

// Cluster is a persisted group of one agent's memories that share
// embedding-space proximity. Clusters are immutable once written; a new
// clustering run replaces the prior run's clusters wholesale.
type Cluster struct {
	// ID is the unique identifier of the cluster.
	ID string

	// AgentID identifies the agent that owns this cluster.
	AgentID uint64

	// MemoryIDs is the non-empty set of member memory IDs.
	MemoryIDs []string

	// Centroid is the mean embedding of the cluster members.
	Centroid []float32

	// Importance is the mean importance of the cluster members.
	Importance float32

	// CreatedAt is when the clustering run produced this cluster.
	CreatedAt time.Time

	// LastAccess is when the cluster was last read.
	LastAccess time.Time

	// AccessCount is the number of times the cluster has been read.
	AccessCount uint32
}

// Archive is a persisted compressed bundle of aged memories. Archives are
// immutable once written; member memories are deleted from the memories
// table in the same transaction that creates the archive row.
type Archive struct {
	// ID is the unique identifier of the archive.
	ID string

	// AgentID identifies the agent that owns this archive.
	AgentID uint64

	// Compressed is the compressed serialized form of the member memories.
	Compressed []byte

	// Summary is a bounded-length digest of the archived content.
	Summary string

	// OriginalCount is the number of memories folded into this archive.
	OriginalCount int

	// CompressionRatio is compressed size divided by original size.
	CompressionRatio float32

	// ArchivedAt is when the archive was created.
	ArchivedAt time.Time
}

// ArchiveWrite pairs an archive record with the IDs of the memories it
// subsumes. CreateArchives deletes those memories atomically with the
// archive insertion.
type ArchiveWrite struct {
	// Archive is the record to insert.
	Archive *Archive

	// MemoryIDs are the member memories to remove from active storage.
	MemoryIDs []string
}

// Stats summarizes one agent's active memory set.
type Stats struct {
	// TotalCount is the number of active memories.
	TotalCount int

	// CountsByType maps memory type to the number of memories of that type.
	CountsByType map[string]int

	// AvgImportance is the mean importance across active memories.
	AvgImportance float64

	// AvgAccessCount is the mean access count across active memories.
	AvgAccessCount float64
}

// ListOptions filters and paginates ListMemories results.
type ListOptions struct {
	// OnlyEmbedded restricts results to memories that carry an embedding.
	OnlyEmbedded bool

	// MemoryType restricts results to a single memory type (empty = all).
	MemoryType string

	// OlderThan restricts results to memories created before this time.
	OlderThan *time.Time

	// MinImportance restricts results to memories at or above this score.
	MinImportance float64

	// Limit caps the number of results (0 = no limit).
	Limit int

	// Offset skips this many results (for pagination).
	Offset int
}

// MemoryStore defines the persistence contract consumed by the organizer.
//
// All implementations (SQLite, PostgreSQL, MySQL) must satisfy this
// interface. Implementations are responsible for transactional integrity of
// ReplaceClusters and CreateArchives; everything else is a single-row or
// single-query operation.
type MemoryStore interface {
	// InsertMemory inserts a new memory record.
	InsertMemory(ctx context.Context, memory *Memory) error

	// GetMemory retrieves a memory by ID, scoped to the given agent.
	// Returns ErrNotFound if no such memory exists for the agent.
	GetMemory(ctx context.Context, id string, agentID uint64) (*Memory, error)

	// UpdateScore updates a memory's importance, access count, and last
	// access time. Returns ErrNotFound if no such memory exists for the agent.
	UpdateScore(ctx context.Context, id string, agentID uint64, importance float32, accessCount uint32, lastAccess time.Time) error

	// DeleteMemory deletes a memory by ID, scoped to the given agent.
	// Returns ErrNotFound if no such memory exists for the agent.
	DeleteMemory(ctx context.Context, id string, agentID uint64) error

	// ListMemories retrieves an agent's active memories ordered by creation
	// time ascending, then by ID (a stable order required for deterministic
	// clustering).
	ListMemories(ctx context.Context, agentID uint64, opts *ListOptions) ([]*Memory, error)

	// DeleteExpired removes the agent's memories whose expiry time is
	// before now. Returns the number of memories removed.
	DeleteExpired(ctx context.Context, agentID uint64, now time.Time) (int, error)

	// ReplaceClusters atomically replaces the agent's entire cluster set:
	// prior clusters are deleted, the new clusters are inserted, and each
	// memory's cluster membership is rewritten to match.
	ReplaceClusters(ctx context.Context, agentID uint64, clusters []*Cluster) error

	// CreateArchives atomically inserts the archive records and deletes
	// their member memories. A failure leaves the store unchanged: no
	// memory is ever absent from both active storage and every archive.
	CreateArchives(ctx context.Context, agentID uint64, writes []ArchiveWrite) error

	// ListClusters retrieves the agent's clusters ordered by creation time,
	// then by ID.
	ListClusters(ctx context.Context, agentID uint64) ([]*Cluster, error)

	// ListArchives retrieves the agent's archives ordered by archive time,
	// then by ID.
	ListArchives(ctx context.Context, agentID uint64) ([]*Archive, error)

	// Stats computes aggregate statistics over the agent's active memories.
	Stats(ctx context.Context, agentID uint64) (*Stats, error)

	// Close closes the store and releases resources.
	Close() error
}
