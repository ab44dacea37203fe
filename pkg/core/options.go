// Package core provides the main Organizer client and memory organization functionality.
package core

import (
	"time"

	"go.uber.org/zap"

	"github.com/agentdb/organizer-go/pkg/intelligence"
	"github.com/agentdb/organizer-go/pkg/storage"
)

// Option is a function type for configuring an Organizer at construction.
type Option func(*organizerOptions)

// organizerOptions collects construction-time overrides.
type organizerOptions struct {
	store      storage.MemoryStore
	logger     *zap.Logger
	summarizer intelligence.Summarizer
}

// WithStore injects a pre-built storage backend, bypassing the provider
// selection in Config.Store. Useful for tests and custom backends.
//
// Example:
//
//	organizer, _ := core.NewOrganizer(cfg, core.WithStore(myStore))
func WithStore(store storage.MemoryStore) Option {
	return func(opts *organizerOptions) {
		opts.store = store
	}
}

// WithLogger sets the structured logger. The default is a no-op logger.
//
// Example:
//
//	logger, _ := zap.NewProduction()
//	organizer, _ := core.NewOrganizer(cfg, core.WithLogger(logger))
func WithLogger(logger *zap.Logger) Option {
	return func(opts *organizerOptions) {
		opts.logger = logger
	}
}

// WithSummarizer injects a custom archive summarizer, overriding
// Config.Summarizer.
func WithSummarizer(summarizer intelligence.Summarizer) Option {
	return func(opts *organizerOptions) {
		opts.summarizer = summarizer
	}
}

// AddOption is a function type for configuring AddMemory operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type AddOption func(*AddOptions)

// AddOptions contains configuration options for AddMemory operations.
type AddOptions struct {
	// AgentID identifies the agent that owns the memory.
	AgentID uint64

	// MemoryType classifies the memory. Defaults to TypeEpisodic.
	MemoryType MemoryType

	// Embedding is the optional vector embedding.
	Embedding []float32

	// Importance is the initial importance score. Defaults to 0.5.
	Importance float32

	// ExpiresAt sets an optional expiry time.
	ExpiresAt *time.Time
}

// ForAgent sets the owning agent for AddMemory operations.
//
// Example:
//
//	memory, _ := organizer.AddMemory(ctx, "content", core.ForAgent(42))
func ForAgent(agentID uint64) AddOption {
	return func(opts *AddOptions) {
		opts.AgentID = agentID
	}
}

// WithMemoryType sets the memory type for AddMemory operations.
//
// Example:
//
//	memory, _ := organizer.AddMemory(ctx, "content",
//	    core.ForAgent(42),
//	    core.WithMemoryType(core.TypeProcedural),
//	)
func WithMemoryType(memoryType MemoryType) AddOption {
	return func(opts *AddOptions) {
		opts.MemoryType = memoryType
	}
}

// WithEmbedding attaches a vector embedding for AddMemory operations.
func WithEmbedding(embedding []float32) AddOption {
	return func(opts *AddOptions) {
		opts.Embedding = embedding
	}
}

// WithImportance sets the initial importance score for AddMemory operations.
func WithImportance(importance float32) AddOption {
	return func(opts *AddOptions) {
		opts.Importance = importance
	}
}

// WithExpiry sets an expiry time for AddMemory operations. Expired
// memories are removed by PruneExpired.
func WithExpiry(expiresAt time.Time) AddOption {
	return func(opts *AddOptions) {
		opts.ExpiresAt = &expiresAt
	}
}

// ListOption is a function type for configuring ListMemories operations.
type ListOption func(*ListOptions)

// ListOptions contains configuration options for ListMemories operations.
type ListOptions struct {
	// MemoryType restricts results to one memory type (empty = all).
	MemoryType MemoryType

	// MinImportance restricts results to memories at or above the score.
	MinImportance float64

	// OnlyEmbedded restricts results to memories with embeddings.
	OnlyEmbedded bool

	// Limit caps the number of results (0 = no cap).
	Limit int

	// Offset skips the first N results.
	Offset int
}

// OfType restricts ListMemories results to one memory type.
//
// Example:
//
//	memories, _ := organizer.ListMemories(ctx, 42, core.OfType(core.TypeSemantic))
func OfType(memoryType MemoryType) ListOption {
	return func(opts *ListOptions) {
		opts.MemoryType = memoryType
	}
}

// MinImportance restricts ListMemories results to memories at or above
// the given importance score.
func MinImportance(score float64) ListOption {
	return func(opts *ListOptions) {
		opts.MinImportance = score
	}
}

// OnlyEmbedded restricts ListMemories results to memories with embeddings.
func OnlyEmbedded() ListOption {
	return func(opts *ListOptions) {
		opts.OnlyEmbedded = true
	}
}

// WithLimit caps the number of ListMemories results.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first N ListMemories results.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}
