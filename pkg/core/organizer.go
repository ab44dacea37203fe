// Package core provides the main Organizer client and memory organization functionality.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentdb/organizer-go/pkg/intelligence"
	"github.com/agentdb/organizer-go/pkg/storage"
	mysqlStore "github.com/agentdb/organizer-go/pkg/storage/mysql"
	postgresStore "github.com/agentdb/organizer-go/pkg/storage/postgres"
	sqliteStore "github.com/agentdb/organizer-go/pkg/storage/sqlite"
)

// defaultMaxConcurrentAgents bounds OrganizeAgents parallelism when the
// configuration does not.
const defaultMaxConcurrentAgents = 4

// Organizer is the main client for intelligent memory organization.
//
// It maintains per-agent memory collections and provides:
//   - Importance evaluation (access frequency, recency, content, type,
//     semantic association)
//   - K-means clustering of embedded memories
//   - Compression and archival of aged, low-importance memories
//
// All operations that rewrite an agent's memories are serialized per
// agent: concurrent calls for the same agent queue up to the configured
// lock timeout and then fail with ErrBusy. Operations on different
// agents proceed independently.
//
// Returned memories, clusters, and archives are caller-owned copies and
// remain valid after Close.
type Organizer struct {
	// config is the organizer configuration.
	config *Config

	// store is the memory persistence backend.
	store storage.MemoryStore

	// evaluator rescores memories on access.
	evaluator *intelligence.ImportanceEvaluator

	// clusterer groups embedded memories by similarity.
	clusterer *intelligence.ClusteringEngine

	// archiver compresses and removes aged, low-importance memories.
	archiver *intelligence.ArchiveManager

	// locker serializes operations per agent.
	locker *agentLocker

	// logger records structured operational events.
	logger *zap.Logger

	// closeOnce guards store shutdown.
	closeOnce sync.Once

	// closeErr holds the result of the first Close call.
	closeErr error
}

// NewOrganizer creates a new Organizer.
//
// The organizer is initialized with:
//   - Storage backend (SQLite, PostgreSQL, or MySQL)
//   - Importance scoring, clustering, and archival policies
//   - Per-agent lock table
//
// Parameters:
//   - cfg: Configuration containing storage and policy settings
//   - opts: Optional overrides (WithStore, WithLogger, WithSummarizer)
//
// Returns a new Organizer instance, or an error if initialization fails.
//
// Example:
//
//	config := core.DefaultConfig()
//	organizer, err := core.NewOrganizer(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer organizer.Close()
func NewOrganizer(cfg *Config, opts ...Option) (*Organizer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &organizerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	store := options.store
	if store == nil {
		var err error
		store, err = initStore(cfg.Store)
		if err != nil {
			return nil, err
		}
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewOrganizerError("NewOrganizer", err)
	}

	summarizer := options.summarizer
	if summarizer == nil && cfg.Summarizer != nil && cfg.Summarizer.Provider == "openai" {
		summarizer, err = intelligence.NewOpenAISummarizer(&intelligence.OpenAISummarizerConfig{
			APIKey:  cfg.Summarizer.APIKey,
			Model:   cfg.Summarizer.Model,
			BaseURL: cfg.Summarizer.BaseURL,
		})
		if err != nil {
			return nil, NewOrganizerError("NewOrganizer", err)
		}
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Organizer{
		config:    cfg,
		store:     store,
		evaluator: intelligence.NewImportanceEvaluator(store, cfg.Scoring),
		clusterer: intelligence.NewClusteringEngine(store, node, cfg.MaxClusterIterations),
		archiver:  intelligence.NewArchiveManager(store, node, cfg.Archive, summarizer),
		locker:    newAgentLocker(cfg.LockTimeout),
		logger:    logger,
	}, nil
}

// OpenAtPath creates an Organizer backed by a SQLite database at the
// given path, with default policies.
//
// Example:
//
//	organizer, err := core.OpenAtPath("./memories.db")
func OpenAtPath(storagePath string, opts ...Option) (*Organizer, error) {
	cfg := DefaultConfig()
	cfg.Store.Config = map[string]interface{}{"db_path": storagePath}
	return NewOrganizer(cfg, opts...)
}

// AddMemory adds a new memory for an agent.
//
// The memory receives a generated UUID, defaults to the episodic type,
// and starts with importance 0.5 unless overridden.
//
// Parameters:
//   - ctx: Context for cancellation
//   - content: Memory content (must not be empty)
//   - opts: Optional parameters (ForAgent, WithMemoryType, WithEmbedding, ...)
//
// Returns the created Memory, or an error if the operation fails.
//
// Example:
//
//	memory, err := organizer.AddMemory(ctx, "User prefers concise answers",
//	    core.ForAgent(42),
//	    core.WithMemoryType(core.TypeSemantic),
//	    core.WithEmbedding(embedding),
//	)
func (o *Organizer) AddMemory(ctx context.Context, content string, opts ...AddOption) (*Memory, error) {
	const op = "AddMemory"

	addOpts := &AddOptions{
		MemoryType: TypeEpisodic,
		Importance: 0.5,
	}
	for _, opt := range opts {
		opt(addOpts)
	}

	if content == "" {
		return nil, wrapError(op, fmt.Errorf("%w: content must not be empty", ErrInvalidArgument))
	}
	if !addOpts.MemoryType.Valid() {
		return nil, wrapError(op, fmt.Errorf("%w: unknown memory type %q", ErrInvalidArgument, addOpts.MemoryType))
	}
	if addOpts.Importance < 0 || addOpts.Importance > 1 {
		return nil, wrapError(op, fmt.Errorf("%w: importance must be in [0, 1]", ErrInvalidArgument))
	}
	if err := o.checkAgentID(addOpts.AgentID); err != nil {
		return nil, wrapError(op, err)
	}

	release, err := o.locker.acquire(ctx, addOpts.AgentID)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer release()

	now := time.Now()
	memory := &Memory{
		ID:          uuid.NewString(),
		AgentID:     addOpts.AgentID,
		MemoryType:  addOpts.MemoryType,
		Content:     content,
		Embedding:   addOpts.Embedding,
		Importance:  addOpts.Importance,
		AccessCount: 0,
		CreatedAt:   now,
		LastAccess:  now,
		ExpiresAt:   addOpts.ExpiresAt,
	}

	if err := o.store.InsertMemory(ctx, toStorageMemory(memory)); err != nil {
		return nil, wrapError(op, err)
	}

	o.logger.Debug("memory added",
		zap.String("op", op),
		zap.Uint64("agent_id", addOpts.AgentID),
		zap.String("memory_id", memory.ID),
		zap.String("memory_type", string(addOpts.MemoryType)),
	)

	return memory, nil
}

// GetMemory retrieves a memory and records the access.
//
// The access bumps the memory's access count and last-access time, which
// feed later importance evaluations.
//
// Returns ErrNotFound if no such memory exists for the agent.
func (o *Organizer) GetMemory(ctx context.Context, memoryID string, agentID uint64) (*Memory, error) {
	const op = "GetMemory"

	if memoryID == "" {
		return nil, wrapError(op, fmt.Errorf("%w: memory id must not be empty", ErrInvalidArgument))
	}
	if err := o.checkAgentID(agentID); err != nil {
		return nil, wrapError(op, err)
	}

	release, err := o.locker.acquire(ctx, agentID)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer release()

	record, err := o.store.GetMemory(ctx, memoryID, agentID)
	if err != nil {
		return nil, wrapError(op, err)
	}

	now := time.Now()
	record.AccessCount++
	record.LastAccess = now
	if err := o.store.UpdateScore(ctx, memoryID, agentID, record.Importance, record.AccessCount, now); err != nil {
		return nil, wrapError(op, err)
	}

	return fromStorageMemory(record), nil
}

// ListMemories lists an agent's active memories ordered by creation time.
//
// Example:
//
//	memories, err := organizer.ListMemories(ctx, 42,
//	    core.OfType(core.TypeSemantic),
//	    core.MinImportance(0.5),
//	)
func (o *Organizer) ListMemories(ctx context.Context, agentID uint64, opts ...ListOption) ([]*Memory, error) {
	const op = "ListMemories"

	if err := o.checkAgentID(agentID); err != nil {
		return nil, wrapError(op, err)
	}

	listOpts := &ListOptions{}
	for _, opt := range opts {
		opt(listOpts)
	}

	records, err := o.store.ListMemories(ctx, agentID, &storage.ListOptions{
		MemoryType:    string(listOpts.MemoryType),
		MinImportance: listOpts.MinImportance,
		OnlyEmbedded:  listOpts.OnlyEmbedded,
		Limit:         listOpts.Limit,
		Offset:        listOpts.Offset,
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	return fromStorageMemories(records), nil
}

// DeleteMemory removes a memory from active storage.
//
// Returns ErrNotFound if no such memory exists for the agent.
func (o *Organizer) DeleteMemory(ctx context.Context, memoryID string, agentID uint64) error {
	const op = "DeleteMemory"

	if memoryID == "" {
		return wrapError(op, fmt.Errorf("%w: memory id must not be empty", ErrInvalidArgument))
	}
	if err := o.checkAgentID(agentID); err != nil {
		return wrapError(op, err)
	}

	release, err := o.locker.acquire(ctx, agentID)
	if err != nil {
		return wrapError(op, err)
	}
	defer release()

	if err := o.store.DeleteMemory(ctx, memoryID, agentID); err != nil {
		return wrapError(op, err)
	}
	return nil
}

// EvaluateImportance recomputes and persists a memory's importance score.
//
// The score combines access frequency, recency, content length, memory
// type, and semantic association with the agent's other embedded
// memories. The evaluation itself counts as an access.
//
// Returns the new score in [0.0, 1.0], or ErrNotFound if no such memory
// exists for the agent.
//
// Example:
//
//	score, err := organizer.EvaluateImportance(ctx, memory.ID, 42)
func (o *Organizer) EvaluateImportance(ctx context.Context, memoryID string, agentID uint64) (float32, error) {
	const op = "EvaluateImportance"

	if memoryID == "" {
		return 0, wrapError(op, fmt.Errorf("%w: memory id must not be empty", ErrInvalidArgument))
	}
	if err := o.checkAgentID(agentID); err != nil {
		return 0, wrapError(op, err)
	}

	release, err := o.locker.acquire(ctx, agentID)
	if err != nil {
		return 0, wrapError(op, err)
	}
	defer release()

	score, err := o.evaluator.Evaluate(ctx, memoryID, agentID)
	if err != nil {
		return 0, wrapError(op, err)
	}

	o.logger.Debug("importance evaluated",
		zap.String("op", op),
		zap.Uint64("agent_id", agentID),
		zap.String("memory_id", memoryID),
		zap.Float32("score", score),
	)

	return score, nil
}

// ClusterMemories groups the agent's embedded memories into clusters
// using k-means with k = floor(sqrt(n)) + 1.
//
// The run replaces any clusters from a previous run. Memories without
// embeddings are ignored; an agent with no embedded memories yields an
// empty result and no error.
//
// Returns the new clusters.
//
// Example:
//
//	clusters, err := organizer.ClusterMemories(ctx, 42)
func (o *Organizer) ClusterMemories(ctx context.Context, agentID uint64) ([]*MemoryCluster, error) {
	const op = "ClusterMemories"

	if err := o.checkAgentID(agentID); err != nil {
		return nil, wrapError(op, err)
	}

	release, err := o.locker.acquire(ctx, agentID)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer release()

	return o.clusterLocked(ctx, agentID)
}

// clusterLocked runs clustering with the agent's lock already held.
func (o *Organizer) clusterLocked(ctx context.Context, agentID uint64) ([]*MemoryCluster, error) {
	const op = "ClusterMemories"
	start := time.Now()

	clusters, err := o.clusterer.ClusterMemories(ctx, agentID)
	if err != nil {
		return nil, wrapError(op, err)
	}

	o.logger.Info("memories clustered",
		zap.String("op", op),
		zap.Uint64("agent_id", agentID),
		zap.Int("clusters", len(clusters)),
		zap.Duration("duration", time.Since(start)),
	)

	return fromStorageClusters(clusters), nil
}

// ArchiveOldMemories compresses and archives the agent's aged,
// low-importance memories.
//
// Eligible memories (older than the archive threshold, below the retain
// floor) are grouped into a low and a medium importance band; each
// non-empty band becomes one archive. Archived memories leave active
// storage atomically with archive creation.
//
// Returns the created archives; an agent with nothing to archive yields
// an empty result and no error.
//
// Example:
//
//	archives, err := organizer.ArchiveOldMemories(ctx, 42)
func (o *Organizer) ArchiveOldMemories(ctx context.Context, agentID uint64) ([]*MemoryArchive, error) {
	const op = "ArchiveOldMemories"

	if err := o.checkAgentID(agentID); err != nil {
		return nil, wrapError(op, err)
	}

	release, err := o.locker.acquire(ctx, agentID)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer release()

	return o.archiveLocked(ctx, agentID)
}

// archiveLocked runs archival with the agent's lock already held.
func (o *Organizer) archiveLocked(ctx context.Context, agentID uint64) ([]*MemoryArchive, error) {
	const op = "ArchiveOldMemories"
	start := time.Now()

	archives, err := o.archiver.ArchiveOldMemories(ctx, agentID)
	if err != nil {
		return nil, wrapError(op, err)
	}

	archived := 0
	for _, archive := range archives {
		archived += archive.OriginalCount
	}

	o.logger.Info("memories archived",
		zap.String("op", op),
		zap.Uint64("agent_id", agentID),
		zap.Int("archives", len(archives)),
		zap.Int("memories", archived),
		zap.Duration("duration", time.Since(start)),
	)

	return fromStorageArchives(archives), nil
}

// PruneExpired removes the agent's expired memories.
//
// Returns the number of memories removed.
func (o *Organizer) PruneExpired(ctx context.Context, agentID uint64) (int, error) {
	const op = "PruneExpired"

	if err := o.checkAgentID(agentID); err != nil {
		return 0, wrapError(op, err)
	}

	release, err := o.locker.acquire(ctx, agentID)
	if err != nil {
		return 0, wrapError(op, err)
	}
	defer release()

	pruned, err := o.store.DeleteExpired(ctx, agentID, time.Now())
	if err != nil {
		return 0, wrapError(op, err)
	}

	if pruned > 0 {
		o.logger.Info("expired memories pruned",
			zap.String("op", op),
			zap.Uint64("agent_id", agentID),
			zap.Int("pruned", pruned),
		)
	}

	return pruned, nil
}

// Stats returns summary statistics over the agent's active memories.
func (o *Organizer) Stats(ctx context.Context, agentID uint64) (*MemoryStats, error) {
	const op = "Stats"

	if err := o.checkAgentID(agentID); err != nil {
		return nil, wrapError(op, err)
	}

	stats, err := o.store.Stats(ctx, agentID)
	if err != nil {
		return nil, wrapError(op, err)
	}
	return fromStorageStats(stats), nil
}

// ListClusters returns the agent's clusters from the most recent
// clustering run.
func (o *Organizer) ListClusters(ctx context.Context, agentID uint64) ([]*MemoryCluster, error) {
	const op = "ListClusters"

	if err := o.checkAgentID(agentID); err != nil {
		return nil, wrapError(op, err)
	}

	clusters, err := o.store.ListClusters(ctx, agentID)
	if err != nil {
		return nil, wrapError(op, err)
	}
	return fromStorageClusters(clusters), nil
}

// ListArchives returns the agent's archives, newest first.
func (o *Organizer) ListArchives(ctx context.Context, agentID uint64) ([]*MemoryArchive, error) {
	const op = "ListArchives"

	if err := o.checkAgentID(agentID); err != nil {
		return nil, wrapError(op, err)
	}

	archives, err := o.store.ListArchives(ctx, agentID)
	if err != nil {
		return nil, wrapError(op, err)
	}
	return fromStorageArchives(archives), nil
}

// OrganizeAgents runs a full organization pass (evaluate, cluster,
// archive) for each agent concurrently.
//
// Parallelism is bounded by Config.MaxConcurrentAgents. Each agent's
// pass holds that agent's lock for its duration, so passes never
// interleave with other operations on the same agent. The first
// per-agent failure cancels the remaining work.
//
// Returns a report per successfully organized agent.
//
// Example:
//
//	reports, err := organizer.OrganizeAgents(ctx, []uint64{1, 2, 3})
func (o *Organizer) OrganizeAgents(ctx context.Context, agentIDs []uint64) (map[uint64]*OrganizeReport, error) {
	const op = "OrganizeAgents"

	for _, agentID := range agentIDs {
		if err := o.checkAgentID(agentID); err != nil {
			return nil, wrapError(op, err)
		}
	}

	limit := o.config.MaxConcurrentAgents
	if limit <= 0 {
		limit = defaultMaxConcurrentAgents
	}

	var mu sync.Mutex
	reports := make(map[uint64]*OrganizeReport, len(agentIDs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for _, agentID := range agentIDs {
		agentID := agentID
		group.Go(func() error {
			report, err := o.organizeAgent(groupCtx, agentID)
			if err != nil {
				return err
			}
			mu.Lock()
			reports[agentID] = report
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, wrapError(op, err)
	}
	return reports, nil
}

// organizeAgent runs one agent's evaluate/cluster/archive pass under its
// lock.
func (o *Organizer) organizeAgent(ctx context.Context, agentID uint64) (*OrganizeReport, error) {
	const op = "OrganizeAgents"
	start := time.Now()

	release, err := o.locker.acquire(ctx, agentID)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer release()

	memories, err := o.store.ListMemories(ctx, agentID, nil)
	if err != nil {
		return nil, wrapError(op, err)
	}
	for _, memory := range memories {
		if _, err := o.evaluator.Evaluate(ctx, memory.ID, agentID); err != nil {
			return nil, wrapError(op, err)
		}
	}

	clusters, err := o.clusterLocked(ctx, agentID)
	if err != nil {
		return nil, err
	}

	archives, err := o.archiveLocked(ctx, agentID)
	if err != nil {
		return nil, err
	}

	archived := 0
	for _, archive := range archives {
		archived += archive.OriginalCount
	}

	return &OrganizeReport{
		AgentID:          agentID,
		Evaluated:        len(memories),
		Clusters:         len(clusters),
		Archives:         len(archives),
		ArchivedMemories: archived,
		Duration:         time.Since(start),
	}, nil
}

// Close releases the organizer's resources.
//
// Close is idempotent. Previously returned memories, clusters, and
// archives remain valid after Close.
//
// Example:
//
//	defer organizer.Close()
func (o *Organizer) Close() error {
	o.closeOnce.Do(func() {
		if o.store != nil {
			o.closeErr = o.store.Close()
		}
	})
	return o.closeErr
}

// checkAgentID enforces the agent ID policy.
func (o *Organizer) checkAgentID(agentID uint64) error {
	if agentID == 0 && !o.config.AllowZeroAgentID {
		return fmt.Errorf("%w: agent id must not be zero", ErrInvalidArgument)
	}
	return nil
}

// initStore initializes the storage backend.
func initStore(cfg StoreConfig) (storage.MemoryStore, error) {
	switch cfg.Provider {
	case "sqlite":
		dbPath, _ := cfg.Config["db_path"].(string)
		if dbPath == "" {
			return nil, NewOrganizerError("initStore", fmt.Errorf("%w: db_path is required", ErrInvalidConfig))
		}
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath: dbPath,
		})
	case "postgres":
		sslMode := "disable"
		if s, ok := cfg.Config["ssl_mode"].(string); ok {
			sslMode = s
		}
		return postgresStore.NewClient(&postgresStore.Config{
			Host:     stringValue(cfg.Config, "host"),
			Port:     intValue(cfg.Config, "port"),
			User:     stringValue(cfg.Config, "user"),
			Password: stringValue(cfg.Config, "password"),
			DBName:   stringValue(cfg.Config, "db_name"),
			SSLMode:  sslMode,
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:     stringValue(cfg.Config, "host"),
			Port:     intValue(cfg.Config, "port"),
			User:     stringValue(cfg.Config, "user"),
			Password: stringValue(cfg.Config, "password"),
			DBName:   stringValue(cfg.Config, "db_name"),
		})
	default:
		return nil, NewOrganizerError("initStore", fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, cfg.Provider))
	}
}

// stringValue reads a string from a provider config map.
func stringValue(config map[string]interface{}, key string) string {
	value, _ := config[key].(string)
	return value
}

// intValue reads an int from a provider config map, tolerating the
// float64 produced by JSON decoding.
func intValue(config map[string]interface{}, key string) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
