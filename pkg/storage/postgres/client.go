// Package postgres provides the PostgreSQL implementation of the MemoryStore
// contract.
//
// Embedding vectors and cluster member lists are stored as JSONB, compressed
// archive payloads as BYTEA. Suitable for shared multi-node deployments
// where several organizer processes point at the same database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentdb/organizer-go/pkg/storage"
	_ "github.com/lib/pq"
)

// Client implements MemoryStore using PostgreSQL as the backend.
type Client struct {
	db *sql.DB
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewClient creates a new PostgreSQL MemoryStore client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{db: db}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
func (c *Client) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			agent_id BIGINT NOT NULL,
			memory_type VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			embedding JSONB,
			importance REAL NOT NULL DEFAULT 0.0,
			access_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			last_access TIMESTAMP NOT NULL,
			expires_at TIMESTAMP,
			cluster_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS memory_clusters (
			id TEXT PRIMARY KEY,
			agent_id BIGINT NOT NULL,
			memory_ids JSONB NOT NULL,
			centroid JSONB NOT NULL,
			importance REAL NOT NULL DEFAULT 0.0,
			created_at TIMESTAMP NOT NULL,
			last_access TIMESTAMP NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS memory_archives (
			id TEXT PRIMARY KEY,
			agent_id BIGINT NOT NULL,
			compressed BYTEA NOT NULL,
			summary TEXT NOT NULL,
			original_count INTEGER NOT NULL,
			compression_ratio REAL NOT NULL,
			archived_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_agent_created ON memories(agent_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_clusters_agent ON memory_clusters(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_archives_agent ON memory_archives(agent_id)`,
	}

	for _, query := range queries {
		if _, err := c.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}

	return nil
}

// InsertMemory inserts a memory record.
func (c *Client) InsertMemory(ctx context.Context, memory *storage.Memory) error {
	embeddingJSON, err := marshalEmbedding(memory.Embedding)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memories
		(id, agent_id, memory_type, content, embedding, importance, access_count, created_at, last_access, expires_at, cluster_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		memory.ID,
		int64(memory.AgentID),
		memory.MemoryType,
		memory.Content,
		embeddingJSON,
		memory.Importance,
		memory.AccessCount,
		memory.CreatedAt,
		memory.LastAccess,
		nullableTime(memory.ExpiresAt),
		nullableString(memory.ClusterID),
	)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}

	return nil
}

// GetMemory retrieves a memory by ID, scoped to the given agent.
func (c *Client) GetMemory(ctx context.Context, id string, agentID uint64) (*storage.Memory, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, agent_id, memory_type, content, embedding, importance, access_count, created_at, last_access, expires_at, cluster_id
		FROM memories
		WHERE id = $1 AND agent_id = $2
	`, id, int64(agentID))

	memory, err := scanMemoryRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("GetMemory: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetMemory: %w", err)
	}

	return memory, nil
}

// UpdateScore updates a memory's importance, access count, and last access time.
func (c *Client) UpdateScore(ctx context.Context, id string, agentID uint64, importance float32, accessCount uint32, lastAccess time.Time) error {
	result, err := c.db.ExecContext(ctx, `
		UPDATE memories
		SET importance = $1, access_count = $2, last_access = $3
		WHERE id = $4 AND agent_id = $5
	`, importance, accessCount, lastAccess, id, int64(agentID))
	if err != nil {
		return fmt.Errorf("UpdateScore: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateScore: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("UpdateScore: %w", storage.ErrNotFound)
	}

	return nil
}

// DeleteMemory deletes a memory by ID, scoped to the given agent.
func (c *Client) DeleteMemory(ctx context.Context, id string, agentID uint64) error {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id = $1 AND agent_id = $2`, id, int64(agentID))
	if err != nil {
		return fmt.Errorf("DeleteMemory: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteMemory: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("DeleteMemory: %w", storage.ErrNotFound)
	}

	return nil
}

// ListMemories retrieves an agent's memories ordered by creation time, then ID.
func (c *Client) ListMemories(ctx context.Context, agentID uint64, opts *storage.ListOptions) ([]*storage.Memory, error) {
	conditions := []string{"agent_id = $1"}
	args := []interface{}{int64(agentID)}

	if opts != nil {
		if opts.OnlyEmbedded {
			conditions = append(conditions, "embedding IS NOT NULL")
		}
		if opts.MemoryType != "" {
			args = append(args, opts.MemoryType)
			conditions = append(conditions, fmt.Sprintf("memory_type = $%d", len(args)))
		}
		if opts.OlderThan != nil {
			args = append(args, *opts.OlderThan)
			conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
		}
		if opts.MinImportance > 0 {
			args = append(args, opts.MinImportance)
			conditions = append(conditions, fmt.Sprintf("importance >= $%d", len(args)))
		}
	}

	query := `
		SELECT id, agent_id, memory_type, content, embedding, importance, access_count, created_at, last_access, expires_at, cluster_id
		FROM memories
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY created_at ASC, id ASC`

	if opts != nil && opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListMemories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemoryRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ListMemories: %w", err)
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListMemories: %w", err)
	}

	return memories, nil
}

// DeleteExpired removes the agent's memories whose expiry time has passed.
func (c *Client) DeleteExpired(ctx context.Context, agentID uint64, now time.Time) (int, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM memories WHERE agent_id = $1 AND expires_at IS NOT NULL AND expires_at < $2`,
		int64(agentID), now)
	if err != nil {
		return 0, fmt.Errorf("DeleteExpired: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteExpired: %w", err)
	}

	return int(rowsAffected), nil
}

// ReplaceClusters atomically replaces the agent's entire cluster set.
func (c *Client) ReplaceClusters(ctx context.Context, agentID uint64, clusters []*storage.Cluster) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ReplaceClusters: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_clusters WHERE agent_id = $1`, int64(agentID)); err != nil {
		return fmt.Errorf("ReplaceClusters: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET cluster_id = NULL WHERE agent_id = $1`, int64(agentID)); err != nil {
		return fmt.Errorf("ReplaceClusters: %w", err)
	}

	for _, cluster := range clusters {
		memoryIDsJSON, err := json.Marshal(cluster.MemoryIDs)
		if err != nil {
			return fmt.Errorf("ReplaceClusters: %w", err)
		}
		centroidJSON, err := json.Marshal(cluster.Centroid)
		if err != nil {
			return fmt.Errorf("ReplaceClusters: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_clusters
			(id, agent_id, memory_ids, centroid, importance, created_at, last_access, access_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			cluster.ID,
			int64(cluster.AgentID),
			string(memoryIDsJSON),
			string(centroidJSON),
			cluster.Importance,
			cluster.CreatedAt,
			cluster.LastAccess,
			cluster.AccessCount,
		); err != nil {
			return fmt.Errorf("ReplaceClusters: %w", err)
		}

		for _, memoryID := range cluster.MemoryIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE memories SET cluster_id = $1 WHERE id = $2 AND agent_id = $3`,
				cluster.ID, memoryID, int64(agentID)); err != nil {
				return fmt.Errorf("ReplaceClusters: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ReplaceClusters: %w", err)
	}

	return nil
}

// CreateArchives atomically inserts archive records and deletes their member
// memories.
func (c *Client) CreateArchives(ctx context.Context, agentID uint64, writes []storage.ArchiveWrite) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("CreateArchives: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, write := range writes {
		archive := write.Archive
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_archives
			(id, agent_id, compressed, summary, original_count, compression_ratio, archived_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			archive.ID,
			int64(archive.AgentID),
			archive.Compressed,
			archive.Summary,
			archive.OriginalCount,
			archive.CompressionRatio,
			archive.ArchivedAt,
		); err != nil {
			return fmt.Errorf("CreateArchives: %w", err)
		}

		for _, memoryID := range write.MemoryIDs {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM memories WHERE id = $1 AND agent_id = $2`,
				memoryID, int64(agentID)); err != nil {
				return fmt.Errorf("CreateArchives: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("CreateArchives: %w", err)
	}

	return nil
}

// ListClusters retrieves the agent's clusters ordered by creation time, then ID.
func (c *Client) ListClusters(ctx context.Context, agentID uint64) ([]*storage.Cluster, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, agent_id, memory_ids, centroid, importance, created_at, last_access, access_count
		FROM memory_clusters
		WHERE agent_id = $1
		ORDER BY created_at ASC, id ASC
	`, int64(agentID))
	if err != nil {
		return nil, fmt.Errorf("ListClusters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clusters []*storage.Cluster
	for rows.Next() {
		var cluster storage.Cluster
		var agentIDRaw int64
		var memoryIDsStr, centroidStr string

		if err := rows.Scan(
			&cluster.ID,
			&agentIDRaw,
			&memoryIDsStr,
			&centroidStr,
			&cluster.Importance,
			&cluster.CreatedAt,
			&cluster.LastAccess,
			&cluster.AccessCount,
		); err != nil {
			return nil, fmt.Errorf("ListClusters: %w", err)
		}

		cluster.AgentID = uint64(agentIDRaw)
		if err := json.Unmarshal([]byte(memoryIDsStr), &cluster.MemoryIDs); err != nil {
			return nil, fmt.Errorf("ListClusters: parse memory_ids: %w", err)
		}
		if err := json.Unmarshal([]byte(centroidStr), &cluster.Centroid); err != nil {
			return nil, fmt.Errorf("ListClusters: parse centroid: %w", err)
		}

		clusters = append(clusters, &cluster)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListClusters: %w", err)
	}

	return clusters, nil
}

// ListArchives retrieves the agent's archives ordered by archive time, then ID.
func (c *Client) ListArchives(ctx context.Context, agentID uint64) ([]*storage.Archive, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, agent_id, compressed, summary, original_count, compression_ratio, archived_at
		FROM memory_archives
		WHERE agent_id = $1
		ORDER BY archived_at ASC, id ASC
	`, int64(agentID))
	if err != nil {
		return nil, fmt.Errorf("ListArchives: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var archives []*storage.Archive
	for rows.Next() {
		var archive storage.Archive
		var agentIDRaw int64

		if err := rows.Scan(
			&archive.ID,
			&agentIDRaw,
			&archive.Compressed,
			&archive.Summary,
			&archive.OriginalCount,
			&archive.CompressionRatio,
			&archive.ArchivedAt,
		); err != nil {
			return nil, fmt.Errorf("ListArchives: %w", err)
		}

		archive.AgentID = uint64(agentIDRaw)
		archives = append(archives, &archive)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListArchives: %w", err)
	}

	return archives, nil
}

// Stats computes aggregate statistics over the agent's active memories.
func (c *Client) Stats(ctx context.Context, agentID uint64) (*storage.Stats, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT memory_type, COUNT(*), COALESCE(SUM(importance), 0), COALESCE(SUM(access_count), 0)
		FROM memories
		WHERE agent_id = $1
		GROUP BY memory_type
	`, int64(agentID))
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &storage.Stats{CountsByType: make(map[string]int)}
	var totalImportance, totalAccess float64

	for rows.Next() {
		var memoryType string
		var count int
		var sumImportance, sumAccess float64

		if err := rows.Scan(&memoryType, &count, &sumImportance, &sumAccess); err != nil {
			return nil, fmt.Errorf("Stats: %w", err)
		}

		stats.CountsByType[memoryType] = count
		stats.TotalCount += count
		totalImportance += sumImportance
		totalAccess += sumAccess
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}

	if stats.TotalCount > 0 {
		stats.AvgImportance = totalImportance / float64(stats.TotalCount)
		stats.AvgAccessCount = totalAccess / float64(stats.TotalCount)
	}

	return stats, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
