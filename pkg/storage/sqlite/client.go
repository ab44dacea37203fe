// Package sqlite provides the SQLite implementation of the MemoryStore
// contract.
//
// SQLite is a lightweight, file-based database suitable for local
// development and single-node deployments. Embedding vectors are stored as
// JSON strings in TEXT fields.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentdb/organizer-go/pkg/storage"
	_ "github.com/mattn/go-sqlite3"
)

// Client implements MemoryStore using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB
}

// Config contains configuration for creating a SQLite MemoryStore.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient creates a new SQLite MemoryStore client.
//
// Parameters:
//   - cfg: Configuration containing the database file path
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
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
			agent_id INTEGER NOT NULL,
			memory_type TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT,
			importance REAL NOT NULL DEFAULT 0.0,
			access_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_access DATETIME NOT NULL,
			expires_at DATETIME,
			cluster_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS memory_clusters (
			id TEXT PRIMARY KEY,
			agent_id INTEGER NOT NULL,
			memory_ids TEXT NOT NULL,
			centroid TEXT NOT NULL,
			importance REAL NOT NULL DEFAULT 0.0,
			created_at DATETIME NOT NULL,
			last_access DATETIME NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS memory_archives (
			id TEXT PRIMARY KEY,
			agent_id INTEGER NOT NULL,
			compressed BLOB NOT NULL,
			summary TEXT NOT NULL,
			original_count INTEGER NOT NULL,
			compression_ratio REAL NOT NULL,
			archived_at DATETIME NOT NULL
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

// InsertMemory inserts a memory into the SQLite database.
func (c *Client) InsertMemory(ctx context.Context, memory *storage.Memory) error {
	embeddingJSON, err := marshalEmbedding(memory.Embedding)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memories
		(id, agent_id, memory_type, content, embedding, importance, access_count, created_at, last_access, expires_at, cluster_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		WHERE id = ? AND agent_id = ?
	`, id, int64(agentID))

	memory, err := scanMemory(row)
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
		SET importance = ?, access_count = ?, last_access = ?
		WHERE id = ? AND agent_id = ?
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
		`DELETE FROM memories WHERE id = ? AND agent_id = ?`, id, int64(agentID))
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
	whereClause, args := buildListWhere(agentID, opts)

	query := `
		SELECT id, agent_id, memory_type, content, embedding, importance, access_count, created_at, last_access, expires_at, cluster_id
		FROM memories
		` + whereClause + `
		ORDER BY created_at ASC, id ASC`

	if opts != nil && opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListMemories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
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
		`DELETE FROM memories WHERE agent_id = ? AND expires_at IS NOT NULL AND expires_at < ?`,
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
		`DELETE FROM memory_clusters WHERE agent_id = ?`, int64(agentID)); err != nil {
		return fmt.Errorf("ReplaceClusters: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET cluster_id = NULL WHERE agent_id = ?`, int64(agentID)); err != nil {
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
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
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
				`UPDATE memories SET cluster_id = ? WHERE id = ? AND agent_id = ?`,
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
// memories. A failure rolls back the whole batch, leaving the active store
// unchanged.
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
			VALUES (?, ?, ?, ?, ?, ?, ?)
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
				`DELETE FROM memories WHERE id = ? AND agent_id = ?`,
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
		WHERE agent_id = ?
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
		WHERE agent_id = ?
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
		WHERE agent_id = ?
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
