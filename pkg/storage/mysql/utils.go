package mysql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/agentdb/organizer-go/pkg/storage"
)

// buildListWhere builds the WHERE clause for ListMemories.
func buildListWhere(agentID uint64, opts *storage.ListOptions) (string, []interface{}) {
	conditions := []string{"agent_id = ?"}
	args := []interface{}{int64(agentID)}

	if opts != nil {
		if opts.OnlyEmbedded {
			conditions = append(conditions, "embedding IS NOT NULL")
		}
		if opts.MemoryType != "" {
			conditions = append(conditions, "memory_type = ?")
			args = append(args, opts.MemoryType)
		}
		if opts.OlderThan != nil {
			conditions = append(conditions, "created_at < ?")
			args = append(args, *opts.OlderThan)
		}
		if opts.MinImportance > 0 {
			conditions = append(conditions, "importance >= ?")
			args = append(args, opts.MinImportance)
		}
	}

	where := "WHERE " + conditions[0]
	for _, cond := range conditions[1:] {
		where += " AND " + cond
	}
	return where, args
}

// marshalEmbedding serializes an embedding to a nullable JSON string.
func marshalEmbedding(embedding []float32) (sql.NullString, error) {
	if embedding == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// nullableTime converts an optional time to a driver-friendly NullTime.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullableString converts an optional string to a driver-friendly NullString.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// scanMemory scans a memory from a database row or rows.
func scanMemory(scanner interface{}) (*storage.Memory, error) {
	var memory storage.Memory
	var agentIDRaw int64
	var embeddingStr sql.NullString
	var expiresAt sql.NullTime
	var clusterID sql.NullString

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(
			&memory.ID,
			&agentIDRaw,
			&memory.MemoryType,
			&memory.Content,
			&embeddingStr,
			&memory.Importance,
			&memory.AccessCount,
			&memory.CreatedAt,
			&memory.LastAccess,
			&expiresAt,
			&clusterID,
		)
	case *sql.Rows:
		err = s.Scan(
			&memory.ID,
			&agentIDRaw,
			&memory.MemoryType,
			&memory.Content,
			&embeddingStr,
			&memory.Importance,
			&memory.AccessCount,
			&memory.CreatedAt,
			&memory.LastAccess,
			&expiresAt,
			&clusterID,
		)
	default:
		return nil, errors.New("unsupported scanner type")
	}
	if err != nil {
		return nil, err
	}

	memory.AgentID = uint64(agentIDRaw)

	if embeddingStr.Valid {
		if err := json.Unmarshal([]byte(embeddingStr.String), &memory.Embedding); err != nil {
			return nil, err
		}
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		memory.ExpiresAt = &t
	}
	if clusterID.Valid {
		memory.ClusterID = clusterID.String
	}

	return &memory, nil
}
