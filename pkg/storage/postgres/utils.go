package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/agentdb/organizer-go/pkg/storage"
)

// scanMemoryRow scans a memory using the scan function of a row or rows.
func scanMemoryRow(scan func(dest ...interface{}) error) (*storage.Memory, error) {
	var memory storage.Memory
	var agentIDRaw int64
	var embeddingStr sql.NullString
	var expiresAt sql.NullTime
	var clusterID sql.NullString

	err := scan(
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
