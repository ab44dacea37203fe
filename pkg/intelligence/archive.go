package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/klauspost/compress/gzip"

	"github.com/agentdb/organizer-go/pkg/storage"
)

// ArchiveConfig contains the selection and compression policy for archival.
type ArchiveConfig struct {
	// ThresholdDays is the minimum age in days before a memory becomes
	// eligible for archival.
	ThresholdDays int `json:"threshold_days"`

	// LowImportanceMax is the boundary between the low and medium
	// importance bands. Eligible memories below it are archived together
	// in the low band.
	LowImportanceMax float64 `json:"low_importance_max"`

	// RetainMin is the "never archive automatically" floor. Memories at or
	// above it are excluded from archival regardless of age.
	RetainMin float64 `json:"retain_min"`

	// MaxSummaryLength caps the length of each archive summary in runes.
	MaxSummaryLength int `json:"max_summary_length"`
}

// DefaultArchiveConfig returns the default archival policy: memories older
// than 30 days, low band below 0.3, retained at or above 0.8, summaries
// capped at 256 runes.
func DefaultArchiveConfig() *ArchiveConfig {
	return &ArchiveConfig{
		ThresholdDays:    30,
		LowImportanceMax: 0.3,
		RetainMin:        0.8,
		MaxSummaryLength: 256,
	}
}

// archivedMemory is the serialized form of a memory inside an archive's
// compressed payload.
type archivedMemory struct {
	ID         string    `json:"id"`
	MemoryType string    `json:"memory_type"`
	Content    string    `json:"content"`
	Importance float32   `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArchiveManager compresses and archives aged, low-importance memories.
//
// Eligible memories (older than the age threshold, below the retain floor)
// are partitioned into a low and a medium importance band; each non-empty
// band becomes one archive record. Member memories are removed from active
// storage in the same transaction that writes the archives, so no memory is
// ever visible in both active and archived form.
//
// Example usage:
//
//	manager := intelligence.NewArchiveManager(store, node, nil, nil)
//	archives, err := manager.ArchiveOldMemories(ctx, 42)
type ArchiveManager struct {
	// store is the memory persistence backend.
	store storage.MemoryStore

	// node generates unique archive IDs.
	node *snowflake.Node

	// config contains the archival policy.
	config *ArchiveConfig

	// summarizer produces archive digests. When nil, or on summarizer
	// failure, a truncating summary of the archived content is used.
	summarizer Summarizer
}

// NewArchiveManager creates a new archive manager.
//
// Parameters:
//   - store: Memory persistence backend
//   - node: Snowflake node for archive ID generation
//   - config: Archival policy (nil uses DefaultArchiveConfig)
//   - summarizer: Optional digest generator (nil uses truncation)
func NewArchiveManager(store storage.MemoryStore, node *snowflake.Node, config *ArchiveConfig, summarizer Summarizer) *ArchiveManager {
	if config == nil {
		config = DefaultArchiveConfig()
	}
	return &ArchiveManager{
		store:      store,
		node:       node,
		config:     config,
		summarizer: summarizer,
	}
}

// ArchiveOldMemories archives the agent's aged, low-importance memories.
//
// Bands are archived in a fixed order (low importance first, then medium)
// and the whole run commits in a single transaction: a failure anywhere
// leaves the active store unchanged. An agent with no eligible memories
// yields an empty result and no error.
//
// Returns the created archives, one per non-empty band.
func (m *ArchiveManager) ArchiveOldMemories(ctx context.Context, agentID uint64) ([]*storage.Archive, error) {
	now := time.Now()
	cutoff := now.AddDate(0, 0, -m.config.ThresholdDays)

	candidates, err := m.store.ListMemories(ctx, agentID, &storage.ListOptions{OlderThan: &cutoff})
	if err != nil {
		return nil, err
	}

	var lowBand, mediumBand []*storage.Memory
	for _, memory := range candidates {
		importance := float64(memory.Importance)
		switch {
		case importance >= m.config.RetainMin:
			// Important enough to keep active regardless of age.
		case importance < m.config.LowImportanceMax:
			lowBand = append(lowBand, memory)
		default:
			mediumBand = append(mediumBand, memory)
		}
	}

	var writes []storage.ArchiveWrite
	for _, band := range [][]*storage.Memory{lowBand, mediumBand} {
		if len(band) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		write, err := m.buildArchive(ctx, agentID, band, now)
		if err != nil {
			return nil, err
		}
		writes = append(writes, write)
	}

	if len(writes) == 0 {
		return nil, nil
	}

	if err := m.store.CreateArchives(ctx, agentID, writes); err != nil {
		return nil, fmt.Errorf("persist archives: %w", err)
	}

	archives := make([]*storage.Archive, len(writes))
	for i, write := range writes {
		archives[i] = write.Archive
	}
	return archives, nil
}

// buildArchive serializes and compresses one importance band into an
// archive record.
func (m *ArchiveManager) buildArchive(ctx context.Context, agentID uint64, band []*storage.Memory, now time.Time) (storage.ArchiveWrite, error) {
	records := make([]archivedMemory, len(band))
	memoryIDs := make([]string, len(band))
	contents := make([]string, len(band))
	for i, memory := range band {
		records[i] = archivedMemory{
			ID:         memory.ID,
			MemoryType: memory.MemoryType,
			Content:    memory.Content,
			Importance: memory.Importance,
			CreatedAt:  memory.CreatedAt,
		}
		memoryIDs[i] = memory.ID
		contents[i] = memory.Content
	}

	original, err := json.Marshal(records)
	if err != nil {
		return storage.ArchiveWrite{}, fmt.Errorf("serialize band: %w", err)
	}

	compressed, err := compress(original)
	if err != nil {
		return storage.ArchiveWrite{}, fmt.Errorf("compress band: %w", err)
	}

	summary := m.summarize(ctx, contents)

	archive := &storage.Archive{
		ID:               fmt.Sprintf("archive-%s", m.node.Generate()),
		AgentID:          agentID,
		Compressed:       compressed,
		Summary:          summary,
		OriginalCount:    len(band),
		CompressionRatio: float32(len(compressed)) / float32(len(original)),
		ArchivedAt:       now,
	}

	return storage.ArchiveWrite{Archive: archive, MemoryIDs: memoryIDs}, nil
}

// summarize produces the archive digest, falling back to truncation when
// the configured summarizer fails.
func (m *ArchiveManager) summarize(ctx context.Context, contents []string) string {
	if m.summarizer != nil {
		summary, err := m.summarizer.Summarize(ctx, contents, m.config.MaxSummaryLength)
		if err == nil {
			return summary
		}
	}
	summary, _ := TruncatingSummarizer{}.Summarize(ctx, contents, m.config.MaxSummaryLength)
	return summary
}

// compress applies gzip to the serialized band payload.
func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress restores the serialized form of an archive's compressed
// payload. Exposed for inspection tooling and tests.
func Decompress(compressed []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
