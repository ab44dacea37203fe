package core_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdb/organizer-go/pkg/core"
	"github.com/agentdb/organizer-go/pkg/intelligence"
)

func TestDefaultConfig(t *testing.T) {
	config := core.DefaultConfig()

	assert.Equal(t, "sqlite", config.Store.Provider)
	assert.Equal(t, 5*time.Second, config.LockTimeout)
	assert.Equal(t, 4, config.MaxConcurrentAgents)
	assert.False(t, config.AllowZeroAgentID)
	assert.NoError(t, config.Validate())
}

func TestValidateMissingProvider(t *testing.T) {
	config := &core.Config{}

	err := config.Validate()
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Equal(t, core.CodeInvalidArgument, core.ErrorCode(err))
}

func TestValidateArchiveBands(t *testing.T) {
	config := core.DefaultConfig()
	config.Archive = &intelligence.ArchiveConfig{
		ThresholdDays:    30,
		LowImportanceMax: 0.9,
		RetainMin:        0.3, // inverted bands
		MaxSummaryLength: 256,
	}

	assert.ErrorIs(t, config.Validate(), core.ErrInvalidConfig)
}

func TestValidateNegativeLockTimeout(t *testing.T) {
	config := core.DefaultConfig()
	config.LockTimeout = -time.Second

	assert.ErrorIs(t, config.Validate(), core.ErrInvalidConfig)
}

func TestValidateTypeWeights(t *testing.T) {
	config := core.DefaultConfig()
	config.Scoring = &intelligence.ScoringConfig{
		TypeWeights: map[string]float64{"episodic": 1.5},
	}

	assert.ErrorIs(t, config.Validate(), core.ErrInvalidConfig)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	payload := `{
		"store": {
			"provider": "postgres",
			"config": {
				"host": "db.internal",
				"port": 5432,
				"user": "organizer",
				"db_name": "memories"
			}
		},
		"max_concurrent_agents": 8,
		"allow_zero_agent_id": true
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	config, err := core.LoadConfigFromJSON(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", config.Store.Provider)
	assert.Equal(t, "db.internal", config.Store.Config["host"])
	assert.Equal(t, 8, config.MaxConcurrentAgents)
	assert.True(t, config.AllowZeroAgentID)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigFromJSONMissingFile(t *testing.T) {
	_, err := core.LoadConfigFromJSON(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
