// Package core provides the main Organizer client and memory organization functionality.
package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentdb/organizer-go/pkg/intelligence"
)

// Config contains the complete configuration for an Organizer.
//
// It includes settings for:
//   - Storage backend (sqlite, postgres, mysql)
//   - Importance scoring weights
//   - Clustering and archival policies
//   - Per-agent locking and batch concurrency
//
// Example:
//
//	config := &core.Config{
//	    Store: core.StoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./memories.db",
//	        },
//	    },
//	}
type Config struct {
	// Store contains storage backend configuration.
	Store StoreConfig `json:"store"`

	// Scoring contains importance scoring configuration (nil uses defaults).
	Scoring *intelligence.ScoringConfig `json:"scoring,omitempty"`

	// Archive contains archival policy configuration (nil uses defaults).
	Archive *intelligence.ArchiveConfig `json:"archive,omitempty"`

	// MaxClusterIterations caps k-means iterations (0 uses the default of 100).
	MaxClusterIterations int `json:"max_cluster_iterations,omitempty"`

	// Summarizer contains optional LLM summarizer configuration.
	// When nil, archive summaries are produced by truncation.
	Summarizer *SummarizerConfig `json:"summarizer,omitempty"`

	// LockTimeout is how long an operation waits for an agent's lock
	// before failing with ErrBusy. Zero means fail immediately when the
	// agent is busy.
	LockTimeout time.Duration `json:"lock_timeout,omitempty"`

	// MaxConcurrentAgents bounds the parallelism of OrganizeAgents.
	// Zero or negative uses the default of 4.
	MaxConcurrentAgents int `json:"max_concurrent_agents,omitempty"`

	// AllowZeroAgentID permits agent ID 0. By default 0 is rejected as
	// an invalid argument since it commonly signals an uninitialized ID.
	AllowZeroAgentID bool `json:"allow_zero_agent_id,omitempty"`
}

// StoreConfig contains configuration for the storage backend.
//
// Supported providers: sqlite, postgres, mysql
//
// Example:
//
//	storeConfig := core.StoreConfig{
//	    Provider: "postgres",
//	    Config: map[string]interface{}{
//	        "host":    "localhost",
//	        "port":    5432,
//	        "user":    "postgres",
//	        "db_name": "organizer",
//	    },
//	}
type StoreConfig struct {
	// Provider is the storage provider name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path
	// For PostgreSQL: host, port, user, password, db_name, ssl_mode
	// For MySQL: host, port, user, password, db_name
	Config map[string]interface{} `json:"config"`
}

// SummarizerConfig contains configuration for the optional LLM summarizer.
type SummarizerConfig struct {
	// Provider is the summarizer provider name. Only "openai" is supported;
	// anything else selects the rule-based truncating summarizer.
	Provider string `json:"provider"`

	// APIKey is the API key for the provider.
	APIKey string `json:"api_key"`

	// Model is the model name to use (e.g., "gpt-4o-mini").
	Model string `json:"model,omitempty"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty"`
}

// DefaultConfig returns a configuration with an on-disk SQLite store and
// default policies.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Provider: "sqlite",
			Config: map[string]interface{}{
				"db_path": "./organizer.db",
			},
		},
		LockTimeout:         5 * time.Second,
		MaxConcurrentAgents: 4,
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - SUMMARIZER_PROVIDER, SUMMARIZER_API_KEY, SUMMARIZER_MODEL, SUMMARIZER_BASE_URL
//   - ARCHIVE_THRESHOLD_DAYS
//   - LOCK_TIMEOUT_MS, MAX_CONCURRENT_AGENTS
//
// Returns a Config instance, or an error if loading fails.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	// Use FindEnvFile to locate .env file (supports upward search)
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	storeConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		storeConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./organizer.db"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "organizer"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":     port,
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "organizer"),
		}
	}

	config := &Config{
		Store: StoreConfig{
			Provider: provider,
			Config:   storeConfig,
		},
		LockTimeout:         5 * time.Second,
		MaxConcurrentAgents: 4,
	}

	if days, err := strconv.Atoi(os.Getenv("ARCHIVE_THRESHOLD_DAYS")); err == nil && days > 0 {
		archive := intelligence.DefaultArchiveConfig()
		archive.ThresholdDays = days
		config.Archive = archive
	}

	if ms, err := strconv.Atoi(os.Getenv("LOCK_TIMEOUT_MS")); err == nil && ms >= 0 {
		config.LockTimeout = time.Duration(ms) * time.Millisecond
	}
	if n, err := strconv.Atoi(os.Getenv("MAX_CONCURRENT_AGENTS")); err == nil && n > 0 {
		config.MaxConcurrentAgents = n
	}

	// Summarizer configuration (optional)
	if apiKey := os.Getenv("SUMMARIZER_API_KEY"); apiKey != "" {
		config.Summarizer = &SummarizerConfig{
			Provider: getEnvOrDefault("SUMMARIZER_PROVIDER", "openai"),
			APIKey:   apiKey,
			Model:    os.Getenv("SUMMARIZER_MODEL"),
			BaseURL:  os.Getenv("SUMMARIZER_BASE_URL"),
		}
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewOrganizerError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewOrganizerError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that:
//   - A storage provider is specified
//   - Policy thresholds, when set, are within their valid ranges
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.Store.Provider == "" {
		return NewOrganizerError("Validate", fmt.Errorf("%w: store provider is required", ErrInvalidConfig))
	}
	if c.Archive != nil {
		a := c.Archive
		if a.ThresholdDays < 0 {
			return NewOrganizerError("Validate", fmt.Errorf("%w: archive threshold days must not be negative", ErrInvalidConfig))
		}
		if a.LowImportanceMax < 0 || a.RetainMin > 1 || a.LowImportanceMax > a.RetainMin {
			return NewOrganizerError("Validate", fmt.Errorf("%w: archive importance bands must satisfy 0 <= low <= retain <= 1", ErrInvalidConfig))
		}
	}
	if c.Scoring != nil {
		for memoryType, weight := range c.Scoring.TypeWeights {
			if weight < 0 || weight > 1 {
				return NewOrganizerError("Validate", fmt.Errorf("%w: type weight for %q out of range", ErrInvalidConfig, memoryType))
			}
		}
	}
	if c.LockTimeout < 0 {
		return NewOrganizerError("Validate", fmt.Errorf("%w: lock timeout must not be negative", ErrInvalidConfig))
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	// First check the current directory
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	// Check project root directory (search upward)
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
