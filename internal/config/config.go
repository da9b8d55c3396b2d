package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Transcripts TranscriptsConfig `yaml:"transcripts"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Vector      VectorConfig      `yaml:"vector"`
	Database    DatabaseConfig    `yaml:"database"`
	Chunker     ChunkerConfig     `yaml:"chunker,omitempty"`
	Indexer     IndexerConfig     `yaml:"indexer,omitempty"`
	Retrieval   RetrievalConfig   `yaml:"retrieval,omitempty"`
	Context     ContextConfig     `yaml:"context,omitempty"`
	TextIndex   TextIndexConfig   `yaml:"text_index,omitempty"`
}

// TranscriptsConfig holds the transcript corpus layout
type TranscriptsConfig struct {
	// Path to the transcript root directory. Each company ticker has its
	// own subdirectory of .txt files, e.g. Transcripts/AAPL/2020-Jul-30-AAPL.txt
	Path string `yaml:"path"`

	// Include patterns relative to each company directory (doublestar globs)
	Include []string `yaml:"include,omitempty"`

	// Exclude patterns
	Exclude []string `yaml:"exclude,omitempty"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "openai" | "gemini"

	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Model    string `yaml:"model"`

	// Embedding parameters
	Dimensions int `yaml:"dimensions"`  // fixed by the model in use
	BatchSize  int `yaml:"batch_size"`  // texts per provider request
	MaxRetries int `yaml:"max_retries"` // transient-failure retry budget

	// Outbound call limits
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	MaxInflight       int     `yaml:"max_inflight,omitempty"`
}

// LLMConfig holds language model configuration for answer generation
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"` // "gemini"

	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Model    string `yaml:"model,omitempty"`

	Temperature    float32 `yaml:"temperature,omitempty"`
	MaxTokens      int     `yaml:"max_tokens,omitempty"`
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"`
	MaxRetries     int     `yaml:"max_retries,omitempty"`

	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	MaxInflight       int     `yaml:"max_inflight,omitempty"`
}

// VectorConfig holds vector index configuration
type VectorConfig struct {
	// Backend: "local" (embedded, sqlite-backed) or "qdrant"
	Backend string `yaml:"backend"`

	// Local backend: directory for the embedded index.
	// If empty, uses ~/.callrag/data/vectors
	Path string `yaml:"path,omitempty"`

	// Qdrant backend
	QdrantURL    string `yaml:"qdrant_url,omitempty"`
	QdrantAPIKey string `yaml:"qdrant_api_key,omitempty"`
	Collection   string `yaml:"collection,omitempty"`
}

// DatabaseConfig holds the metadata database configuration
type DatabaseConfig struct {
	// Path to the SQLite database file.
	// If empty, uses ~/.callrag/data/callrag.db
	Path string `yaml:"path,omitempty"`
}

// ChunkerConfig holds document chunking configuration
type ChunkerConfig struct {
	MaxChars     int `yaml:"max_chars,omitempty"`     // maximum chunk length in characters
	OverlapChars int `yaml:"overlap_chars,omitempty"` // overlap carried between adjacent chunks
}

// IndexerConfig holds indexer-specific configuration
type IndexerConfig struct {
	MaxWorkers int `yaml:"max_workers,omitempty"` // concurrent documents being indexed
}

// RetrievalConfig holds retrieval configuration
type RetrievalConfig struct {
	DefaultTopK         int     `yaml:"default_top_k,omitempty"`        // default result count
	MaxTopK             int     `yaml:"max_top_k,omitempty"`            // hard ceiling for dynamic K
	BroadenStep         int     `yaml:"broaden_step,omitempty"`         // extra results for comparative queries
	SimilarityThreshold float32 `yaml:"similarity_threshold,omitempty"` // minimum cosine similarity
	CandidateMultiplier int     `yaml:"candidate_multiplier,omitempty"` // oversampling factor for the index search
}

// ContextConfig holds context assembly configuration
type ContextConfig struct {
	BudgetChars int `yaml:"budget_chars,omitempty"` // maximum assembled context size
}

// TextIndexConfig holds the keyword (bleve) index configuration
type TextIndexConfig struct {
	// Directory for the bleve index. If empty, uses ~/.callrag/data/textidx
	Path string `yaml:"path,omitempty"`
}

// Load loads configuration from the default config file
// Default location: ~/.callrag/config/callrag.yaml
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".callrag", "config", "callrag.yaml")
	return LoadFromFile(configPath)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			homeDir, _ := os.UserHomeDir()
			defaultPath := filepath.Join(homeDir, ".callrag", "config", "callrag.yaml")
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with -config flag\n"+
		"  3. Run 'callrag ingest' once to create a template config",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	_, ok := err.(*ConfigNotFoundError)
	return ok
}

// expandPath expands ~ and $HOME to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// applyEnv fills API keys from the environment when the config file leaves
// them empty. GOOGLE_API_KEY and OPENAI_API_KEY match the variable names the
// providers document, so a .env loaded by the CLI works unchanged.
func (c *Config) applyEnv() {
	if c.Embedding.APIKey == "" {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.Embedding.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() error {
	if c.Transcripts.Path != "" {
		c.Transcripts.Path = expandPath(c.Transcripts.Path)
	}
	if len(c.Transcripts.Include) == 0 {
		c.Transcripts.Include = []string{"*.txt"}
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "gemini"
	}
	if c.Embedding.Model == "" {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.Model = "text-embedding-3-small"
		default:
			c.Embedding.Model = "text-embedding-004"
		}
	}
	if c.Embedding.Dimensions == 0 {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.Dimensions = 1536
		default:
			c.Embedding.Dimensions = 768
		}
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = 3
	}
	if c.Embedding.RequestsPerSecond == 0 {
		c.Embedding.RequestsPerSecond = 5
	}
	if c.Embedding.MaxInflight == 0 {
		c.Embedding.MaxInflight = 4
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-2.0-flash"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 2
	}
	if c.LLM.RequestsPerSecond == 0 {
		c.LLM.RequestsPerSecond = 1
	}
	if c.LLM.MaxInflight == 0 {
		c.LLM.MaxInflight = 2
	}

	if c.Vector.Backend == "" {
		c.Vector.Backend = "local"
	}
	if c.Vector.Collection == "" {
		c.Vector.Collection = "transcripts"
	}
	if c.Vector.Path != "" {
		c.Vector.Path = expandPath(c.Vector.Path)
	}
	if c.Database.Path != "" {
		c.Database.Path = expandPath(c.Database.Path)
	}
	if c.TextIndex.Path != "" {
		c.TextIndex.Path = expandPath(c.TextIndex.Path)
	}

	if c.Chunker.MaxChars == 0 {
		c.Chunker.MaxChars = 512
	}
	if c.Chunker.OverlapChars == 0 {
		c.Chunker.OverlapChars = 64
	}

	if c.Indexer.MaxWorkers == 0 {
		c.Indexer.MaxWorkers = 4
	}

	if c.Retrieval.DefaultTopK == 0 {
		c.Retrieval.DefaultTopK = 5
	}
	if c.Retrieval.MaxTopK == 0 {
		c.Retrieval.MaxTopK = 12
	}
	if c.Retrieval.BroadenStep == 0 {
		c.Retrieval.BroadenStep = 3
	}
	if c.Retrieval.SimilarityThreshold == 0 {
		c.Retrieval.SimilarityThreshold = 0.70
	}
	if c.Retrieval.CandidateMultiplier == 0 {
		c.Retrieval.CandidateMultiplier = 3
	}

	if c.Context.BudgetChars == 0 {
		c.Context.BudgetChars = 8000
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "gemini":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("%s provider requires embedding.api_key", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got: %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 256 {
		return fmt.Errorf("embedding batch_size must be between 1 and 256, got: %d", c.Embedding.BatchSize)
	}

	switch c.Vector.Backend {
	case "local":
	case "qdrant":
		if c.Vector.QdrantURL == "" {
			return fmt.Errorf("qdrant backend requires vector.qdrant_url")
		}
	default:
		return fmt.Errorf("unsupported vector backend: %s", c.Vector.Backend)
	}

	if c.Retrieval.SimilarityThreshold < -1 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [-1, 1], got: %v", c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.DefaultTopK > c.Retrieval.MaxTopK {
		return fmt.Errorf("default_top_k (%d) exceeds max_top_k (%d)", c.Retrieval.DefaultTopK, c.Retrieval.MaxTopK)
	}

	if c.Chunker.OverlapChars >= c.Chunker.MaxChars {
		return fmt.Errorf("chunker overlap_chars (%d) must be smaller than max_chars (%d)", c.Chunker.OverlapChars, c.Chunker.MaxChars)
	}

	return nil
}

// Save saves the configuration to the default location
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".callrag", "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "callrag.yaml")
	return c.SaveToFile(configPath)
}

// SaveToFile saves the configuration to a specific file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

const defaultConfigTemplate = `# callrag configuration
#
# Copy and edit this file for your environment.
# Default location: $HOME/.callrag/config/callrag.yaml

transcripts:
  # Root directory with one subdirectory per ticker (AAPL/, MSFT/, ...)
  path: ~/Transcripts

embedding:
  # Provider: "gemini" or "openai"
  provider: gemini
  # api_key may be left empty if GOOGLE_API_KEY / OPENAI_API_KEY is set
  api_key: your-api-key
  model: text-embedding-004
  dimensions: 768
  batch_size: 32

llm:
  provider: gemini
  api_key: your-api-key
  model: gemini-2.0-flash
  temperature: 0.7

vector:
  # Backend: "local" (embedded) or "qdrant"
  backend: local

retrieval:
  default_top_k: 5
  max_top_k: 12
  similarity_threshold: 0.70

context:
  budget_chars: 8000
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
