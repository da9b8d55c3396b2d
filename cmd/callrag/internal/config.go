package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/finsightlabs/callrag/internal/config"
)

// LoadConfig reads and parses the YAML configuration, from the given
// path or from the default location when path is empty.
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// ApplyDefaultPaths fills unset storage paths with locations under
// ~/.callrag/data.
func ApplyDefaultPaths(cfg *config.Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	dataDir := filepath.Join(homeDir, ".callrag", "data")
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(dataDir, "callrag.db")
	}
	if cfg.Vector.Path == "" {
		cfg.Vector.Path = filepath.Join(dataDir, "vectors")
	}
	if cfg.TextIndex.Path == "" {
		cfg.TextIndex.Path = filepath.Join(dataDir, "textidx")
	}
	return nil
}

// PrintConfigExample writes a minimal working configuration to stderr.
func PrintConfigExample() {
	homeDir, _ := os.UserHomeDir()
	configPath := fmt.Sprintf("%s/.callrag/config/callrag.yaml", homeDir)

	fmt.Fprintf(os.Stderr, `Create a configuration file at %s:

# Transcript corpus (one subdirectory per ticker)
transcripts:
  path: ~/Transcripts

# Embedding service configuration (required)
embedding:
  # Provider: "gemini" | "openai"
  provider: gemini
  api_key: your-api-key        # or set GOOGLE_API_KEY
  model: text-embedding-004
  dimensions: 768

# Answer generation
llm:
  provider: gemini
  api_key: your-api-key        # or set GOOGLE_API_KEY
  model: gemini-2.0-flash

# Vector index: "local" (embedded) or "qdrant"
vector:
  backend: local

Usage:
  1. Create the config file
  2. Run: callrag ingest
  3. Ask: callrag query "What did Apple say about services revenue?"
`, configPath)
}
