// Package config loads and validates the know configuration.
//
// Configuration lives at ~/.know/config.yaml. Every field has a working
// default so a missing file is not an error; env vars with the KNOW_ prefix
// override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	kerrors "github.com/knowtools/know/internal/errors"
)

// Config represents the complete know configuration.
type Config struct {
	// IndexRoot is the directory holding all index state.
	IndexRoot string `yaml:"index_root"`

	Chunking   ChunkingConfig   `yaml:"chunking"`
	Sparse     SparseConfig     `yaml:"sparse"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChunkingConfig configures the text splitter.
type ChunkingConfig struct {
	// Size is the chunk window size in runes.
	Size int `yaml:"size"`
	// Overlap is the window overlap in runes. Must be 0 <= overlap < size.
	Overlap int `yaml:"overlap"`
}

// SparseConfig configures the BM25 scorer.
type SparseConfig struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// SearchConfig configures query execution and hybrid fusion.
type SearchConfig struct {
	// DenseWeight and SparseWeight are the hybrid fusion weights.
	// They must be non-negative and sum to a positive value.
	DenseWeight  float64 `yaml:"dense_weight"`
	SparseWeight float64 `yaml:"sparse_weight"`

	// MaxResults caps the --limit flag.
	MaxResults int `yaml:"max_results"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "ollama" or "static".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	OllamaHost string `yaml:"ollama_host"`
	// CacheSize is the LRU embedding cache capacity.
	CacheSize int `yaml:"cache_size"`
	// Workers is the number of concurrent embedding batches during indexing.
	Workers int `yaml:"workers"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		IndexRoot: filepath.Join(Home(), "index"),
		Chunking: ChunkingConfig{
			Size:    512,
			Overlap: 50,
		},
		Sparse: SparseConfig{
			K1: 1.2,
			B:  0.75,
		},
		Search: SearchConfig{
			DenseWeight:  0.5,
			SparseWeight: 0.5,
			MaxResults:   100,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "static-256",
			Dimensions: 256,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			CacheSize:  1000,
			Workers:    2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Home returns the know home directory (~/.know), honoring KNOW_HOME.
func Home() string {
	if home := os.Getenv("KNOW_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".know")
	}
	return filepath.Join(userHome, ".know")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Home(), "config.yaml")
}

// Load reads the config file at path, merging over defaults.
// A missing file yields defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, cfg.Validate()
		}
		return nil, kerrors.Wrap(kerrors.ErrCodeInvalidConfig, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, kerrors.New(kerrors.ErrCodeInvalidConfig,
			fmt.Sprintf("cannot parse %s: %v", path, err), err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the config from the default path.
func LoadDefault() (*Config, error) {
	return Load(DefaultPath())
}

// Save writes the config to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks configuration invariants. Violations fail fast with an
// invalid-config error before any I/O happens.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return kerrors.New(kerrors.ErrCodeInvalidChunk,
			fmt.Sprintf("chunk size must be positive, got %d", c.Chunking.Size), nil)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return kerrors.New(kerrors.ErrCodeInvalidChunk,
			fmt.Sprintf("chunk overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d",
				c.Chunking.Overlap, c.Chunking.Size), nil)
	}
	if c.Sparse.K1 <= 0 {
		return kerrors.InvalidConfig(fmt.Sprintf("bm25 k1 must be positive, got %v", c.Sparse.K1))
	}
	if c.Sparse.B < 0 || c.Sparse.B > 1 {
		return kerrors.InvalidConfig(fmt.Sprintf("bm25 b must be in [0,1], got %v", c.Sparse.B))
	}
	if c.Search.DenseWeight < 0 || c.Search.SparseWeight < 0 {
		return kerrors.InvalidConfig("fusion weights must be non-negative")
	}
	if c.Search.DenseWeight+c.Search.SparseWeight == 0 {
		return kerrors.InvalidConfig("fusion weights must not both be zero")
	}
	switch c.Embeddings.Provider {
	case "ollama", "static":
	default:
		return kerrors.InvalidConfig(fmt.Sprintf("unknown embeddings provider %q", c.Embeddings.Provider))
	}
	if c.Embeddings.Dimensions <= 0 {
		return kerrors.InvalidConfig("embedding dimensions must be positive")
	}
	if c.Embeddings.Provider == "static" && c.Embeddings.Dimensions != 256 {
		return kerrors.InvalidConfig(fmt.Sprintf(
			"static embeddings are 256-dimensional, got dimensions=%d", c.Embeddings.Dimensions))
	}
	return nil
}

// applyEnvOverrides applies KNOW_* environment variables on top of cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KNOW_INDEX_ROOT"); v != "" {
		cfg.IndexRoot = v
	}
	if v := os.Getenv("KNOW_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("KNOW_EMBED_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("KNOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("KNOW_DENSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.DenseWeight = f
		}
	}
	if v := os.Getenv("KNOW_SPARSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.SparseWeight = f
		}
	}
}
