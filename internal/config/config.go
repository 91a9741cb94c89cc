// Package config provides unified configuration loading for the Manual Engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Manual Engine.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Vector        VectorConfig        `yaml:"vector"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Rerank        RerankConfig        `yaml:"rerank"`
	Generation    GenerationConfig    `yaml:"generation"`
	Segmentation  SegmentationConfig  `yaml:"segmentation"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Tools         []ToolConfig        `yaml:"tools"`
	Lexicon       []string            `yaml:"lexicon"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// VectorConfig holds vector store settings.
type VectorConfig struct {
	Adapter string       `yaml:"adapter"` // memory or qdrant
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant-specific settings.
type QdrantConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RerankConfig holds rerank service settings.
type RerankConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// GenerationConfig holds chat-completion service settings used for
// query expansion.
type GenerationConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SegmentationConfig holds document segmentation settings.
type SegmentationConfig struct {
	ChunkSize         int      `yaml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap"`
	SingleChunkFactor float64  `yaml:"single_chunk_factor"`
	NoiseSamplePages  int      `yaml:"noise_sample_pages"`
	NoiseMinLineLen   int      `yaml:"noise_min_line_len"`
	NoiseMaxLineLen   int      `yaml:"noise_max_line_len"`
	CleaningPatterns  []string `yaml:"cleaning_patterns"`
}

// RetrievalConfig holds retrieval pipeline settings.
type RetrievalConfig struct {
	RRFK                int  `yaml:"rrf_k"`
	PoolSize            int  `yaml:"pool_size"`
	PerMethodLimit      int  `yaml:"per_method_limit"`
	Expansions          int  `yaml:"expansions"`
	RerankTopN          int  `yaml:"rerank_top_n"`
	CandidateMaxRunes   int  `yaml:"candidate_max_runes"`
	MaxParents          int  `yaml:"max_parents"`
	ParentSizeThreshold int  `yaml:"parent_size_threshold"`
	WindowRadius        int  `yaml:"window_radius"`
	FingerprintRunes    int  `yaml:"fingerprint_runes"`
	ItemMaxRunes        int  `yaml:"item_max_runes"`
	ContextBudget       int  `yaml:"context_budget"`
	CacheResults        bool `yaml:"cache_results"`
}

// ToolConfig describes one tool the corpus documents. Patterns match
// document identifiers; keywords detect the tool in user queries.
type ToolConfig struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
	Keywords []string `yaml:"keywords"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/manual-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Vector: VectorConfig{
			Adapter: "memory",
			Qdrant: QdrantConfig{
				URL:        "http://localhost:6333",
				Collection: "manual_children",
				Timeout:    15 * time.Second,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "https://api.siliconflow.cn/v1",
			Model:     "BAAI/bge-m3",
			Dimension: 1024,
			BatchSize: 32,
			Timeout:   60 * time.Second,
		},
		Rerank: RerankConfig{
			Enabled: true,
			BaseURL: "https://api.siliconflow.cn/v1",
			Model:   "BAAI/bge-reranker-v2-m3",
			Timeout: 30 * time.Second,
		},
		Generation: GenerationConfig{
			BaseURL:     "https://api.siliconflow.cn/v1",
			Model:       "Qwen/Qwen2.5-32B-Instruct",
			Temperature: 0.3,
			Timeout:     60 * time.Second,
		},
		Segmentation: SegmentationConfig{
			ChunkSize:         1000,
			ChunkOverlap:      100,
			SingleChunkFactor: 1.5,
			NoiseSamplePages:  3,
			NoiseMinLineLen:   4,
			NoiseMaxLineLen:   100,
			CleaningPatterns: []string{
				`\[Feedback\]\(mailto:[^)]*\)`,
			},
		},
		Retrieval: RetrievalConfig{
			RRFK:                60,
			PoolSize:            24,
			PerMethodLimit:      12,
			Expansions:          3,
			RerankTopN:          6,
			CandidateMaxRunes:   2000,
			MaxParents:          8,
			ParentSizeThreshold: 8000,
			WindowRadius:        2000,
			FingerprintRunes:    200,
			ItemMaxRunes:        2500,
			ContextBudget:       16000,
			CacheResults:        true,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Vector.Adapter != "memory" && c.Vector.Adapter != "qdrant" {
		return fmt.Errorf("invalid vector adapter: %s", c.Vector.Adapter)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Segmentation.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive")
	}

	if c.Segmentation.ChunkOverlap < 0 || c.Segmentation.ChunkOverlap >= c.Segmentation.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size)")
	}

	if c.Segmentation.SingleChunkFactor < 1.0 {
		return fmt.Errorf("single_chunk_factor must be >= 1.0")
	}

	if c.Retrieval.RRFK < 1 {
		return fmt.Errorf("rrf_k must be positive")
	}

	if c.Retrieval.PoolSize < 1 {
		return fmt.Errorf("pool_size must be positive")
	}

	if c.Retrieval.MaxParents < 1 || c.Retrieval.MaxParents > 20 {
		return fmt.Errorf("max_parents must be between 1 and 20")
	}

	if c.Retrieval.WindowRadius < 1 {
		return fmt.Errorf("window_radius must be positive")
	}

	for i, tool := range c.Tools {
		if tool.ID == "" {
			return fmt.Errorf("tool %d: id is required", i)
		}
		if len(tool.Patterns) == 0 {
			return fmt.Errorf("tool %s: at least one pattern is required", tool.ID)
		}
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.Vector.Adapter = "qdrant"
		cfg.Vector.Qdrant.URL = v
	}

	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.Vector.Qdrant.APIKey = v
	}

	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("RERANK_ENABLED"); v != "" {
		cfg.Rerank.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("RERANK_API_KEY"); v != "" {
		cfg.Rerank.APIKey = v
	}

	if v := os.Getenv("GENERATION_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
