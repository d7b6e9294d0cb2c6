// Package ragcfg loads and validates the RAG backend's configuration.
package ragcfg

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level document loaded from a YAML file, with
// environment overrides applied on top via dotenv-style Load.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Dense     DenseConfig     `yaml:"dense"`
	Lexical   LexicalConfig   `yaml:"lexical"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Generative GenerativeConfig `yaml:"generative"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Dialect string `yaml:"dialect"` // postgres | mysql | sqlite
	DSN     string `yaml:"dsn"`
}

type EmbeddingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

type DenseConfig struct {
	Backend    string `yaml:"backend"` // qdrant | pinecone
	Collection string `yaml:"collection"`
	Qdrant     QdrantConfig   `yaml:"qdrant"`
	Pinecone   PineconeConfig `yaml:"pinecone"`
}

type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type PineconeConfig struct {
	APIKey string `yaml:"api_key"`
	Host   string `yaml:"host"`
}

type LexicalConfig struct {
	IndexPath string `yaml:"index_path"` // empty => in-memory
}

type RerankConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	EntityBoost float64 `yaml:"entity_boost"`
	IntentBoost float64 `yaml:"intent_boost"`
}

type GenerativeConfig struct {
	FullModel string `yaml:"full_model"`
	FastModel string `yaml:"fast_model"`
	APIKey    string `yaml:"api_key"`
}

// RetrievalConfig is the named retrieval preset, read once per
// request and never mutated in place.
type RetrievalConfig struct {
	Name            string  `yaml:"name"`
	DensePoolSize   int     `yaml:"dense_pool_size"`
	LexicalPoolSize int     `yaml:"lexical_pool_size"`
	FusionK         int     `yaml:"fusion_k"`
	RerankTopN      int     `yaml:"rerank_top_n"`
	FinalTopN       int     `yaml:"final_top_n"`
	CoverageRatio   float64 `yaml:"coverage_ratio"`
	AdjacencyGapMax int     `yaml:"adjacency_gap_max"`
	MinContentChars int     `yaml:"min_content_chars"`
	NumMultiQueries int     `yaml:"num_multi_queries"`
}

// SetDefaults fills zero-valued fields with production defaults.
func (c *Config) SetDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Database.Dialect == "" {
		c.Database.Dialect = "sqlite"
	}
	if c.Embedding.Timeout == "" {
		c.Embedding.Timeout = "30s"
	}
	if c.Dense.Backend == "" {
		c.Dense.Backend = "qdrant"
	}
	if c.Dense.Collection == "" {
		c.Dense.Collection = "chunks"
	}
	if c.Rerank.EntityBoost == 0 {
		c.Rerank.EntityBoost = 0.1
	}
	if c.Rerank.IntentBoost == 0 {
		c.Rerank.IntentBoost = 0.05
	}
	r := &c.Retrieval
	if r.Name == "" {
		r.Name = "default"
	}
	if r.DensePoolSize == 0 {
		r.DensePoolSize = 40
	}
	if r.LexicalPoolSize == 0 {
		r.LexicalPoolSize = 40
	}
	if r.FusionK == 0 {
		r.FusionK = 60
	}
	if r.RerankTopN == 0 {
		r.RerankTopN = 20
	}
	if r.FinalTopN == 0 {
		r.FinalTopN = 8
	}
	if r.CoverageRatio == 0 {
		r.CoverageRatio = 0.5
	}
	if r.AdjacencyGapMax == 0 {
		r.AdjacencyGapMax = 8
	}
	if r.NumMultiQueries == 0 {
		r.NumMultiQueries = 3
	}
}

// Validate checks invariants SetDefaults cannot repair.
func (c *Config) Validate() error {
	switch c.Database.Dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("ragcfg: unsupported database dialect %q", c.Database.Dialect)
	}
	switch c.Dense.Backend {
	case "qdrant", "pinecone":
	default:
		return fmt.Errorf("ragcfg: unsupported dense backend %q", c.Dense.Backend)
	}
	if c.Retrieval.CoverageRatio <= 0 || c.Retrieval.CoverageRatio > 1 {
		return fmt.Errorf("ragcfg: coverage_ratio must be in (0,1], got %v", c.Retrieval.CoverageRatio)
	}
	return nil
}

// Load reads a YAML config file, then overlays a .env file (if
// present) and the process environment onto DSN/API-key-shaped
// fields, with environment values always taking precedence over
// the file.
func Load(path, envPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ragcfg: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ragcfg: parse %s: %w", path, err)
	}

	if envPath != "" {
		_ = godotenv.Load(envPath)
	}
	if v := os.Getenv("RAGCORE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("RAGCORE_PINECONE_API_KEY"); v != "" {
		cfg.Dense.Pinecone.APIKey = v
	}
	if v := os.Getenv("RAGCORE_GENAI_API_KEY"); v != "" {
		cfg.Generative.APIKey = v
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
