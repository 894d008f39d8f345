// Package config loads the engine's structured, non-secret configuration
// (spec §6: council_models, chairman_model, bootstrap_iterations,
// retrieval_defaults, review_slas, …) from a YAML file, grounded on
// kxddry-rag-text-search/internal/config/config.go's Load/LoadDefault/Save/
// applyConfigDefaults pattern. Secrets (API keys, database URL) stay in the
// environment, loaded via godotenv by cmd/server the way the teacher's
// initPostgres/initGemini already do; ApplyEnvOverrides is the seam between
// the two.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EvaluationCriterion is one entry of spec §6's evaluation_criteria list.
type EvaluationCriterion struct {
	Name  string `yaml:"name"`
	Focus string `yaml:"focus"`
}

// CouncilConfig mirrors spec §6's council_config fields.
type CouncilConfig struct {
	CouncilModels       []string              `yaml:"council_models"`
	ChairmanModel       string                `yaml:"chairman_model"`
	BootstrapIterations int                   `yaml:"bootstrap_iterations"`
	EnableBootstrap     bool                  `yaml:"enable_bootstrap"`
	EvaluationCriteria  []EvaluationCriterion `yaml:"evaluation_criteria"`
	AggregationMethod   string                `yaml:"aggregation_method"`
	ChairmanFallback    bool                  `yaml:"chairman_fallback"`
}

// RetrievalConfig mirrors spec §6's retrieval_defaults.
type RetrievalConfig struct {
	TopK         int     `yaml:"top_k"`
	DenseWeight  float64 `yaml:"dense_weight"`
	SparseWeight float64 `yaml:"sparse_weight"`
}

// EmbeddingConfig mirrors spec §6's embedding_model/embedding_dim.
type EmbeddingConfig struct {
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// ReviewSLAConfig mirrors spec §6's review_slas (durations as Go duration
// strings, e.g. "24h") with per-priority overrides.
type ReviewSLAConfig struct {
	Synthesis     string                       `yaml:"synthesis"`
	Report        string                       `yaml:"report"`
	ByPriority    map[string]map[string]string `yaml:"by_priority,omitempty"`
	RevisionLimit int                          `yaml:"revision_limit"`
}

// StorageConfig selects the blob-storage backend for vector-store/graph
// snapshot persistence (spec §4.3/§4.4).
type StorageConfig struct {
	Type      string `yaml:"type"` // "local" | "s3"
	LocalPath string `yaml:"local_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Region  string `yaml:"s3_region"`
}

// VectorStoreConfig selects the dense-vector backend.
type VectorStoreConfig struct {
	Backend string `yaml:"backend"` // "memory" | "postgres"
}

// ServerConfig configures the inbound HTTP surface (§6, out-of-core but
// still needs a listen address).
type ServerConfig struct {
	Port string `yaml:"port"`
}

// Config is the root, non-secret application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Council     CouncilConfig     `yaml:"council"`
	ReviewSLA   ReviewSLAConfig   `yaml:"review_sla"`

	// DatabaseURL and model-gateway API keys are never read from YAML;
	// ApplyEnvOverrides populates them from the environment.
	DatabaseURL  string `yaml:"-"`
	GeminiAPIKey string `yaml:"-"`
}

// Load reads config from path. A missing file is not an error: it yields
// the default configuration, matching the teacher's "warn and continue
// with defaults" tolerance for missing .env files.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml, falling back to built-in defaults when
// absent (no user-config-directory fallback is needed here: unlike the
// pack's CLI tool, this engine always runs against an explicit deployment
// config or sane defaults).
func LoadDefault() (*Config, string, error) {
	const cwdPath = "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	return defaultConfig(), "", nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnvOverrides overlays secrets and deployment-environment values the
// teacher reads directly in initPostgres/initGemini (DATABASE_URL,
// GEMINI_API_KEY, PORT, STORAGE_*, AWS_*).
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.GeminiAPIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("STORAGE_LOCAL_PATH"); v != "" {
		c.Storage.LocalPath = v
	}
	if v := os.Getenv("AWS_S3_BUCKET"); v != "" {
		c.Storage.S3Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Storage.S3Region = v
	}
	if v := os.Getenv("VECTOR_STORE_BACKEND"); v != "" {
		c.VectorStore.Backend = v
	}
}

func defaultConfig() *Config {
	cfg := &Config{
		Server:      ServerConfig{Port: "8080"},
		Storage:     StorageConfig{Type: "local", LocalPath: "./storage/snapshots"},
		VectorStore: VectorStoreConfig{Backend: "memory"},
		Embedding:   EmbeddingConfig{Model: "gemini-embedding-001", Dimension: 1536},
		Retrieval:   RetrievalConfig{TopK: 10, DenseWeight: 0.7, SparseWeight: 0.3},
		Council: CouncilConfig{
			BootstrapIterations: 5,
			EnableBootstrap:     true,
			EvaluationCriteria: []EvaluationCriterion{
				{Name: "accuracy", Focus: "factual accuracy and correct use of the retrieved context"},
				{Name: "completeness", Focus: "coverage of the required impact themes and structure"},
				{Name: "clarity", Focus: "clarity and readability of the analysis"},
				{Name: "utility", Focus: "practical usefulness of the assessment to a policy reviewer"},
				{Name: "balanced", Focus: "overall balance across accuracy, completeness, clarity, and utility"},
			},
			AggregationMethod: "borda",
			ChairmanFallback:  true,
		},
		ReviewSLA: ReviewSLAConfig{Synthesis: "24h", Report: "48h", RevisionLimit: 3},
	}
	return cfg
}

func applyConfigDefaults(cfg *Config) {
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Retrieval.DenseWeight == 0 && cfg.Retrieval.SparseWeight == 0 {
		cfg.Retrieval.DenseWeight, cfg.Retrieval.SparseWeight = 0.7, 0.3
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 1536
	}
	if cfg.Council.BootstrapIterations == 0 {
		cfg.Council.BootstrapIterations = 5
	}
	if len(cfg.Council.EvaluationCriteria) == 0 {
		cfg.Council.EvaluationCriteria = defaultConfig().Council.EvaluationCriteria
	}
	if cfg.Council.AggregationMethod == "" {
		cfg.Council.AggregationMethod = "borda"
	}
	if cfg.ReviewSLA.Synthesis == "" {
		cfg.ReviewSLA.Synthesis = "24h"
	}
	if cfg.ReviewSLA.Report == "" {
		cfg.ReviewSLA.Report = "48h"
	}
	if cfg.ReviewSLA.RevisionLimit == 0 {
		cfg.ReviewSLA.RevisionLimit = 3
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "memory"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
}
