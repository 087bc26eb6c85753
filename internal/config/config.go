// Package config provides configuration loading and structs for the mxrag server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/mxrag/internal/apperr"
)

// Config holds all configuration for the application. It is read once at startup
// and treated as immutable afterwards.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vectorstore"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Chat        ChatConfig        `yaml:"chat"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Storage     StorageConfig     `yaml:"storage"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RequestTimeoutSeconds bounds every request; ingestion of a large directory
	// needs more than a chat call.
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	CORSOrigins           []string `yaml:"cors_origins"`
}

// OpenAIConfig holds provider credentials and the embedding client knobs.
type OpenAIConfig struct {
	APIKey          string   `yaml:"api_key"`
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	Dimensions      int      `yaml:"dimensions"`
	BatchSize       int      `yaml:"chunk_size"`
	MaxRetries      *int     `yaml:"max_retries"`
	TimeoutSeconds  float64  `yaml:"timeout"`
	RetryMinSeconds *float64 `yaml:"retry_min_seconds"`
	RetryMaxSeconds *float64 `yaml:"retry_max_seconds"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "openai", "onnx" or "mock".
	Provider  string `yaml:"provider"`
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Backend is one of "sqlite", "memory", "qdrant" or "pgvector".
	Backend          string         `yaml:"backend"`
	PersistDirectory string         `yaml:"persist_directory"`
	CollectionName   string         `yaml:"collection_name"`
	Qdrant           QdrantConfig   `yaml:"qdrant"`
	Postgres         PostgresConfig `yaml:"postgres"`
}

// QdrantConfig holds the Qdrant REST endpoint.
type QdrantConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// PostgresConfig holds the pgvector connection string.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// IngestConfig holds PDF ingestion settings.
type IngestConfig struct {
	PDFDirectory    string `yaml:"pdf_directory"`
	ChunksDirectory string `yaml:"chunks_directory"`
	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    *int   `yaml:"chunk_overlap"`
	SaveChunks      *bool  `yaml:"save_chunks"`
	Watch           bool   `yaml:"watch"`
}

// ChatConfig holds language model and retrieval settings.
type ChatConfig struct {
	ModelName        string  `yaml:"model_name"`
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	TopK             int     `yaml:"top_k"`
	ReturnSourceDocs *bool   `yaml:"return_source_docs"`
	Streaming        bool    `yaml:"streaming"`
	SanitizeHistory  *bool   `yaml:"sanitize_history"`
}

// PricingConfig holds per-token rates and the tokenizer encoding used for cost
// estimates. A rate of zero is a valid (free) rate, so unset rates are nil.
type PricingConfig struct {
	InputCostPerToken       *float64 `yaml:"input_cost_per_token"`
	CachedInputCostPerToken *float64 `yaml:"cached_input_cost_per_token"`
	OutputCostPerToken      *float64 `yaml:"output_cost_per_token"`
	Encoding                string   `yaml:"encoding"`
}

// StorageConfig holds the ingestion ledger database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// TelemetryConfig holds OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Environment string  `yaml:"environment"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ChunkOverlapOrDefault returns the configured overlap; defaults to 50 when unset.
func (c *IngestConfig) ChunkOverlapOrDefault() int {
	if c.ChunkOverlap != nil {
		return *c.ChunkOverlap
	}
	return DefaultChunkOverlap
}

// SaveChunksOrDefault returns whether chunks are written to disk; defaults to true.
func (c *IngestConfig) SaveChunksOrDefault() bool {
	if c.SaveChunks != nil {
		return *c.SaveChunks
	}
	return true
}

// MaxRetriesOrDefault returns the retry budget for provider calls; 0 disables retries.
func (c *OpenAIConfig) MaxRetriesOrDefault() int {
	if c.MaxRetries != nil {
		return *c.MaxRetries
	}
	return DefaultMaxRetries
}

// RetryMinOrDefault returns the first backoff wait in seconds.
func (c *OpenAIConfig) RetryMinOrDefault() float64 {
	if c.RetryMinSeconds != nil {
		return *c.RetryMinSeconds
	}
	return DefaultRetryMinSeconds
}

// RetryMaxOrDefault returns the backoff ceiling in seconds.
func (c *OpenAIConfig) RetryMaxOrDefault() float64 {
	if c.RetryMaxSeconds != nil {
		return *c.RetryMaxSeconds
	}
	return DefaultRetryMaxSeconds
}

// InputRate returns the per-token input price.
func (c *PricingConfig) InputRate() float64 {
	return rateOr(c.InputCostPerToken, DefaultInputCostPerToken)
}

// CachedInputRate returns the per-token price of cached input.
func (c *PricingConfig) CachedInputRate() float64 {
	return rateOr(c.CachedInputCostPerToken, DefaultCachedInputCostPerToken)
}

// OutputRate returns the per-token output price.
func (c *PricingConfig) OutputRate() float64 {
	return rateOr(c.OutputCostPerToken, DefaultOutputCostPerToken)
}

func rateOr(rate *float64, def float64) float64 {
	if rate != nil {
		return *rate
	}
	return def
}

// ReturnSourceDocsOrDefault returns whether chat responses carry sources; defaults to true.
func (c *ChatConfig) ReturnSourceDocsOrDefault() bool {
	if c.ReturnSourceDocs != nil {
		return *c.ReturnSourceDocs
	}
	return true
}

// SanitizeHistoryOrDefault returns whether role labels in user text are neutralised; defaults to true.
func (c *ChatConfig) SanitizeHistoryOrDefault() bool {
	if c.SanitizeHistory != nil {
		return *c.SanitizeHistory
	}
	return true
}

// Load reads the config file at path (optional; empty means environment only),
// loads .env from the working directory, applies environment overrides and defaults,
// expands paths and validates the result. Any problem is a configuration error.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.VectorStore.PersistDirectory = expandPath(cfg.VectorStore.PersistDirectory, configDir)
	cfg.Ingest.PDFDirectory = expandPath(cfg.Ingest.PDFDirectory, configDir)
	cfg.Ingest.ChunksDirectory = expandPath(cfg.Ingest.ChunksDirectory, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads key=value pairs from path into the process environment.
// Variables already set in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings that must hold before the process may serve requests.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		problems = append(problems, "openai api key is required (OPENAI_API_KEY)")
	}
	if c.Ingest.ChunkSize <= 0 {
		problems = append(problems, "chunk_size must be positive")
	}
	if overlap := c.Ingest.ChunkOverlapOrDefault(); overlap < 0 {
		problems = append(problems, "chunk_overlap must not be negative")
	} else if c.Ingest.ChunkSize <= overlap {
		problems = append(problems, fmt.Sprintf("chunk_size (%d) must be greater than chunk_overlap (%d)", c.Ingest.ChunkSize, overlap))
	}
	if c.OpenAI.Dimensions <= 0 {
		problems = append(problems, "openai dimensions must be positive")
	}
	if c.OpenAI.BatchSize <= 0 {
		problems = append(problems, "openai chunk_size (embedding batch size) must be positive")
	}
	if c.OpenAI.MaxRetriesOrDefault() < 0 {
		problems = append(problems, "openai max_retries must not be negative")
	}
	if c.OpenAI.RetryMinOrDefault() < 0 {
		problems = append(problems, "openai retry_min_seconds must not be negative")
	}
	if c.OpenAI.RetryMinOrDefault() > c.OpenAI.RetryMaxOrDefault() {
		problems = append(problems, "openai retry_min_seconds must not exceed retry_max_seconds")
	}
	if c.Chat.TopK <= 0 {
		problems = append(problems, "chat top_k must be positive")
	}
	if c.Pricing.InputRate() < 0 || c.Pricing.CachedInputRate() < 0 || c.Pricing.OutputRate() < 0 {
		problems = append(problems, "pricing rates must not be negative")
	}
	switch c.Embedding.Provider {
	case EmbeddingProviderOpenAI, EmbeddingProviderMock:
	case EmbeddingProviderONNX:
		if c.Embedding.ModelPath == "" {
			problems = append(problems, "embedding model_path is required for the onnx provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown embedding provider %q", c.Embedding.Provider))
	}
	switch c.VectorStore.Backend {
	case BackendSQLite, BackendMemory:
	case BackendQdrant:
		if c.VectorStore.Qdrant.URL == "" {
			problems = append(problems, "vectorstore qdrant.url is required for the qdrant backend")
		}
	case BackendPgvector:
		if c.VectorStore.Postgres.DSN == "" {
			problems = append(problems, "vectorstore postgres.dsn is required for the pgvector backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown vector store backend %q", c.VectorStore.Backend))
	}
	if len(problems) > 0 {
		return apperr.Configuration(strings.Join(problems, "; "))
	}
	return nil
}

// expandPath converts a path to absolute. Relative paths are resolved against configDir.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Join(configDir, path))
	if err != nil {
		return path
	}
	return abs
}
