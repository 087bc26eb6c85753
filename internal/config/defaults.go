package config

// Embedding providers.
const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderONNX   = "onnx"
	EmbeddingProviderMock   = "mock"
)

// Vector store backends.
const (
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
)

// DefaultChunkOverlap is the chunk overlap in characters when none is configured.
const DefaultChunkOverlap = 50

// Defaults for settings where zero is a meaningful value.
const (
	DefaultMaxRetries      = 3
	DefaultRetryMinSeconds = 4.0
	DefaultRetryMaxSeconds = 20.0

	DefaultInputCostPerToken       = 0.15 / 1000
	DefaultCachedInputCostPerToken = 0.075 / 1000
	DefaultOutputCostPerToken      = 0.60 / 1000
)

// ApplyDefaults sets default values for any zero values in cfg. Pointer fields
// stay nil; their OrDefault accessors supply the default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 300
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "text-embedding-3-large"
	}
	if cfg.OpenAI.Dimensions == 0 {
		cfg.OpenAI.Dimensions = 1536
	}
	if cfg.OpenAI.BatchSize == 0 {
		cfg.OpenAI.BatchSize = 1000
	}
	if cfg.OpenAI.TimeoutSeconds == 0 {
		cfg.OpenAI.TimeoutSeconds = 60
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = EmbeddingProviderOpenAI
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}

	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = BackendSQLite
	}
	if cfg.VectorStore.PersistDirectory == "" {
		cfg.VectorStore.PersistDirectory = "data/vectorstore"
	}
	if cfg.VectorStore.CollectionName == "" {
		cfg.VectorStore.CollectionName = "langchain"
	}

	if cfg.Ingest.PDFDirectory == "" {
		cfg.Ingest.PDFDirectory = "data/pdfs"
	}
	if cfg.Ingest.ChunksDirectory == "" {
		cfg.Ingest.ChunksDirectory = "data/chunks"
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 512
	}

	if cfg.Chat.ModelName == "" {
		cfg.Chat.ModelName = "gpt-4"
	}
	if cfg.Chat.MaxTokens == 0 {
		cfg.Chat.MaxTokens = 2000
	}
	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = 3
	}

	if cfg.Pricing.Encoding == "" {
		cfg.Pricing.Encoding = "cl100k_base"
	}

	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "data/ledger.db"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "mxrag"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 0.1
	}
}
