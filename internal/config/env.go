package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/mxrag/internal/apperr"
)

// envBinding maps one environment key onto a config field.
type envBinding struct {
	key string
	set func(cfg *Config, raw string) error
}

func bindString(key string, field func(*Config) *string) envBinding {
	return envBinding{key: key, set: func(cfg *Config, raw string) error {
		*field(cfg) = raw
		return nil
	}}
}

func bindInt(key string, field func(*Config) *int) envBinding {
	return envBinding{key: key, set: func(cfg *Config, raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*field(cfg) = n
		return nil
	}}
}

func bindIntPtr(key string, field func(*Config) **int) envBinding {
	return envBinding{key: key, set: func(cfg *Config, raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*field(cfg) = &n
		return nil
	}}
}

func bindFloat(key string, field func(*Config) *float64) envBinding {
	return envBinding{key: key, set: func(cfg *Config, raw string) error {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*field(cfg) = f
		return nil
	}}
}

func bindFloatPtr(key string, field func(*Config) **float64) envBinding {
	return envBinding{key: key, set: func(cfg *Config, raw string) error {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*field(cfg) = &f
		return nil
	}}
}

func bindBool(key string, field func(*Config) *bool) envBinding {
	return envBinding{key: key, set: func(cfg *Config, raw string) error {
		b, err := parseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*field(cfg) = b
		return nil
	}}
}

func bindBoolPtr(key string, field func(*Config) **bool) envBinding {
	return envBinding{key: key, set: func(cfg *Config, raw string) error {
		b, err := parseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*field(cfg) = &b
		return nil
	}}
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}

var envBindings = []envBinding{
	bindBool("DEBUG", func(c *Config) *bool { return &c.Debug }),
	bindString("SERVER_HOST", func(c *Config) *string { return &c.Server.Host }),
	bindInt("SERVER_PORT", func(c *Config) *int { return &c.Server.Port }),

	bindString("OPENAI_API_KEY", func(c *Config) *string { return &c.OpenAI.APIKey }),
	bindString("OPENAI_BASE_URL", func(c *Config) *string { return &c.OpenAI.BaseURL }),
	bindString("OPENAI_MODEL", func(c *Config) *string { return &c.OpenAI.Model }),
	bindInt("OPENAI_DIMENSIONS", func(c *Config) *int { return &c.OpenAI.Dimensions }),
	bindInt("OPENAI_CHUNK_SIZE", func(c *Config) *int { return &c.OpenAI.BatchSize }),
	bindIntPtr("OPENAI_MAX_RETRIES", func(c *Config) **int { return &c.OpenAI.MaxRetries }),
	bindFloat("OPENAI_TIMEOUT", func(c *Config) *float64 { return &c.OpenAI.TimeoutSeconds }),
	bindFloatPtr("OPENAI_RETRY_MIN_SECONDS", func(c *Config) **float64 { return &c.OpenAI.RetryMinSeconds }),
	bindFloatPtr("OPENAI_RETRY_MAX_SECONDS", func(c *Config) **float64 { return &c.OpenAI.RetryMaxSeconds }),

	bindString("EMBEDDING_PROVIDER", func(c *Config) *string { return &c.Embedding.Provider }),
	bindString("EMBEDDING_MODEL_PATH", func(c *Config) *string { return &c.Embedding.ModelPath }),

	bindString("VECTORSTORE_BACKEND", func(c *Config) *string { return &c.VectorStore.Backend }),
	bindString("VECTORSTORE_PERSIST_DIRECTORY", func(c *Config) *string { return &c.VectorStore.PersistDirectory }),
	bindString("VECTORSTORE_COLLECTION_NAME", func(c *Config) *string { return &c.VectorStore.CollectionName }),
	bindString("QDRANT_URL", func(c *Config) *string { return &c.VectorStore.Qdrant.URL }),
	bindString("QDRANT_API_KEY", func(c *Config) *string { return &c.VectorStore.Qdrant.APIKey }),
	bindString("DATABASE_URL", func(c *Config) *string { return &c.VectorStore.Postgres.DSN }),

	bindString("PDF_DIRECTORY", func(c *Config) *string { return &c.Ingest.PDFDirectory }),
	bindString("CHUNKS_DIRECTORY", func(c *Config) *string { return &c.Ingest.ChunksDirectory }),
	bindInt("CHUNK_SIZE", func(c *Config) *int { return &c.Ingest.ChunkSize }),
	bindIntPtr("CHUNK_OVERLAP", func(c *Config) **int { return &c.Ingest.ChunkOverlap }),
	bindBoolPtr("SAVE_CHUNKS", func(c *Config) **bool { return &c.Ingest.SaveChunks }),
	bindBool("WATCH_PDF_DIRECTORY", func(c *Config) *bool { return &c.Ingest.Watch }),

	bindString("CHAT_MODEL_NAME", func(c *Config) *string { return &c.Chat.ModelName }),
	bindFloat("CHAT_TEMPERATURE", func(c *Config) *float64 { return &c.Chat.Temperature }),
	bindInt("CHAT_MAX_TOKENS", func(c *Config) *int { return &c.Chat.MaxTokens }),
	bindInt("CHAT_TOP_K", func(c *Config) *int { return &c.Chat.TopK }),
	bindBoolPtr("CHAT_RETURN_SOURCE_DOCS", func(c *Config) **bool { return &c.Chat.ReturnSourceDocs }),
	bindBool("CHAT_STREAMING", func(c *Config) *bool { return &c.Chat.Streaming }),
	bindBoolPtr("CHAT_SANITIZE_HISTORY", func(c *Config) **bool { return &c.Chat.SanitizeHistory }),

	bindFloatPtr("MODEL_INPUT_COST_PER_TOKEN", func(c *Config) **float64 { return &c.Pricing.InputCostPerToken }),
	bindFloatPtr("MODEL_CACHED_INPUT_COST_PER_TOKEN", func(c *Config) **float64 { return &c.Pricing.CachedInputCostPerToken }),
	bindFloatPtr("MODEL_OUTPUT_COST_PER_TOKEN", func(c *Config) **float64 { return &c.Pricing.OutputCostPerToken }),
	bindString("TOKENIZER_ENCODING", func(c *Config) *string { return &c.Pricing.Encoding }),

	bindString("LEDGER_DATABASE_PATH", func(c *Config) *string { return &c.Storage.DatabasePath }),

	bindBool("OTEL_ENABLED", func(c *Config) *bool { return &c.Telemetry.Enabled }),
	bindString("OTEL_SERVICE_NAME", func(c *Config) *string { return &c.Telemetry.ServiceName }),
	bindString("OTEL_ENVIRONMENT", func(c *Config) *string { return &c.Telemetry.Environment }),
	bindString("OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config) *string { return &c.Telemetry.Endpoint }),
	bindBool("OTEL_EXPORTER_OTLP_INSECURE", func(c *Config) *bool { return &c.Telemetry.Insecure }),
	bindFloat("OTEL_SAMPLER_RATIO", func(c *Config) *float64 { return &c.Telemetry.SampleRatio }),
}

// ApplyEnv overrides cfg fields from environment variables looked up with getenv.
// Keys are matched upper-case first, then lower-case. Empty values are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	var problems []string
	for _, b := range envBindings {
		raw := strings.TrimSpace(getenv(b.key))
		if raw == "" {
			raw = strings.TrimSpace(getenv(strings.ToLower(b.key)))
		}
		if raw == "" {
			continue
		}
		if err := b.set(cfg, raw); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return apperr.Configuration("invalid environment: " + strings.Join(problems, "; "))
	}
	return nil
}
