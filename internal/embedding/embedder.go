// Package embedding turns chunk and query text into vectors.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/apperr"
	"github.com/hyperjump/mxrag/internal/config"
	"github.com/hyperjump/mxrag/internal/openai"
)

// Embedder produces vector embeddings for text. Implementations are safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New builds the embedder selected by cfg.Embedding.Provider. client is only
// used by the openai provider and may be nil otherwise.
func New(cfg *config.Config, client *openai.Client, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Embedding.Provider {
	case config.EmbeddingProviderOpenAI:
		if client == nil {
			return nil, apperr.Configuration("openai embedding provider requires a provider client")
		}
		return NewOpenAIEmbedder(client, OpenAIOptions{
			Model:      cfg.OpenAI.Model,
			Dimensions: cfg.OpenAI.Dimensions,
			BatchSize:  cfg.OpenAI.BatchSize,
		}, logger), nil
	case config.EmbeddingProviderONNX:
		e, err := NewONNXEmbedder(cfg.Embedding.ModelPath, cfg.OpenAI.Dimensions, cfg.Embedding.MaxTokens)
		if err != nil {
			return nil, apperr.Configuration(fmt.Sprintf("failed to load onnx embedder: %v", err))
		}
		return e, nil
	case config.EmbeddingProviderMock:
		logger.Warn("using mock embedder; retrieval results are not semantic")
		return NewMockEmbedder(cfg.OpenAI.Dimensions), nil
	default:
		return nil, apperr.Configuration(fmt.Sprintf("unknown embedding provider %q", cfg.Embedding.Provider))
	}
}

// checkDimensions verifies every vector has the collection's fixed length.
func checkDimensions(vectors [][]float32, dims int) error {
	for i, v := range vectors {
		if len(v) != dims {
			return apperr.Provider(apperr.ReasonBadRequest, 0,
				fmt.Sprintf("embedding %d has %d dimensions, expected %d", i, len(v), dims), nil)
		}
	}
	return nil
}
