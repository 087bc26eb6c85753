package embedding

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/openai"
)

// OpenAIOptions configures OpenAIEmbedder.
type OpenAIOptions struct {
	Model      string
	Dimensions int
	// BatchSize is the maximum number of inputs per provider call.
	BatchSize int
}

// OpenAIEmbedder embeds text through the OpenAI embeddings endpoint. Retries
// and backoff live in the provider client.
type OpenAIEmbedder struct {
	client *openai.Client
	opts   OpenAIOptions
	logger *zap.Logger
}

// NewOpenAIEmbedder returns an embedder backed by client.
func NewOpenAIEmbedder(client *openai.Client, opts OpenAIOptions, logger *zap.Logger) *OpenAIEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIEmbedder{client: client, opts: opts, logger: logger}
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch splits texts into provider-sized batches and concatenates the results.
// The first failing batch aborts the call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(texts))
		vecs, err := e.client.Embeddings(ctx, e.opts.Model, e.opts.Dimensions, texts[start:end])
		if err != nil {
			return nil, err
		}
		if err := checkDimensions(vecs, e.opts.Dimensions); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
		e.logger.Debug("embedded batch",
			zap.Int("start", start),
			zap.Int("size", end-start),
			zap.String("model", e.opts.Model))
	}
	return out, nil
}

// Dimensions returns the configured embedding length.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.opts.Dimensions
}

// Close is a no-op; the HTTP client is shared.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
