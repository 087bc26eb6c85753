package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/openai"
)

// OpenAIModel calls the chat completions endpoint.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
	streaming   bool
	logger      *zap.Logger
}

// Option configures an OpenAIModel.
type Option func(*OpenAIModel)

// WithStreaming requests server-sent deltas instead of a single response body.
// The caller still receives the whole answer.
func WithStreaming(on bool) Option {
	return func(m *OpenAIModel) { m.streaming = on }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *OpenAIModel) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewOpenAIModel returns a Model for the named chat model.
func NewOpenAIModel(client *openai.Client, model string, temperature float64, maxTokens int, opts ...Option) *OpenAIModel {
	m := &OpenAIModel{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Complete sends messages and returns the answer text.
func (m *OpenAIModel) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	req := openai.ChatRequest{
		Model:       m.model,
		Messages:    make([]openai.ChatMessage, len(messages)),
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatMessage{Role: msg.Role, Content: msg.Content}
	}

	var (
		res *openai.ChatResult
		err error
	)
	if m.streaming {
		deltas := 0
		res, err = m.client.ChatCompletionStream(ctx, req, func(string) { deltas++ })
		if err == nil {
			m.logger.Debug("streamed completion", zap.Int("deltas", deltas))
		}
	} else {
		res, err = m.client.ChatCompletion(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	m.logger.Debug("completion finished",
		zap.String("model", m.model),
		zap.String("finish_reason", res.FinishReason),
		zap.Int("prompt_tokens", res.PromptTokens),
		zap.Int("completion_tokens", res.CompletionTokens))
	return &Completion{Content: res.Content}, nil
}
