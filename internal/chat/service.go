// Package chat answers queries with retrieval-augmented generation, or directly
// from the model when no retrieval is wanted.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/apperr"
	"github.com/hyperjump/mxrag/internal/cost"
	"github.com/hyperjump/mxrag/internal/embedding"
	"github.com/hyperjump/mxrag/internal/llm"
	"github.com/hyperjump/mxrag/internal/models"
	"github.com/hyperjump/mxrag/internal/vectorstore"
)

// Settings are the retrieval and prompt knobs of the service.
type Settings struct {
	TopK            int
	ReturnSources   bool
	SanitizeHistory bool
}

// Service runs the chat pipelines. It holds no per-request state.
type Service struct {
	store      vectorstore.Store
	embedder   embedding.Embedder
	model      llm.Model
	accountant *cost.Accountant
	settings   Settings
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wires the pipeline dependencies.
func NewService(store vectorstore.Store, embedder embedding.Embedder, model llm.Model, accountant *cost.Accountant, settings Settings, opts ...Option) *Service {
	if settings.TopK <= 0 {
		settings.TopK = 3
	}
	s := &Service{
		store:      store,
		embedder:   embedder,
		model:      model,
		accountant: accountant,
		settings:   settings,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("github.com/hyperjump/mxrag/internal/chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return apperr.Validation("Query cannot be empty")
	}
	return nil
}

// Chat retrieves the top-k chunks for the query, asks the model once with
// them as context and returns the answer with its sources.
func (s *Service) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	if err := validateQuery(req.Query); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "chat.process", trace.WithAttributes(
		attribute.Int("chat.history_turns", len(req.History)),
		attribute.Int("chat.top_k", s.settings.TopK),
	))
	defer span.End()

	resp, err := s.chat(ctx, req, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("chat request failed", zap.Error(err))
		return nil, fmt.Errorf("error processing chat request: %w", err)
	}
	span.SetAttributes(attribute.Int("chat.sources", len(resp.Sources)))
	return resp, nil
}

func (s *Service) chat(ctx context.Context, req models.ChatRequest, start time.Time) (*models.ChatResponse, error) {
	vector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	matches, err := s.store.Query(ctx, vector, s.settings.TopK)
	if err != nil {
		return nil, err
	}

	question := req.Query
	if s.settings.SanitizeHistory {
		question = SanitizeTurn(question)
	}
	prompt := BuildPrompt(JoinContext(matches), FormatHistory(req.History, s.settings.SanitizeHistory), question)

	completion, err := s.model.Complete(ctx, []llm.Message{{Role: llm.RoleSystem, Content: prompt}})
	if err != nil {
		return nil, err
	}
	answer := strings.TrimSpace(completion.Content)

	sources := []models.SourceDocument{}
	if s.settings.ReturnSources {
		sources = ProjectSources(matches)
	}
	costInfo := s.accountant.Cost(prompt, answer, true)
	elapsed := time.Since(start)
	s.logger.Info("chat answered",
		zap.Int("sources", len(matches)),
		zap.Int("input_tokens", costInfo.InputTokens),
		zap.Int("output_tokens", costInfo.OutputTokens),
		zap.Duration("elapsed", elapsed))
	return &models.ChatResponse{
		Answer:         answer,
		Sources:        sources,
		ProcessingTime: elapsed.Seconds(),
		CostInfo:       costInfo,
	}, nil
}

// ChatRaw sends the history and query straight to the model without retrieval.
func (s *Service) ChatRaw(ctx context.Context, req models.ChatRequest) (*models.RawChatResponse, error) {
	if err := validateQuery(req.Query); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "chat.process_raw", trace.WithAttributes(
		attribute.Int("chat.history_turns", len(req.History)),
	))
	defer span.End()

	messages := append(ConvertHistoryToMessages(req.History), llm.Message{Role: llm.RoleUser, Content: req.Query})
	completion, err := s.model.Complete(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("raw chat request failed", zap.Error(err))
		return nil, fmt.Errorf("error processing chat request: %w", err)
	}
	answer := strings.TrimSpace(completion.Content)
	costInfo := s.accountant.Cost(RawTranscript(req.History, req.Query), answer, false)
	elapsed := time.Since(start)
	s.logger.Info("raw chat answered",
		zap.Int("input_tokens", costInfo.InputTokens),
		zap.Int("output_tokens", costInfo.OutputTokens),
		zap.Duration("elapsed", elapsed))
	return &models.RawChatResponse{
		Answer:         answer,
		ProcessingTime: elapsed.Seconds(),
		CostInfo:       costInfo,
	}, nil
}
