// Package summary condenses a conversation into a short summary.
package summary

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
	"github.com/hyperjump/mxrag/internal/chat"
	"github.com/hyperjump/mxrag/internal/cost"
	"github.com/hyperjump/mxrag/internal/llm"
	"github.com/hyperjump/mxrag/internal/models"
)

const promptTemplate = "\nGiven the following chat history between a user and an AI assistant:\n" +
	"{chat_history}\n\n" +
	"Generate a brief and concise summary (2-3 sentences) highlighting the key points and topics discussed.\n" +
	"Focus on the main questions asked and solutions provided.\n"

// FormatConversation renders each turn as a "User: " line followed by an
// "Assistant: " line.
func FormatConversation(history models.History, sanitize bool) string {
	lines := make([]string, 0, 2*len(history))
	for _, t := range history {
		user, assistant := t.User, t.Assistant
		if sanitize {
			user, assistant = chat.SanitizeTurn(user), chat.SanitizeTurn(assistant)
		}
		lines = append(lines, "User: "+user, "Assistant: "+assistant)
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt places the formatted conversation into the summary template.
func BuildPrompt(conversation string) string {
	return strings.Replace(promptTemplate, "{chat_history}", conversation, 1)
}

// Service produces summaries with a language model.
type Service struct {
	model      llm.Model
	accountant *cost.Accountant
	sanitize   bool
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewService returns a summary service. A nil logger disables logging.
func NewService(model llm.Model, accountant *cost.Accountant, sanitize bool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		model:      model,
		accountant: accountant,
		sanitize:   sanitize,
		logger:     logger,
		tracer:     otel.Tracer("github.com/hyperjump/mxrag/internal/summary"),
	}
}

// Summarize asks the model once for a summary of history.
func (s *Service) Summarize(ctx context.Context, history models.History) (*models.SummaryResponse, error) {
	if len(history) == 0 {
		return nil, apperr.Validation("History cannot be empty")
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "summary.summarize",
		trace.WithAttributes(attribute.Int("summary.history_turns", len(history))))
	defer span.End()

	prompt := BuildPrompt(FormatConversation(history, s.sanitize))
	completion, err := s.model.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("summary failed", zap.Error(err))
		return nil, fmt.Errorf("error generating summary: %w", err)
	}

	costInfo := s.accountant.Cost(prompt, completion.Content, false)
	elapsed := time.Since(start)
	s.logger.Info("summary generated",
		zap.Int("turns", len(history)),
		zap.Int("input_tokens", costInfo.InputTokens),
		zap.Duration("elapsed", elapsed))
	return &models.SummaryResponse{
		Summary:        strings.TrimSpace(completion.Content),
		ProcessingTime: elapsed.Seconds(),
		CostInfo:       costInfo,
	}, nil
}
