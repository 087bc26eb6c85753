package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/apperr"
)

// ChatMessage is one message of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatResult is the normalised completion.
type ChatResult struct {
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatCompletion sends a non-streaming completion request.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	req.Stream = false
	var resp chatResponse
	if err := c.postJSON(ctx, "chat", "/v1/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.Provider(apperr.ReasonBadRequest, 0, "completion returned no choices", nil)
	}
	return &ChatResult{
		Content:          resp.Choices[0].Message.Content,
		FinishReason:     resp.Choices[0].FinishReason,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// ChatCompletionStream sends a streaming completion request and calls onDelta for
// every content fragment. The returned result holds the concatenated content.
// Failures after the first fragment are not retried.
func (c *Client) ChatCompletionStream(ctx context.Context, req ChatRequest, onDelta func(string)) (*ChatResult, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	attempt := 0
	return backoff.Retry(ctx, func() (*ChatResult, error) {
		attempt++
		res, started, err := c.streamOnce(ctx, body, onDelta)
		if err == nil {
			return res, nil
		}
		if started || ctx.Err() != nil || !apperr.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("provider request retrying",
				zap.String("op", "chat_stream"),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)
}

func (c *Client) streamOnce(ctx context.Context, body []byte, onDelta func(string)) (*ChatResult, bool, error) {
	httpReq, err := c.newRequest(ctx, "/v1/chat/completions", body)
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, false, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, false, classifyStatus(resp.StatusCode, raw)
	}

	var (
		sb      strings.Builder
		result  ChatResult
		started bool
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, started, apperr.Provider(apperr.ReasonBadRequest, 0, "decode stream chunk", err)
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != nil {
				result.FinishReason = *choice.FinishReason
			}
			if choice.Delta.Content == "" {
				continue
			}
			started = true
			sb.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, started, classifyTransportError(ctx, err)
	}
	result.Content = sb.String()
	return &result, started, nil
}
