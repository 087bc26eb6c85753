package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/mxrag/internal/apperr"
	"github.com/hyperjump/mxrag/internal/cost"
	"github.com/hyperjump/mxrag/internal/llm"
	"github.com/hyperjump/mxrag/internal/models"
)

type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int { return len(strings.Fields(text)) }

func newService(model llm.Model) *Service {
	acc := cost.NewAccountant(wordTokenizer{}, cost.Rates{Input: 1, CachedInput: 0.5, Output: 2})
	return NewService(model, acc, true, nil)
}

func TestFormatConversation(t *testing.T) {
	got := FormatConversation(models.History{{User: "a", Assistant: "b"}, {User: "c", Assistant: "d"}}, false)
	want := "User: a\nAssistant: b\nUser: c\nAssistant: d"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSummarize(t *testing.T) {
	model := llm.NewMockModel("\n  They discussed refunds.  \n")
	svc := newService(model)

	resp, err := svc.Summarize(context.Background(), models.History{{User: "Can I get a refund?", Assistant: "Yes, within 30 days."}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Summary != "They discussed refunds." {
		t.Errorf("summary = %q", resp.Summary)
	}
	if resp.CostInfo.IsCached || resp.CostInfo.OutputTokens != 3 {
		t.Errorf("cost = %+v", resp.CostInfo)
	}

	calls := model.Calls()
	if len(calls) != 1 || len(calls[0]) != 1 || calls[0][0].Role != llm.RoleUser {
		t.Fatalf("calls = %+v", calls)
	}
	if !strings.Contains(calls[0][0].Content, "User: Can I get a refund?\nAssistant: Yes, within 30 days.") {
		t.Errorf("prompt:\n%s", calls[0][0].Content)
	}
}

func TestSummarize_emptyHistory(t *testing.T) {
	model := llm.NewMockModel("x")
	_, err := newService(model).Summarize(context.Background(), nil)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "History cannot be empty") {
		t.Errorf("message = %v", err)
	}
	if len(model.Calls()) != 0 {
		t.Error("model must not be called")
	}
}

func TestSummarize_modelError(t *testing.T) {
	boom := errors.New("boom")
	_, err := newService(llm.NewMockModel().FailWith(boom)).Summarize(context.Background(), models.History{{User: "a", Assistant: "b"}})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}
