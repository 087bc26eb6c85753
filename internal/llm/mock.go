package llm

import (
	"context"
	"sync"
)

// MockModel replays scripted replies and records every prompt it receives.
// When the script runs out, the last reply is repeated.
type MockModel struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   [][]Message
}

// NewMockModel returns a model that answers with replies in order.
func NewMockModel(replies ...string) *MockModel {
	return &MockModel{replies: replies}
}

// FailWith queues errors returned before any further reply.
func (m *MockModel) FailWith(errs ...error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return m
}

// Complete records messages and returns the next scripted result.
func (m *MockModel) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]Message(nil), messages...))
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	if len(m.replies) == 0 {
		return &Completion{}, nil
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return &Completion{Content: reply}, nil
}

// Calls returns the recorded prompts.
func (m *MockModel) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}
