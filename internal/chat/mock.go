package chat

import (
	"context"
	"sync"
)

// MockCall records one Respond invocation.
type MockCall struct {
	Prompt    string
	Persona   string
	MaxTokens int
}

// MockResponder is a Responder for tests.
type MockResponder struct {
	// RespondFunc, when set, produces the reply.
	RespondFunc func(ctx context.Context, prompt, persona string, maxTokens int) (string, error)

	mu    sync.Mutex
	calls []MockCall
}

// NewMockResponder returns a responder that always answers reply.
func NewMockResponder(reply string) *MockResponder {
	return &MockResponder{
		RespondFunc: func(context.Context, string, string, int) (string, error) {
			return reply, nil
		},
	}
}

func (m *MockResponder) Respond(ctx context.Context, prompt, persona string, maxTokens int) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, Persona: persona, MaxTokens: maxTokens})
	fn := m.RespondFunc
	m.mu.Unlock()

	if fn == nil {
		return "", ErrEmptyResponse
	}
	return fn(ctx, prompt, persona, maxTokens)
}

// Calls returns a copy of the recorded calls.
func (m *MockResponder) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}
