package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/chatiq/chatiq/internal/domain"
)

// MockCompletion is a canned completion client for local mode and tests.
// Reply, when set, scripts the response; every request is recorded.
type MockCompletion struct {
	Reply func(req domain.CompletionRequest) string

	mu       sync.Mutex
	requests []domain.CompletionRequest
}

func NewMockCompletion() *MockCompletion {
	return &MockCompletion{}
}

func (m *MockCompletion) Complete(_ context.Context, req domain.CompletionRequest) string {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Reply != nil {
		return m.Reply(req)
	}
	return fmt.Sprintf("You said %q. Tell me more about that.", req.Query)
}

// Requests returns a copy of every request seen so far.
func (m *MockCompletion) Requests() []domain.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
