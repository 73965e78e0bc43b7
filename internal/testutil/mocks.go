// Package testutil provides shared test doubles for the query pipeline.
package testutil

import (
	"context"
	"sync"

	"github.com/npsettle/portquery/internal/llm"
	"github.com/npsettle/portquery/internal/storage"
)

// MockLLMService is a scriptable llm.Service. By default it answers every
// request with a fixed response; WithResponses scripts a sequence for
// retry and feedback tests.
type MockLLMService struct {
	mu        sync.Mutex
	responses []mockAnswer
	calls     int
	prompts   []string
}

type mockAnswer struct {
	resp *llm.QueryResponse
	err  error
}

// MockOption configures a MockLLMService
type MockOption func(*MockLLMService)

// WithSQL scripts a single successful response carrying the given SQL
func WithSQL(sql string) MockOption {
	return func(m *MockLLMService) {
		m.responses = append(m.responses, mockAnswer{
			resp: &llm.QueryResponse{SQL: sql, Explanation: "test query", Confidence: 0.9},
		})
	}
}

// WithResponse scripts a full response
func WithResponse(resp *llm.QueryResponse) MockOption {
	return func(m *MockLLMService) {
		m.responses = append(m.responses, mockAnswer{resp: resp})
	}
}

// WithError scripts a failing call
func WithError(err error) MockOption {
	return func(m *MockLLMService) {
		m.responses = append(m.responses, mockAnswer{err: err})
	}
}

// NewMockLLMService builds the mock; answers are consumed in the order the
// options were given, and the final answer repeats once the script runs out.
func NewMockLLMService(opts ...MockOption) *MockLLMService {
	m := &MockLLMService{}

	for _, opt := range opts {
		opt(m)
	}

	if len(m.responses) == 0 {
		m.responses = []mockAnswer{{
			resp: &llm.QueryResponse{SQL: "SELECT 1", Confidence: 0.5},
		}}
	}

	return m
}

// GenerateQuery implements llm.Service
func (m *MockLLMService) GenerateQuery(_ context.Context, req llm.Request) (*llm.QueryResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, req.Prompt)

	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}

	m.calls++

	answer := m.responses[idx]

	return answer.resp, answer.err
}

// Configure implements llm.Service
func (m *MockLLMService) Configure(llm.Config) error { return nil }

// Calls reports how many times GenerateQuery ran
func (m *MockLLMService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls
}

// Prompts returns the prompts received so far
func (m *MockLLMService) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.prompts...)
}

// MockExecutor is a scriptable pipeline executor
type MockExecutor struct {
	Result  *storage.Result
	Err     error
	Queries []string
}

// Execute records the query and returns the scripted result
func (m *MockExecutor) Execute(_ context.Context, query string) (*storage.Result, error) {
	m.Queries = append(m.Queries, query)

	return m.Result, m.Err
}
