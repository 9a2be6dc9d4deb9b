package llm

import (
	"context"
	"sync"

	"conductor/pkg/faults"
)

// MockClient is a scripted Client for tests. Responses are served in
// order; errors may be interleaved by scripting a step with Err set.
type MockClient struct {
	mu       sync.Mutex
	steps    []MockStep
	index    int
	requests []Request
}

// MockStep is one scripted completion outcome.
type MockStep struct {
	Response Response
	Err      error
}

// NewMockClient creates a mock that replays the given steps.
func NewMockClient(steps ...MockStep) *MockClient {
	return &MockClient{steps: steps}
}

// MockText is a convenience step: a final text answer.
func MockText(content string) MockStep {
	return MockStep{Response: Response{Content: content, StopReason: "end_turn"}}
}

// MockToolCalls is a convenience step: the model requests tool calls.
func MockToolCalls(calls ...ToolCall) MockStep {
	return MockStep{Response: Response{ToolCalls: calls, StopReason: "tool_use"}}
}

// Complete implements Client.
func (m *MockClient) Complete(_ context.Context, in Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, in)
	if m.index >= len(m.steps) {
		return Response{}, faults.New(faults.KindTerminal, "mock client exhausted")
	}

	step := m.steps[m.index]
	m.index++
	if step.Err != nil {
		return Response{}, step.Err
	}

	return step.Response, nil
}

// ModelName implements Client.
func (m *MockClient) ModelName() string {
	return "mock"
}

// Requests returns a copy of every request seen so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// Calls returns how many completions were requested.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}
