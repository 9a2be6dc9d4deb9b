// Package llm defines the model-inference client interface, its message
// types, and the provider implementations behind it.
package llm

import (
	"context"
	"fmt"

	"conductor/pkg/capability"
)

// Role identifies the author of a completion message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Default generation knobs. Temperature stays low: planning wants
// consistency over creativity.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.3
)

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// ToolResult carries a tool's output back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// Message is one entry in the completion conversation.
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Request is a completion request to a provider.
type Request struct {
	Messages    []Message
	Tools       []capability.Definition
	ToolChoice  string // "", "auto", or "any"
	MaxTokens   int
	Temperature float32
}

// Usage reports provider-side token accounting; zero when the provider
// does not supply it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is a provider's answer to one Request.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string // "end_turn", "max_tokens", "tool_use", ...
	Usage      Usage
}

// Client is the planning-model collaborator. Implementations wrap one
// provider SDK; cross-cutting behavior is layered with Middleware.
type Client interface {
	Complete(ctx context.Context, in Request) (Response, error)
	ModelName() string
}

// NewRequest creates a request with default generation knobs.
func NewRequest(messages []Message) Request {
	return Request{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// validateRequest rejects requests no provider can serve.
func validateRequest(in Request) error {
	if len(in.Messages) == 0 {
		return fmt.Errorf("message list cannot be empty")
	}
	if in.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", in.MaxTokens)
	}

	return nil
}
