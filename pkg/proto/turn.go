// Package proto defines the domain types shared across the orchestration
// pipeline: conversation turns, messages, tool calls, user-input exchanges,
// turn states and the stream event records.
package proto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message within a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest is a single capability invocation requested by the model.
type ToolCallRequest struct {
	CallID     string         `json:"call_id"`
	Capability string         `json:"capability_name"`
	Arguments  map[string]any `json:"arguments"`
}

// ToolError describes a failed capability call in a form the model can read.
type ToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToolResult is the outcome of exactly one ToolCallRequest, correlated by
// CallID. A request without a matching result before turn completion is an
// invariant violation.
type ToolResult struct {
	CallID  string     `json:"call_id"`
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ToolError `json:"error,omitempty"`
}

// Message is one entry in a turn's history. Append-only; insertion order is
// the conversation order and is preserved verbatim on replay.
type Message struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
	// CallID correlates a tool message with the request it answers.
	CallID string `json:"call_id,omitempty"`
}

// Turn is one complete processing cycle from inbound user message to final
// answer or failure. Owned exclusively by the orchestrator until it is handed
// to the checkpoint store, after which it is immutable.
type Turn struct {
	TurnID      string     `json:"turn_id"`
	UserID      string     `json:"user_id"`
	SessionID   string     `json:"session_id"`
	Input       string     `json:"input_message"`
	History     []Message  `json:"history"`
	Status      State      `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTurn creates a turn in the RECEIVED state with a fresh id.
func NewTurn(userID, sessionID, input string) *Turn {
	return &Turn{
		TurnID:    generateTurnID(),
		UserID:    userID,
		SessionID: sessionID,
		Input:     input,
		Status:    StateReceived,
		CreatedAt: time.Now().UTC(),
	}
}

func generateTurnID() string {
	return fmt.Sprintf("turn-%s", uuid.New().String())
}

// NewCallID generates a unique id for a tool call request.
func NewCallID() string {
	return fmt.Sprintf("call-%s", uuid.New().String())
}

// NewRequestID generates a unique id for a user-input request.
func NewRequestID() string {
	return fmt.Sprintf("req-%s", uuid.New().String())
}

// Append adds a message to the turn history, preserving insertion order.
func (t *Turn) Append(msg Message) {
	t.History = append(t.History, msg)
}

// InputKind enumerates the shapes of human input a handler may request.
type InputKind string

const (
	InputConfirmation InputKind = "confirmation"
	InputSelection    InputKind = "selection"
	InputFreeform     InputKind = "input"
)

// UserInputRequest asks the caller's human for a mid-turn decision. A turn
// carries at most one outstanding request.
type UserInputRequest struct {
	RequestID string    `json:"request_id"`
	Kind      InputKind `json:"kind"`
	Prompt    string    `json:"prompt"`
	Options   []string  `json:"options,omitempty"`
}

// UserInputResponse resolves a UserInputRequest, matched by RequestID.
type UserInputResponse struct {
	RequestID string `json:"request_id"`
	Value     string `json:"value"`
}
