package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// flatten prepares a conversation for providers that require strict
// user/assistant alternation with a separate system prompt. Tool calls
// and tool results are rendered as text, consecutive non-assistant
// messages merge into one user message, and the sequence must end on a
// user message.
func flatten(messages []Message) (systemPrompt string, alternating []Message, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var rest []Message

	for i := range messages {
		msg := &messages[i]
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		rest = append(rest, *msg)
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var merged []Message
	var userParts []string

	flushUser := func() {
		if len(userParts) > 0 {
			merged = append(merged, Message{Role: RoleUser, Content: strings.Join(userParts, "\n\n")})
			userParts = nil
		}
	}

	for i := range rest {
		msg := &rest[i]
		if msg.Role == RoleAssistant {
			flushUser()
			merged = append(merged, Message{Role: RoleAssistant, Content: renderAssistant(msg)})
			continue
		}
		userParts = append(userParts, renderUser(msg))
	}
	flushUser()

	if merged[0].Role != RoleUser {
		merged = append([]Message{{Role: RoleUser, Content: "(continue)"}}, merged...)
	}
	if merged[len(merged)-1].Role != RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", merged[len(merged)-1].Role)
	}

	return systemPrompt, merged, nil
}

func renderAssistant(msg *Message) string {
	parts := make([]string, 0, 1+len(msg.ToolCalls))
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for i := range msg.ToolCalls {
		call := &msg.ToolCalls[i]
		args, err := json.Marshal(call.Parameters)
		if err != nil {
			args = []byte("{}")
		}
		parts = append(parts, fmt.Sprintf("[called %s(%s) as %s]", call.Name, args, call.ID))
	}

	return strings.Join(parts, "\n")
}

func renderUser(msg *Message) string {
	parts := make([]string, 0, 1+len(msg.ToolResults))
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for i := range msg.ToolResults {
		res := &msg.ToolResults[i]
		parts = append(parts, fmt.Sprintf("[result for %s]\n%s", res.ToolCallID, res.Content))
	}

	return strings.Join(parts, "\n\n")
}
