package proto

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTurnDefaults(t *testing.T) {
	turn := NewTurn("user-1", "sess-1", "hello")

	assert.Equal(t, StateReceived, turn.Status)
	assert.Equal(t, "user-1", turn.UserID)
	assert.True(t, strings.HasPrefix(turn.TurnID, "turn-"))
	assert.False(t, turn.CreatedAt.IsZero())
	assert.Empty(t, turn.History)
}

func TestAppendPreservesOrder(t *testing.T) {
	turn := NewTurn("u", "s", "hi")
	turn.Append(Message{Role: RoleUser, Content: "first"})
	turn.Append(Message{Role: RoleAssistant, Content: "second"})
	turn.Append(Message{Role: RoleTool, Content: "third", CallID: "call-1"})

	require.Len(t, turn.History, 3)
	assert.Equal(t, "first", turn.History[0].Content)
	assert.Equal(t, "second", turn.History[1].Content)
	assert.Equal(t, "call-1", turn.History[2].CallID)
}

func TestTransitionTable(t *testing.T) {
	valid := []struct{ from, to State }{
		{StateReceived, StatePlanning},
		{StatePlanning, StateExecutingTools},
		{StateExecutingTools, StatePlanning},
		{StatePlanning, StateAwaitingInput},
		{StateAwaitingInput, StatePlanning},
		{StatePlanning, StateResponding},
		{StateResponding, StatePersisting},
		{StatePersisting, StateDone},
		{StateAwaitingInput, StateCancelled},
	}
	for _, tt := range valid {
		assert.True(t, ValidTransitions.CanTransition(tt.from, tt.to), "%s -> %s should be valid", tt.from, tt.to)
	}

	invalid := []struct{ from, to State }{
		{StateReceived, StateResponding},
		{StateDone, StatePlanning},
		{StatePersisting, StateCancelled},
		{StateFailed, StatePlanning},
		{StateExecutingTools, StateResponding},
	}
	for _, tt := range invalid {
		assert.False(t, ValidTransitions.CanTransition(tt.from, tt.to), "%s -> %s should be invalid", tt.from, tt.to)
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StatePlanning.Terminal())
	assert.False(t, StateAwaitingInput.Terminal())
}

func TestEventMarshalLine(t *testing.T) {
	ev := StatusEvent("turn-1", StatePlanning, "thinking")
	line, err := ev.MarshalLine()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(line), "\n"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(line, &decoded))
	assert.Equal(t, "status", decoded["type"])
	assert.Equal(t, "PLANNING", decoded["phase"])
	assert.Equal(t, "thinking", decoded["detail"])
}

func TestInputRequestEventRoundTrip(t *testing.T) {
	req := &UserInputRequest{
		RequestID: NewRequestID(),
		Kind:      InputSelection,
		Prompt:    "Which audience?",
		Options:   []string{"A", "B"},
	}
	line, err := InputRequestEvent("turn-2", req).MarshalLine()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(line, &ev))
	require.NotNil(t, ev.Request)
	assert.Equal(t, req.RequestID, ev.Request.RequestID)
	assert.Equal(t, InputSelection, ev.Request.Kind)
	assert.Equal(t, []string{"A", "B"}, ev.Request.Options)
}
