package proto

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a stream event record.
type EventType string

// Stream event kinds, in their emission order within a turn: zero or more
// status events, zero or more text chunks, at most one user_input_request per
// suspension, and exactly one terminal done or error.
const (
	EventStatus           EventType = "status"
	EventText             EventType = "text"
	EventUserInputRequest EventType = "user_input_request"
	EventDone             EventType = "done"
	EventError            EventType = "error"
)

// Event is one record of the newline-delimited stream protocol.
type Event struct {
	Type   EventType `json:"type"`
	TurnID string    `json:"turn_id,omitempty"`

	// status fields
	Phase  State  `json:"phase,omitempty"`
	Detail string `json:"detail,omitempty"`

	// text fields
	Text string `json:"text,omitempty"`

	// user_input_request fields
	Request *UserInputRequest `json:"request,omitempty"`

	// error fields
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// StatusEvent reports a phase transition or progress note.
func StatusEvent(turnID string, phase State, detail string) Event {
	return Event{Type: EventStatus, TurnID: turnID, Phase: phase, Detail: detail}
}

// TextEvent carries an incremental chunk of the final answer.
func TextEvent(turnID, text string) Event {
	return Event{Type: EventText, TurnID: turnID, Text: text}
}

// InputRequestEvent surfaces a pending UserInputRequest; the stream suspends
// after this record until the side channel resolves it.
func InputRequestEvent(turnID string, req *UserInputRequest) Event {
	return Event{Type: EventUserInputRequest, TurnID: turnID, Request: req}
}

// DoneEvent is the terminal success record.
func DoneEvent(turnID string) Event {
	return Event{Type: EventDone, TurnID: turnID}
}

// ErrorEvent is the terminal failure record with a stable error code.
func ErrorEvent(turnID, code, message string) Event {
	return Event{Type: EventError, TurnID: turnID, Code: code, Message: message}
}

// MarshalLine serializes the event as one NDJSON line including the trailing
// newline.
func (e Event) MarshalLine() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}
	return append(data, '\n'), nil
}

// UnmarshalEvent parses one NDJSON line back into an Event.
func UnmarshalEvent(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("event missing type field")
	}
	return e, nil
}
