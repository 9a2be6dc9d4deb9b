package proto

import "fmt"

// State is a turn lifecycle state.
type State string

// Turn states. FAILED is reachable from any non-terminal state on an
// unrecoverable error; CANCELLED is the cancelled variant of FAILED,
// entered when the caller disconnects or abandons a suspension.
const (
	StateReceived       State = "RECEIVED"
	StatePlanning       State = "PLANNING"
	StateExecutingTools State = "EXECUTING_TOOLS"
	StateAwaitingInput  State = "AWAITING_INPUT"
	StateResponding     State = "RESPONDING"
	StatePersisting     State = "PERSISTING"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
	StateCancelled      State = "CANCELLED"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Terminal reports whether the state ends the turn.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// TransitionTable maps each state to the states it may legally enter.
type TransitionTable map[State][]State

// ValidTransitions is the authoritative transition table for a turn.
//
//nolint:gochecknoglobals // Shared immutable transition table.
var ValidTransitions = TransitionTable{
	StateReceived:       {StatePlanning, StateFailed, StateCancelled},
	StatePlanning:       {StateExecutingTools, StateAwaitingInput, StateResponding, StateFailed, StateCancelled},
	StateExecutingTools: {StatePlanning, StateFailed, StateCancelled},
	StateAwaitingInput:  {StatePlanning, StateFailed, StateCancelled},
	StateResponding:     {StatePersisting, StateFailed, StateCancelled},
	StatePersisting:     {StateDone, StateFailed},
	StateDone:           {},
	StateFailed:         {},
	StateCancelled:      {},
}

// CanTransition reports whether moving from one state to another is legal.
func (tt TransitionTable) CanTransition(from, to State) bool {
	for _, next := range tt[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned when a turn attempts an illegal state change.
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}
