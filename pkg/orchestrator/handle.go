package orchestrator

import (
	"sync"

	"conductor/pkg/faults"
	"conductor/pkg/proto"
)

// Handle is the control surface the transport holds for a running turn. It
// carries the resume side channel and the cancellation hook; the orchestrator
// owns everything else.
type Handle struct {
	turnID string

	mu      sync.Mutex
	pending *proto.UserInputRequest
	resume  chan proto.UserInputResponse

	cancelOnce sync.Once
	cancelCh   chan struct{}

	done chan struct{}
}

// NewHandle creates a handle for a turn that has not started yet.
func NewHandle(turnID string) *Handle {
	return &Handle{
		turnID:   turnID,
		resume:   make(chan proto.UserInputResponse, 1),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// TurnID returns the turn this handle controls.
func (h *Handle) TurnID() string {
	return h.turnID
}

// Resume delivers a side-channel response to a suspended turn. Responses
// that do not correlate with the outstanding request, arrive twice, or
// arrive while nothing is suspended are rejected without side effects.
func (h *Handle) Resume(resp proto.UserInputResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pending == nil {
		return faults.New(faults.KindProtocolViolation, "turn has no pending input request")
	}
	if resp.RequestID != h.pending.RequestID {
		return faults.Newf(faults.KindProtocolViolation, "response %s does not match pending request %s", resp.RequestID, h.pending.RequestID)
	}

	h.pending = nil
	h.resume <- resp

	return nil
}

// Pending reports whether the turn is suspended awaiting input.
func (h *Handle) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending != nil
}

// Cancel requests cancellation of the turn. Safe to call more than once.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() { close(h.cancelCh) })
}

// Done is closed when the turn reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// suspend registers the outstanding request and returns the channel the
// matching response will arrive on.
func (h *Handle) suspend(req *proto.UserInputRequest) <-chan proto.UserInputResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = req
	return h.resume
}

// clearPending drops the outstanding request, after which Resume rejects.
func (h *Handle) clearPending() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = nil
}

func (h *Handle) finish() {
	close(h.done)
}
