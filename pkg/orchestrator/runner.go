package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"conductor/pkg/capability"
	"conductor/pkg/checkpoint"
	"conductor/pkg/faults"
	"conductor/pkg/llm"
	"conductor/pkg/proto"
	"conductor/pkg/resilience"
)

// plan asks the model for the next step given full history and the tool
// schemas. Retry and circuit breaking live in the client middleware chain.
func (r *runner) plan(ctx context.Context) (llm.Response, error) {
	messages := make([]llm.Message, 0, len(r.turn.History)+1)
	messages = append(messages, llm.SystemMessage(systemPrompt))
	for _, msg := range r.turn.History {
		messages = append(messages, toCompletionMessage(msg))
	}

	req := llm.NewRequest(messages)
	req.Tools = r.o.defs
	req.ToolChoice = "auto"

	return r.o.deps.Client.Complete(ctx, req)
}

// executeBatch dispatches one planning step's tool calls with capped fan-out
// and folds results back into history in request order, regardless of
// completion order. A handler's input request does not interrupt its
// siblings; the first one in request order is returned for suspension.
// A non-nil error means the batch was abandoned due to cancellation.
func (r *runner) executeBatch(ctx context.Context, calls []proto.ToolCallRequest) (*capability.InputNeeded, error) {
	type outcome struct {
		result proto.ToolResult
		err    error
	}

	cc := capability.Context{
		UserID:    r.turn.UserID,
		SessionID: r.turn.SessionID,
		TurnID:    r.turn.TurnID,
	}

	outcomes := make([]outcome, len(calls))
	sem := make(chan struct{}, r.o.deps.ToolFanout)
	var wg sync.WaitGroup
	for i, call := range calls {
		r.emitStatus(proto.StateExecutingTools, fmt.Sprintf("invoking %s", call.Capability))
		wg.Add(1)
		go func(i int, call proto.ToolCallRequest) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes[i].err = ctx.Err()
				return
			}
			outcomes[i].result, outcomes[i].err = r.o.deps.Dispatcher.Dispatch(ctx, call, cc)
		}(i, call)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// In-flight calls are abandoned; their deferred releases still run.
		return nil, ctx.Err()
	}

	var suspended *capability.InputNeeded
	var suspendedCallID string
	for i, call := range calls {
		out := outcomes[i]
		switch {
		case out.err == nil:
			r.appendToolResult(out.result)
		default:
			var needs *capability.InputNeeded
			if !errors.As(out.err, &needs) {
				return nil, out.err
			}
			if suspended == nil {
				suspended = needs
				suspendedCallID = call.CallID
				continue
			}
			// Only one input request can be outstanding per turn.
			r.appendToolResult(proto.ToolResult{
				CallID:  call.CallID,
				Success: false,
				Error: &proto.ToolError{
					Kind:    faults.KindTerminal.Code(),
					Message: "requires user input, but another input request is already pending",
				},
			})
		}
	}

	if suspended != nil {
		r.suspendedCallID = suspendedCallID
	}

	return suspended, nil
}

// awaitInput suspends the turn until the side channel delivers the matching
// response, the optional timeout fires, or the turn is cancelled. The
// response is spliced into history and planning continues; the planning
// step is not re-run.
func (r *runner) awaitInput(ctx context.Context, needs *capability.InputNeeded) error {
	req := &proto.UserInputRequest{
		RequestID: proto.NewRequestID(),
		Kind:      needs.Kind,
		Prompt:    needs.Prompt,
		Options:   needs.Options,
	}

	if err := r.transition(proto.StateAwaitingInput); err != nil {
		return r.fail(err)
	}
	resume := r.handle.suspend(req)
	r.emit(proto.InputRequestEvent(r.turn.TurnID, req))
	if r.o.deps.Observer != nil {
		r.o.deps.Observer.ObserveSuspension()
	}

	var timeout <-chan time.Time
	if d := r.o.deps.SuspensionTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp := <-resume:
		r.appendToolResult(proto.ToolResult{
			CallID:  r.suspendedCallID,
			Success: true,
			Data:    map[string]any{"user_input": resp.Value},
		})
		r.suspendedCallID = ""
		return r.transitionOrFail(proto.StatePlanning)
	case <-timeout:
		r.handle.clearPending()
		r.o.logger.Warn("Turn %s input request %s timed out", r.turn.TurnID, req.RequestID)
		return r.cancelled()
	case <-ctx.Done():
		r.handle.clearPending()
		return r.cancelled()
	}
}

// appendToolResult folds a tool result into history as a tool message.
func (r *runner) appendToolResult(result proto.ToolResult) {
	content, err := json.Marshal(result)
	if err != nil {
		content = []byte(fmt.Sprintf(`{"call_id":%q,"success":false}`, result.CallID))
	}
	r.turn.Append(proto.Message{
		Role:    proto.RoleTool,
		CallID:  result.CallID,
		Content: string(content),
	})
}

// persist writes the turn checkpoint, retried under the shared resilience
// policy against the "checkpoint" endpoint.
func (o *Orchestrator) persist(ctx context.Context, turn *proto.Turn, response string, rounds int) error {
	rec := &checkpoint.Record{
		TurnID:      turn.TurnID,
		UserID:      turn.UserID,
		SessionID:   turn.SessionID,
		Input:       turn.Input,
		Response:    response,
		History:     turn.History,
		Status:      proto.StateDone,
		Rounds:      rounds,
		CreatedAt:   turn.CreatedAt,
		CompletedAt: time.Now().UTC(),
	}

	if o.deps.Invoker == nil {
		return o.deps.Checkpoints.Save(ctx, rec)
	}
	return resilience.DoErr(ctx, o.deps.Invoker, "checkpoint", func(ctx context.Context) error {
		return o.deps.Checkpoints.Save(ctx, rec)
	})
}

// transition moves the turn to next, erroring on a move the lifecycle table
// forbids, and emits the status event.
func (r *runner) transition(next proto.State) error {
	if !proto.ValidTransitions.CanTransition(r.turn.Status, next) {
		return faults.Newf(faults.KindTerminal, "illegal state transition %s -> %s", r.turn.Status, next)
	}
	r.setState(next)
	r.emitStatus(next, "")
	return nil
}

func (r *runner) transitionOrFail(next proto.State) error {
	if err := r.transition(next); err != nil {
		return r.fail(err)
	}
	return nil
}

func (r *runner) setState(next proto.State) {
	r.turn.Status = next
}

// fail moves the turn to FAILED and emits the terminal error event. No
// checkpoint is written for failed turns.
func (r *runner) fail(err error) error {
	r.setState(proto.StateFailed)
	kind := faults.KindOf(err)
	r.emit(proto.ErrorEvent(r.turn.TurnID, kind.Code(), err.Error()))
	r.o.logger.Error("Turn %s failed: %v", r.turn.TurnID, err)
	return err
}

// cancelled moves the turn to CANCELLED. Outstanding reservations were
// released by the dispatcher's scoped acquisition; nothing is checkpointed.
func (r *runner) cancelled() error {
	r.setState(proto.StateCancelled)
	r.emit(proto.ErrorEvent(r.turn.TurnID, "cancelled", "turn cancelled before completion"))
	r.o.logger.Info("Turn %s cancelled after %d rounds", r.turn.TurnID, r.rounds)
	return context.Canceled
}

func (r *runner) emitStatus(phase proto.State, detail string) {
	r.emit(proto.StatusEvent(r.turn.TurnID, phase, detail))
}

// emit journals the event and hands it to the transport. The events channel
// is bounded; a slow consumer applies backpressure here rather than growing
// an unbounded buffer.
func (r *runner) emit(event proto.Event) {
	if j := r.o.deps.Journal; j != nil {
		if err := j.Append(event); err != nil {
			r.o.logger.Warn("Failed to journal %s event for turn %s: %v", event.Type, r.turn.TurnID, err)
		}
	}
	r.events <- event
}

// toCompletionMessage converts a history entry into the completion wire
// shape. Tool messages become tool results correlated by call ID.
func toCompletionMessage(msg proto.Message) llm.Message {
	switch msg.Role {
	case proto.RoleAssistant:
		out := llm.Message{Role: llm.RoleAssistant, Content: msg.Content}
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:         call.CallID,
				Name:       call.Capability,
				Parameters: call.Arguments,
			})
		}
		return out
	case proto.RoleTool:
		return llm.Message{
			Role:        llm.RoleUser,
			ToolResults: []llm.ToolResult{{ToolCallID: msg.CallID, Content: msg.Content}},
		}
	default:
		return llm.Message{Role: llm.RoleUser, Content: msg.Content}
	}
}
