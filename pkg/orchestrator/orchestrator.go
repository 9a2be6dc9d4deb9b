// Package orchestrator drives one conversation turn through its lifecycle:
// planning against the model, bounded concurrent tool execution, optional
// suspension for human input, and a durable checkpoint on completion.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"conductor/pkg/capability"
	"conductor/pkg/checkpoint"
	"conductor/pkg/dispatch"
	"conductor/pkg/eventlog"
	"conductor/pkg/faults"
	"conductor/pkg/llm"
	"conductor/pkg/logx"
	"conductor/pkg/proto"
	"conductor/pkg/resilience"
)

const systemPrompt = "You are a marketing campaign assistant. Use the available tools to gather " +
	"data and produce creatives, then answer the user in plain language. Call tools only when " +
	"they help; answer directly when you already have what you need."

// partialResultNotice is the forced final answer when a turn burns through
// its planning round budget without converging.
const partialResultNotice = "I ran out of planning rounds before finishing. Here is what I have so far; the tool results above are partial."

// Observer receives turn-level measurements. All methods must be safe for
// concurrent use.
type Observer interface {
	ObserveTurn(state string, rounds int, duration time.Duration)
	ObserveSuspension()
}

// Deps are the collaborators an Orchestrator needs. Client, Registry,
// Dispatcher and Checkpoints are required.
type Deps struct {
	Client      llm.Client
	Registry    *capability.Registry
	Dispatcher  *dispatch.Dispatcher
	Checkpoints *checkpoint.Store
	Invoker     *resilience.Invoker

	MaxRounds  int
	ToolFanout int
	// SuspensionTimeout bounds AWAITING_INPUT; zero means wait forever.
	SuspensionTimeout time.Duration

	Observer Observer
	Journal  *eventlog.Writer
}

// Orchestrator runs turns. One instance serves all concurrent turns; per-turn
// state lives in the runner.
type Orchestrator struct {
	deps   Deps
	defs   []capability.Definition
	logger *logx.Logger
}

// New creates an orchestrator. The registry must be sealed before the first
// Run call.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Client == nil || deps.Registry == nil || deps.Dispatcher == nil || deps.Checkpoints == nil {
		return nil, fmt.Errorf("orchestrator requires client, registry, dispatcher and checkpoint store")
	}
	if deps.MaxRounds <= 0 {
		deps.MaxRounds = 10
	}
	if deps.ToolFanout <= 0 {
		deps.ToolFanout = 5
	}

	return &Orchestrator{
		deps:   deps,
		defs:   deps.Registry.Definitions(),
		logger: logx.NewLogger("orchestrator"),
	}, nil
}

// Run drives the turn to a terminal state, emitting stream events to events
// as it goes. It closes events and the handle's Done channel before
// returning. The returned error reports turn-fatal failures; tool-level
// failures are folded into history as data and do not fail the turn.
func (o *Orchestrator) Run(ctx context.Context, turn *proto.Turn, handle *Handle, events chan<- proto.Event) error {
	r := &runner{
		o:      o,
		turn:   turn,
		handle: handle,
		events: events,
		start:  time.Now(),
	}
	defer close(events)
	defer handle.finish()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-handle.cancelCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := r.run(ctx)

	if o.deps.Observer != nil {
		o.deps.Observer.ObserveTurn(string(turn.Status), r.rounds, time.Since(r.start))
	}

	return err
}

type runner struct {
	o      *Orchestrator
	turn   *proto.Turn
	handle *Handle
	events chan<- proto.Event
	rounds int
	start  time.Time

	// suspendedCallID is the tool call whose handler requested input; its
	// result is the user's answer once the turn resumes.
	suspendedCallID string
}

func (r *runner) run(ctx context.Context) error {
	o := r.o

	// RECEIVED: fold the inbound message into history.
	r.emitStatus(proto.StateReceived, "")
	r.turn.Append(proto.Message{Role: proto.RoleUser, Content: r.turn.Input})

	if err := r.transition(proto.StatePlanning); err != nil {
		return r.fail(err)
	}

	var final string
	for {
		if err := ctx.Err(); err != nil {
			return r.cancelled()
		}

		if r.rounds >= o.deps.MaxRounds {
			o.logger.Warn("Turn %s hit the %d-round budget, forcing a response", r.turn.TurnID, o.deps.MaxRounds)
			final = partialResultNotice
			break
		}
		r.rounds++
		r.emitStatus(proto.StatePlanning, fmt.Sprintf("round %d", r.rounds))

		resp, err := r.plan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return r.cancelled()
			}
			return r.fail(faults.Wrap(faults.KindOf(err), err, "planning step failed"))
		}

		if len(resp.ToolCalls) == 0 {
			final = resp.Content
			break
		}

		calls := toCallRequests(resp.ToolCalls)
		r.turn.Append(proto.Message{
			Role:      proto.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})

		if err := r.transition(proto.StateExecutingTools); err != nil {
			return r.fail(err)
		}
		suspended, err := r.executeBatch(ctx, calls)
		if err != nil {
			return r.cancelled()
		}

		if err := r.transition(proto.StatePlanning); err != nil {
			return r.fail(err)
		}

		if suspended != nil {
			if err := r.awaitInput(ctx, suspended); err != nil {
				return err
			}
		}
	}

	// RESPONDING: record and stream the final answer.
	if err := r.transition(proto.StateResponding); err != nil {
		return r.fail(err)
	}
	r.turn.Append(proto.Message{Role: proto.RoleAssistant, Content: final})
	r.emit(proto.TextEvent(r.turn.TurnID, final))

	// PERSISTING: checkpoint exactly once, retried under the shared policy.
	if err := r.transition(proto.StatePersisting); err != nil {
		return r.fail(err)
	}
	if err := ctx.Err(); err != nil {
		return r.cancelled()
	}
	if err := o.persist(ctx, r.turn, final, r.rounds); err != nil {
		return r.fail(faults.Wrap(faults.KindCheckpoint, err, "failed to checkpoint turn"))
	}

	r.setState(proto.StateDone)
	now := time.Now().UTC()
	r.turn.CompletedAt = &now
	r.emit(proto.DoneEvent(r.turn.TurnID))
	o.logger.Info("Turn %s done after %d rounds in %s", r.turn.TurnID, r.rounds, time.Since(r.start).Round(time.Millisecond))

	return nil
}

func toCallRequests(calls []llm.ToolCall) []proto.ToolCallRequest {
	out := make([]proto.ToolCallRequest, 0, len(calls))
	for _, c := range calls {
		id := c.ID
		if id == "" {
			id = proto.NewCallID()
		}
		out = append(out, proto.ToolCallRequest{
			CallID:     id,
			Capability: c.Name,
			Arguments:  c.Parameters,
		})
	}
	return out
}
