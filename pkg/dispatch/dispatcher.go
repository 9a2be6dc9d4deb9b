// Package dispatch routes tool-call requests to capability handlers,
// wrapping every invocation in the fixed order: reserve budget, check
// cache, resilient invoke, commit or release, populate cache.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"conductor/pkg/admission"
	"conductor/pkg/cache"
	"conductor/pkg/capability"
	"conductor/pkg/config"
	"conductor/pkg/faults"
	"conductor/pkg/logx"
	"conductor/pkg/proto"
	"conductor/pkg/resilience"
)

// Observer receives dispatch pipeline measurements. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveDispatch(capability string, success bool)
	ObserveCacheLookup(capability string, hit bool)
	ObserveReservation(operation string, reserved float64)
	ObserveCommit(operation string, committed float64)
}

// Dispatcher is the integration point between the orchestrator and the
// capability handlers. One instance is shared across all turns.
type Dispatcher struct {
	registry  *capability.Registry
	admission *admission.Controller
	cache     *cache.Cache
	invoker   *resilience.Invoker
	cacheCfg  config.CacheConfig
	observer  Observer
	logger    *logx.Logger
}

// New creates a dispatcher over a sealed registry. observer may be nil.
func New(registry *capability.Registry, ctrl *admission.Controller, results *cache.Cache, invoker *resilience.Invoker, cacheCfg config.CacheConfig, observer Observer) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		admission: ctrl,
		cache:     results,
		invoker:   invoker,
		cacheCfg:  cacheCfg,
		observer:  observer,
		logger:    logx.NewLogger("dispatch"),
	}
}

// Dispatch executes one tool-call request and returns its result. All
// handler failures fold into the result's error field; the returned error
// is non-nil only when the handler requests human input (the turn must
// suspend) or the context is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, req proto.ToolCallRequest, cc capability.Context) (proto.ToolResult, error) {
	handler, def, ok := d.registry.Get(req.Capability)
	if !ok {
		d.logger.Warn("unknown capability %q requested in turn %s", req.Capability, cc.TurnID)
		d.observeDispatch(req.Capability, false)
		return failedResult(req.CallID, faults.Newf(faults.KindCapabilityNotFound, "capability %q not registered", req.Capability)), nil
	}

	quantity := quantityFor(&def, req.Arguments)

	reservation, err := d.admission.Reserve(cc.UserID, req.Capability, quantity)
	if err != nil {
		d.observeDispatch(req.Capability, false)
		return failedResult(req.CallID, err), nil
	}
	if d.observer != nil {
		d.observer.ObserveReservation(req.Capability, reservation.EstimatedCost)
	}

	committed := false
	defer func() {
		if !committed {
			if relErr := d.admission.Release(reservation); relErr != nil {
				d.logger.Error("release of %s failed: %v", reservation.OperationID, relErr)
			}
		}
	}()

	execute := func(ctx context.Context) (json.RawMessage, error) {
		data, execErr := handler.Execute(ctx, req.Capability, req.Arguments, cc)
		if execErr != nil {
			return nil, execErr
		}

		raw, marshalErr := json.Marshal(data)
		if marshalErr != nil {
			return nil, faults.Wrap(faults.KindTerminal, marshalErr, fmt.Sprintf("capability %s returned unencodable result", req.Capability))
		}

		return raw, nil
	}

	compute := func(ctx context.Context) (json.RawMessage, error) {
		if def.ModelBacked {
			// The model client retries its own transient failures.
			return execute(ctx)
		}
		return resilience.Do(ctx, d.invoker, "capability:"+req.Capability, execute)
	}

	var (
		value json.RawMessage
		hit   bool
	)
	if ttl := d.cacheCfg.TTLFor(def.TTLClass); def.TTLClass != "" && ttl > 0 {
		key := cache.Key(req.Capability, req.Arguments)
		value, hit, err = d.cache.GetOrCompute(ctx, key, ttl, compute)
		if err == nil && d.observer != nil {
			d.observer.ObserveCacheLookup(req.Capability, hit)
		}
	} else {
		value, err = compute(ctx)
	}

	if err != nil {
		var input *capability.InputNeeded
		if errors.As(err, &input) {
			// Suspension, not failure: the reservation is released and the
			// human's answer becomes this call's result.
			return proto.ToolResult{CallID: req.CallID}, err
		}
		if ctx.Err() != nil {
			return proto.ToolResult{CallID: req.CallID}, ctx.Err()
		}

		d.observeDispatch(req.Capability, false)
		return failedResult(req.CallID, err), nil
	}

	// A cache hit did no billable work; refund the hold.
	if !hit {
		if err := d.admission.Commit(reservation); err != nil {
			d.logger.Error("commit of %s failed: %v", reservation.OperationID, err)
		}
		committed = true
		if d.observer != nil {
			d.observer.ObserveCommit(req.Capability, reservation.EstimatedCost)
		}
	}

	d.observeDispatch(req.Capability, true)

	return proto.ToolResult{
		CallID:  req.CallID,
		Success: true,
		Data:    value,
	}, nil
}

func (d *Dispatcher) observeDispatch(name string, success bool) {
	if d.observer != nil {
		d.observer.ObserveDispatch(name, success)
	}
}

func failedResult(callID string, err error) proto.ToolResult {
	return proto.ToolResult{
		CallID: callID,
		Error: &proto.ToolError{
			Kind:    faults.KindOf(err).Code(),
			Message: err.Error(),
		},
	}
}

func quantityFor(def *capability.Definition, args map[string]any) int {
	if def.QuantityParam == "" {
		return 1
	}

	switch v := args[def.QuantityParam].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		// JSON numbers decode as float64.
		if v > 0 {
			return int(v)
		}
	}

	return 1
}
