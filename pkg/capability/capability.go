// Package capability defines the handler interface and registry for named
// capabilities the planning model may invoke.
package capability

import (
	"context"
	"fmt"

	"conductor/pkg/proto"
)

// Property describes one parameter in a capability's input schema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// InputSchema is the JSON-schema shape advertised to the model.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Definition describes a capability: its schema for the model plus the
// policy knobs the dispatcher needs.
type Definition struct {
	Name        string
	Description string
	InputSchema InputSchema

	// TTLClass selects the cache TTL policy for results; empty disables
	// caching for this capability.
	TTLClass string
	// QuantityParam names the integer argument that scales admission cost
	// (e.g. "count"); empty means every call costs one unit.
	QuantityParam string
	// ModelBacked marks handlers that call the inference model themselves.
	// Dispatch skips capability-level retry for them: the model client's own
	// middleware already retries, and stacking the two policies multiplies
	// the attempt count.
	ModelBacked bool
}

// Context carries the caller identity into a handler invocation.
type Context struct {
	UserID    string
	SessionID string
	TurnID    string
}

// Handler executes one or more capability actions. Implementations must be
// safe for concurrent use: a single handler instance serves all turns.
type Handler interface {
	Execute(ctx context.Context, action string, params map[string]any, cc Context) (map[string]any, error)
}

// InputNeeded is returned by a handler (as an error) when it cannot
// proceed without human disambiguation. The orchestrator suspends the
// turn and forwards the prompt to the caller.
type InputNeeded struct {
	Kind    proto.InputKind
	Prompt  string
	Options []string
}

func (e *InputNeeded) Error() string {
	return fmt.Sprintf("input needed (%s): %s", e.Kind, e.Prompt)
}

// NeedsInput wraps a disambiguation request in the error channel.
func NeedsInput(kind proto.InputKind, prompt string, options ...string) error {
	return &InputNeeded{Kind: kind, Prompt: prompt, Options: options}
}
