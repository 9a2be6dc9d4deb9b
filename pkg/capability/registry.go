package capability

import (
	"fmt"
	"sort"
	"sync"
)

type descriptor struct {
	def     Definition
	handler Handler
}

// Registry maps capability names to handlers. It is built once at process
// start, sealed, and injected into the dispatcher; registration after
// sealing panics.
type Registry struct {
	mu     sync.RWMutex
	sealed bool
	caps   map[string]descriptor
}

// NewRegistry creates an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]descriptor)}
}

// Register binds a handler to def.Name. Duplicate names are an error;
// registering on a sealed registry panics, since it indicates wiring code
// running after startup.
func (r *Registry) Register(def Definition, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		panic(fmt.Sprintf("capability registry sealed - cannot register %q", def.Name))
	}
	if def.Name == "" {
		return fmt.Errorf("capability name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler for %q cannot be nil", def.Name)
	}
	if _, exists := r.caps[def.Name]; exists {
		return fmt.Errorf("capability %q already registered", def.Name)
	}

	r.caps[def.Name] = descriptor{def: def, handler: handler}

	return nil
}

// Seal freezes the registry. Called once wiring is complete.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
}

// Get resolves a capability by name.
func (r *Registry) Get(name string) (Handler, Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.caps[name]

	return desc.handler, desc.def, ok
}

// Definitions returns all registered definitions sorted by name, for
// advertising to the model.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.caps))
	for _, desc := range r.caps {
		defs = append(defs, desc.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return defs
}

// Names returns the registered capability names sorted alphabetically.
func (r *Registry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}

	return names
}
