package tools

import "context"

// Handler executes a single tool call.
type Handler func(ctx context.Context, toolCall ToolCall) (*ToolCallResult, error)

// Registration binds a tool definition to its handler. Reviewable
// marks tools whose output should go through the search-result review
// filter before re-entering the model context.
type Registration struct {
	Tool       Tool
	Handler    Handler
	Reviewable bool
}

// Registry is a fixed name -> executable mapping built once at
// startup and shared read-only across requests.
type Registry struct {
	order  []string
	byName map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Registration),
	}
}

// Register adds a tool registration. Registering the same name twice
// replaces the handler but keeps the original position.
func (r *Registry) Register(reg Registration) {
	name := reg.Tool.Function.Name
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = reg
}

// Lookup resolves a tool name to its registration.
func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.byName[name]
	return reg, ok
}

// Tools returns the tool definitions in registration order, for
// binding to the model.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].Tool)
	}
	return out
}
