package tools

import (
	"fmt"
	"log/slog"
)

// Registry holds the gateway's tool set, built once at startup from the
// built-in tools plus any scanned custom tool files. Name collisions
// (with a built-in, or between two custom entries) are skipped with a
// logged diagnostic — never fatal, per spec.md §4.5.
type Registry struct {
	tools map[string]Definition
	order []string
}

// NewRegistry builds a Registry from builtins followed by custom, in that
// order, applying the skip-on-collision rule.
func NewRegistry(builtins []Definition, custom []Definition) *Registry {
	r := &Registry{tools: make(map[string]Definition)}
	for _, t := range builtins {
		r.register(t, true)
	}
	for _, t := range custom {
		r.register(t, false)
	}
	return r
}

func (r *Registry) register(t Definition, isBuiltin bool) {
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		kind := "custom tool"
		if isBuiltin {
			kind = "built-in tool"
		}
		slog.Warn("tools.registry.collision_skipped", "name", name, "kind", kind)
		return
	}
	r.tools[name] = t
	r.order = append(r.order, name)
}

// Lookup returns the Definition for name, or nil.
func (r *Registry) Lookup(name string) Definition {
	return r.tools[name]
}

// Names returns every registered tool name, in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Describe returns human-readable name/description pairs, used to build the
// text-mode system prompt listing available tools.
func (r *Registry) Describe() string {
	s := ""
	for _, name := range r.order {
		s += fmt.Sprintf("- %s: %s\n", name, r.tools[name].Description())
	}
	return s
}
