package funcs

import "sort"

// Registry is the immutable lookup table from action name to executor.
// Built once at startup; a miss is an expected condition, not an error,
// since assistants can be configured with actions this build does not ship.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry builds a registry from the given executors, keyed by name.
// Duplicate names panic: that is always a wiring bug.
func NewRegistry(executors ...Executor) *Registry {
	m := make(map[string]Executor, len(executors))
	for _, e := range executors {
		if e == nil {
			panic("funcs: nil executor")
		}
		if _, dup := m[e.Name()]; dup {
			panic("funcs: duplicate executor name " + e.Name())
		}
		m[e.Name()] = e
	}
	return &Registry{executors: m}
}

// Lookup returns the executor for an action name.
func (r *Registry) Lookup(name string) (Executor, bool) {
	e, ok := r.executors[name]
	return e, ok
}

// Names lists the registered action names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.executors))
	for name := range r.executors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
