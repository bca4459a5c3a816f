package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// ToolFunc executes one tool call. It receives the call's raw JSON
// arguments and returns the output string to submit back to the backend.
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Registry maps tool names to handlers so adding a tool never touches the
// polling loop.
type Registry struct {
	tools map[string]ToolFunc
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolFunc)}
}

// Register installs a handler under the given tool name, replacing any
// previous handler with that name.
func (r *Registry) Register(name string, fn ToolFunc) {
	r.tools[name] = fn
}

// Lookup returns the handler for name, if any.
func (r *Registry) Lookup(name string) (ToolFunc, bool) {
	fn, ok := r.tools[name]
	return fn, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// errorPayload encodes a tool failure as a JSON error object so the run can
// still proceed; tool failures are contained here and never abort the turn.
func errorPayload(msg string) string {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, msg)
	}
	return string(b)
}
