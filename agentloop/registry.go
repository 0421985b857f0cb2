package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ToolFunc runs a tool. goal is the query the agent is working on.
type ToolFunc func(ctx context.Context, input, goal string) (string, error)

// Tool is a named text-in/text-out capability.
type Tool struct {
	Name        string
	Description string
	// Serial tools run one at a time, in order, before the parallel batch.
	Serial bool
	Run    ToolFunc
}

// ToolRegistry is the fixed set of tools an agent may call. It is built
// once and never changes, so it is safe to share between agents.
type ToolRegistry struct {
	tools map[string]Tool
	order []string
}

// NewToolRegistry validates tools and indexes them by name.
func NewToolRegistry(tools ...Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		switch {
		case t.Name == "":
			return nil, errors.New("tool with empty name")
		case strings.ContainsFunc(t.Name, unicode.IsSpace):
			return nil, fmt.Errorf("tool name %q contains whitespace", t.Name)
		case t.Run == nil:
			return nil, fmt.Errorf("tool %s has no Run function", t.Name)
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("tool %s registered twice", t.Name)
		}
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// MustToolRegistry is NewToolRegistry that panics on error.
func MustToolRegistry(tools ...Tool) *ToolRegistry {
	r, err := NewToolRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the tool called name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Tools returns the tools in registration order.
func (r *ToolRegistry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of tools.
func (r *ToolRegistry) Len() int { return len(r.order) }

// Descriptions renders one "name: description" line per tool.
func (r *ToolRegistry) Descriptions() string {
	lines := make([]string, 0, len(r.order))
	for _, name := range r.order {
		lines = append(lines, name+": "+r.tools[name].Description)
	}
	return strings.Join(lines, "\n")
}
