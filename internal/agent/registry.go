package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"opsvision/internal/domain"
	"opsvision/internal/domain/ports/adapter"
)

var (
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrToolInvalid           = errors.New("tool name and executor are required")
)

// Executor runs one tool invocation.
type Executor interface {
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

func (f ExecutorFunc) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return f(ctx, args)
}

type entry struct {
	spec adapter.ToolSpec
	exec Executor
}

// Registry holds the tools an agent may call. It is not safe for
// registration after the agent starts running.
type Registry struct {
	tools map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

func (r *Registry) Register(spec adapter.ToolSpec, exec Executor) error {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" || exec == nil {
		return ErrToolInvalid
	}
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, spec.Name)
	}
	r.tools[spec.Name] = entry{spec: spec, exec: exec}
	return nil
}

// Specs returns tool declarations sorted by name.
func (r *Registry) Specs() []adapter.ToolSpec {
	out := make([]adapter.ToolSpec, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call validates required params and runs the named tool.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
	}
	for _, p := range e.spec.Params {
		if !p.Required {
			continue
		}
		if s, _ := args[p.Name].(string); strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w: %s requires %q", domain.ErrInvalidArgument, name, p.Name)
		}
	}
	return e.exec.Execute(ctx, args)
}
