// Package registry keeps the tools graphs can call by name.
package registry

import (
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/warriorguo/graphflow/types"
)

var (
	_ types.ToolCaller = &Registry{}
)

// Registry stores tools by name. Registering a name again replaces the
// previous tool.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*types.Tool
}

func New() *Registry {
	return &Registry{tools: make(map[string]*types.Tool)}
}

func (r *Registry) Register(name, description string, fn types.ToolFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = &types.Tool{Name: name, Description: description, Fn: fn}
}

func (r *Registry) Get(name string) (*types.Tool, error) {
	r.mu.RLock()
	tool, exists := r.tools[name]
	r.mu.RUnlock()
	if !exists || tool.Fn == nil {
		return nil, errors.Annotatef(types.ErrToolNotFound, "tool %q", name)
	}
	return tool, nil
}

// Call runs the named tool against state. Errors returned by the tool are
// passed through untouched.
func (r *Registry) Call(name string, state *types.WorkflowState) (any, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return tool.Fn(state)
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []types.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]types.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, *tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}
