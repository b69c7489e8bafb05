package agentloop

import (
	"context"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ParamType is the declared JSON type of a tool parameter. The empty type
// accepts any value unchanged.
type ParamType string

const (
	ParamAny     ParamType = ""
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// ParamSpec declares one tool parameter.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Items       ParamType // element type when Type is ParamArray
	Description string
	Required    bool
	Default     any
	Enum        []string
}

// ToolSpec is the declared signature of a tool: its name, description and
// ordered parameter list.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ParamSpec
}

// Param looks up a parameter by name.
func (s ToolSpec) Param(name string) (ParamSpec, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// JSONSchema renders the parameter list as an object schema for providers
// that accept native tool declarations.
func (s ToolSpec) JSONSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	required := []string{}
	for _, p := range s.Params {
		ps := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
			Default:     p.Default,
		}
		if p.Type == ParamArray && p.Items != ParamAny {
			ps.Items = &jsonschema.Schema{Type: string(p.Items)}
		}
		for _, e := range p.Enum {
			ps.Enum = append(ps.Enum, e)
		}
		props.Set(p.Name, ps)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// ToolExecutor runs a tool with already coerced arguments. It may return an
// Observation, any other value (converted by ToObservation), or an error.
type ToolExecutor func(ctx context.Context, args *Arguments, env ExecutionEnvironment) (any, error)

// RegisteredTool pairs a tool spec with its executor.
type RegisteredTool struct {
	Spec     ToolSpec
	Executor ToolExecutor
}

// Invoke checks required parameters and runs the executor.
func (t *RegisteredTool) Invoke(ctx context.Context, args *Arguments, env ExecutionEnvironment) (any, error) {
	for _, p := range t.Spec.Params {
		if !p.Required {
			continue
		}
		if _, ok := args.Get(p.Name); !ok {
			return nil, errors.Errorf("%s() missing required argument: '%s'", t.Spec.Name, p.Name)
		}
	}
	if t.Executor == nil {
		return nil, errors.Errorf("tool %s has no executor", t.Spec.Name)
	}
	return t.Executor(ctx, args, env)
}

// ToolRegistry maps tool names to their implementations, in registration
// order. Populate it before any session starts using it.
type ToolRegistry struct {
	tools *orderedmap.OrderedMap[string, *RegisteredTool]
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: orderedmap.New[string, *RegisteredTool](),
	}
}

// Register adds a tool. A tool registered under an existing name replaces
// the earlier one in place and a warning is logged.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools.Get(tool.Spec.Name); exists {
		log.Warn().Str("tool", tool.Spec.Name).Msg("tool registered twice, replacing earlier registration")
	}
	r.tools.Set(tool.Spec.Name, &tool)
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools.Delete(name)
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, _ := r.tools.Get(name)
	return t
}

// Specs returns the tool catalogue in registration order.
func (r *ToolRegistry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		specs = append(specs, pair.Value.Spec)
	}
	return specs
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools.Len()
}

// Clone returns a copy of the registry that can be extended independently.
func (r *ToolRegistry) Clone() *ToolRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewToolRegistry()
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		cloned := *pair.Value
		clone.tools.Set(pair.Key, &cloned)
	}
	return clone
}
