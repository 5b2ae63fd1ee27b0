package reagent

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

type registryEntry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds the tools available to one loop invocation, indexed by
// name. Registration validates the spec and compiles its argument schema
// up front, so a broken tool definition fails at startup rather than in
// the middle of a conversation. The registry is read-mostly: after setup
// it is only read, concurrently, by tool execution goroutines.
type Registry struct {
	entries map[string]*registryEntry
}

// NewRegistry creates a registry from tools and tool sets. Tool set
// members are expanded through setRunner so they share one backend
// connection. Name collisions fail with ErrDuplicateTool.
func NewRegistry(ctx context.Context, tools []Tool, toolSets []ToolSet) (*Registry, error) {
	r := &Registry{entries: map[string]*registryEntry{}}

	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}

	for _, toolSet := range toolSets {
		specs, err := toolSet.Specs(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get tool set specs")
		}
		for _, spec := range specs {
			if err := r.Register(&setRunner{set: toolSet, spec: spec}); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

// Register adds a tool. It fails with ErrDuplicateTool when the name is
// already taken and with ErrInvalidTool on a broken spec.
func (r *Registry) Register(tool Tool) error {
	spec := tool.Spec()
	if err := spec.Validate(); err != nil {
		return err
	}

	if _, ok := r.entries[spec.Name]; ok {
		return goerr.Wrap(ErrDuplicateTool, "tool name conflict", goerr.V("tool", spec.Name))
	}

	schema, err := compileSchema(spec.JSONSchema())
	if err != nil {
		return goerr.Wrap(ErrInvalidTool, "failed to compile argument schema", goerr.V("tool", spec.Name))
	}

	r.entries[spec.Name] = &registryEntry{tool: tool, schema: schema}
	return nil
}

// Specs returns the tool descriptors in deterministic name order.
func (r *Registry) Specs() []*ToolSpec {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]*ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.entries[name].tool.Spec())
	}
	return specs
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Invoke validates arguments against the tool's schema and runs the
// handler. Handler errors and panics are wrapped, never propagated raw:
// the loop turns them into transcript entries the model can react to.
func (r *Registry) Invoke(ctx context.Context, w EventWriter, name string, args map[string]any) (out map[string]any, err error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, goerr.Wrap(ErrToolNotFound, "unknown tool", goerr.V("tool", name))
	}

	coerced, err := validateArgs(e.schema, e.tool.Spec(), args)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = goerr.Wrap(ErrToolExecution, "tool handler panicked",
				goerr.V("tool", name), goerr.V("panic", rec))
		}
	}()

	result, err := e.tool.Run(ctx, w, coerced)
	if err != nil {
		if errors.Is(err, ErrToolFatal) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "tool failed to run", goerr.V("tool", name))
	}

	return sanitizeResult(result)
}

// sanitizeResult forces tool output into a generic JSON-compatible
// structure so provider adapters never see handler-specific types.
func sanitizeResult(result map[string]any) (map[string]any, error) {
	if result == nil {
		return nil, nil
	}

	marshaled, err := json.Marshal(result)
	if err != nil {
		return nil, goerr.Wrap(ErrToolExecution, "failed to marshal tool result")
	}
	var unmarshaled map[string]any
	if err := json.Unmarshal(marshaled, &unmarshaled); err != nil {
		return nil, goerr.Wrap(ErrToolExecution, "failed to unmarshal tool result")
	}
	return unmarshaled, nil
}

// setRunner exposes one member of a ToolSet as a standalone Tool.
type setRunner struct {
	set  ToolSet
	spec *ToolSpec
}

func (x *setRunner) Spec() *ToolSpec {
	return x.spec
}

func (x *setRunner) Run(ctx context.Context, w EventWriter, args map[string]any) (map[string]any, error) {
	return x.set.Run(ctx, w, x.spec.Name, args)
}
