package reagent

import (
	"context"
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// ToolSpec is the declared interface of a tool: its name, description and
// input parameter schema. Specs are presented to the model on every step
// and used to validate arguments before the handler runs.
type ToolSpec struct {
	// Name is the unique identifier of the tool across the registry.
	Name string

	// Description tells the model what the tool does.
	Description string

	// Parameters defines the input parameters by name.
	Parameters map[string]*Parameter

	// Required lists parameter names that must be present in a call.
	Required []string
}

// Validate validates the tool specification.
func (s *ToolSpec) Validate() error {
	eb := goerr.NewBuilder(goerr.V("tool", s.Name))
	if s.Name == "" {
		return eb.Wrap(ErrInvalidTool, "name is required")
	}

	for name, param := range s.Parameters {
		if err := param.Validate(); err != nil {
			return eb.Wrap(err, "invalid parameter", goerr.V("parameter", name))
		}
	}

	for _, req := range s.Required {
		if _, ok := s.Parameters[req]; !ok {
			return eb.Wrap(ErrInvalidTool, "required parameter not declared", goerr.V("parameter", req))
		}
	}

	return nil
}

// ParameterType is the JSON type of a tool parameter.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeBoolean ParameterType = "boolean"
	TypeArray   ParameterType = "array"
	TypeObject  ParameterType = "object"
)

// Parameter describes a single tool input parameter and its constraints.
type Parameter struct {
	// Title is an optional user-friendly name of the parameter.
	Title string

	// Type is required.
	Type ParameterType

	// Description explains purpose and expected format to the model.
	Description string

	// Required lists required field names when Type is TypeObject.
	Required []string

	// Enum restricts the value to a fixed set (string type only).
	Enum []string

	// Properties defines the fields of an object parameter.
	Properties map[string]*Parameter

	// Items defines the element schema of an array parameter.
	Items *Parameter

	// Number constraints.
	Minimum *float64
	Maximum *float64

	// String constraints.
	MinLength *int
	MaxLength *int
	Pattern   string

	// Array constraints.
	MinItems *int
	MaxItems *int

	// Default is used when an optional parameter is omitted.
	Default any
}

// Validate validates the parameter specification.
func (p *Parameter) Validate() error {
	eb := goerr.NewBuilder(goerr.V("type", p.Type))

	if p.Type == "" {
		return eb.Wrap(ErrInvalidParameter, "type is required")
	}

	if p.Type == TypeObject {
		if p.Properties == nil {
			return eb.Wrap(ErrInvalidParameter, "properties is required for object type")
		}
		for name, prop := range p.Properties {
			if err := prop.Validate(); err != nil {
				return eb.Wrap(err, "invalid property", goerr.V("property", name))
			}
		}
		for _, req := range p.Required {
			if _, ok := p.Properties[req]; !ok {
				return eb.Wrap(ErrInvalidParameter, "required field not found in properties", goerr.V("field", req))
			}
		}
	}

	if p.Type == TypeArray {
		if p.Items == nil {
			return eb.Wrap(ErrInvalidParameter, "items is required for array type")
		}
		if err := p.Items.Validate(); err != nil {
			return eb.Wrap(err, "invalid items")
		}
		if p.MinItems != nil && p.MaxItems != nil && *p.MinItems > *p.MaxItems {
			return eb.Wrap(ErrInvalidParameter, "minItems must be less than or equal to maxItems")
		}
	}

	if p.Type == TypeNumber || p.Type == TypeInteger {
		if p.Minimum != nil && p.Maximum != nil && *p.Minimum > *p.Maximum {
			return eb.Wrap(ErrInvalidParameter, "minimum must be less than or equal to maximum")
		}
	}

	if p.Type == TypeString {
		if p.MinLength != nil && p.MaxLength != nil && *p.MinLength > *p.MaxLength {
			return eb.Wrap(ErrInvalidParameter, "minLength must be less than or equal to maxLength")
		}
		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return eb.Wrap(ErrInvalidParameter, "invalid pattern", goerr.V("pattern", p.Pattern))
			}
		}
	}

	if len(p.Enum) > 0 && p.Type != TypeString {
		return eb.Wrap(ErrInvalidParameter, "enum is only valid for string type")
	}

	return nil
}

// Tool is a capability the model can invoke during a step.
//
// Run receives an EventWriter so a long-running tool can emit progress
// into the custom stream mode; the writer is always non-nil (a discard
// writer when nobody subscribed). An error returned by Run does not abort
// the loop: it becomes part of the transcript and is fed back to the
// model. Wrap ErrToolFatal to abort the run instead.
type Tool interface {
	Spec() *ToolSpec
	Run(ctx context.Context, w EventWriter, args map[string]any) (map[string]any, error)
}

// ToolSet groups tools that share a backend, such as one MCP server.
// Specs may require I/O (e.g. listing remote tools), hence the context.
type ToolSet interface {
	Specs(ctx context.Context) ([]*ToolSpec, error)
	Run(ctx context.Context, w EventWriter, name string, args map[string]any) (map[string]any, error)
}

type funcTool struct {
	spec *ToolSpec
	run  func(ctx context.Context, w EventWriter, args map[string]any) (map[string]any, error)
}

func (x *funcTool) Spec() *ToolSpec {
	return x.spec
}

func (x *funcTool) Run(ctx context.Context, w EventWriter, args map[string]any) (map[string]any, error) {
	return x.run(ctx, w, args)
}

// NewTool wraps a plain function into a Tool.
func NewTool(spec *ToolSpec, run func(ctx context.Context, w EventWriter, args map[string]any) (map[string]any, error)) Tool {
	return &funcTool{spec: spec, run: run}
}
