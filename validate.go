package reagent

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// JSONSchema renders the tool input schema as a plain JSON schema document.
// The same rendering is reused by the model adapters, so what the model
// sees and what the arguments are validated against never drift apart.
func (s *ToolSpec) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Parameters))
	for name, param := range s.Parameters {
		properties[name] = param.JSONSchema()
	}

	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	return doc
}

func (p *Parameter) JSONSchema() map[string]any {
	doc := map[string]any{
		"type": string(p.Type),
	}
	if p.Title != "" {
		doc["title"] = p.Title
	}
	if p.Description != "" {
		doc["description"] = p.Description
	}

	if len(p.Enum) > 0 {
		enum := make([]any, len(p.Enum))
		for i, v := range p.Enum {
			enum[i] = v
		}
		doc["enum"] = enum
	}

	if p.Properties != nil {
		properties := make(map[string]any, len(p.Properties))
		for name, prop := range p.Properties {
			properties[name] = prop.JSONSchema()
		}
		doc["properties"] = properties
		if len(p.Required) > 0 {
			doc["required"] = p.Required
		}
	}

	if p.Items != nil {
		doc["items"] = p.Items.JSONSchema()
	}

	switch p.Type {
	case TypeNumber, TypeInteger:
		if p.Minimum != nil {
			doc["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			doc["maximum"] = *p.Maximum
		}

	case TypeString:
		if p.MinLength != nil {
			doc["minLength"] = *p.MinLength
		}
		if p.MaxLength != nil {
			doc["maxLength"] = *p.MaxLength
		}
		if p.Pattern != "" {
			doc["pattern"] = p.Pattern
		}

	case TypeArray:
		if p.MinItems != nil {
			doc["minItems"] = *p.MinItems
		}
		if p.MaxItems != nil {
			doc["maxItems"] = *p.MaxItems
		}
	}

	if p.Default != nil {
		doc["default"] = p.Default
	}

	return doc
}

// compileSchema compiles a JSON schema document for runtime validation.
func compileSchema(doc map[string]any) (*jsonschema.Schema, error) {
	// Round-trip so nested values are the decoded-JSON shapes the
	// validator expects.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal schema document")
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal schema document")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", decoded); err != nil {
		return nil, goerr.Wrap(err, "failed to add schema resource")
	}

	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compile schema")
	}

	return schema, nil
}

// validateArgs coerces and validates model-supplied arguments against the
// compiled schema of a tool. Missing optional parameters with a declared
// default are filled in before validation.
func validateArgs(schema *jsonschema.Schema, spec *ToolSpec, args map[string]any) (map[string]any, error) {
	// Work on a copy: the caller's map is still referenced by the
	// assistant message in the transcript, which must not change.
	merged := make(map[string]any, len(args)+len(spec.Parameters))
	for name, value := range args {
		merged[name] = value
	}

	for name, param := range spec.Parameters {
		if _, ok := merged[name]; !ok && param.Default != nil {
			merged[name] = param.Default
		}
	}
	args = merged

	// Model adapters hand over decoded JSON, but tool sets and tests may
	// pass native Go values. Normalize through JSON before validating.
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, goerr.Wrap(ErrToolArgument, "arguments are not JSON encodable", goerr.V("tool", spec.Name))
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, goerr.Wrap(ErrToolArgument, "arguments are not a JSON object", goerr.V("tool", spec.Name))
	}

	if err := schema.Validate(decoded); err != nil {
		return nil, goerr.Wrap(ErrToolArgument, "argument validation failed",
			goerr.V("tool", spec.Name),
			goerr.V("arguments", decoded),
			goerr.V("cause", err.Error()),
		)
	}

	return decoded, nil
}
