package gemini

import (
	"encoding/json"

	"cloud.google.com/go/vertexai/genai"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reagent"
)

// convertMessages converts a transcript into Gemini contents plus the
// system instruction text. Gemini correlates a function response with
// its call by function name, not by call id, so tool results resolve
// the name from the assistant message that requested them.
func convertMessages(messages []reagent.Message) (string, []*genai.Content, error) {
	var system string
	var contents []*genai.Content
	callNames := map[string]string{}

	for _, msg := range messages {
		switch msg.Role {
		case reagent.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += msg.Content

		case reagent.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})

		case reagent.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				callNames[call.ID] = call.Name
				parts = append(parts, genai.FunctionCall{
					Name: call.Name,
					Args: call.Arguments,
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})

		case reagent.RoleTool:
			name, ok := callNames[msg.ToolCallID]
			if !ok {
				return "", nil, goerr.Wrap(reagent.ErrModelProtocol, "tool result without a matching call",
					goerr.V("tool_call_id", msg.ToolCallID))
			}

			response := map[string]any{}
			if msg.Error != "" {
				response["error"] = msg.Error
			} else if msg.Content != "" {
				if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
					return "", nil, goerr.Wrap(reagent.ErrModelProtocol, "tool result is not a JSON object",
						goerr.V("tool_call_id", msg.ToolCallID))
				}
			}
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     name,
					Response: response,
				}},
			})
		}
	}

	return system, contents, nil
}

func convertTool(spec *reagent.ToolSpec) *genai.FunctionDeclaration {
	parameters := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema),
		Required:   spec.Required,
	}

	for name, param := range spec.Parameters {
		parameters.Properties[name] = convertParameterToSchema(param)
	}

	return &genai.FunctionDeclaration{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  parameters,
	}
}

func convertParameterToSchema(param *reagent.Parameter) *genai.Schema {
	schema := &genai.Schema{
		Type:        getGenaiType(param.Type),
		Title:       param.Title,
		Description: param.Description,
	}

	if len(param.Enum) > 0 {
		schema.Enum = param.Enum
	}

	if param.Properties != nil {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range param.Properties {
			schema.Properties[name] = convertParameterToSchema(prop)
		}
		if len(param.Required) > 0 {
			schema.Required = param.Required
		}
	}

	if param.Items != nil {
		schema.Items = convertParameterToSchema(param.Items)
	}

	return schema
}

func getGenaiType(paramType reagent.ParameterType) genai.Type {
	switch paramType {
	case reagent.TypeString:
		return genai.TypeString
	case reagent.TypeNumber:
		return genai.TypeNumber
	case reagent.TypeInteger:
		return genai.TypeInteger
	case reagent.TypeBoolean:
		return genai.TypeBoolean
	case reagent.TypeArray:
		return genai.TypeArray
	case reagent.TypeObject:
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
