package claude

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reagent"
)

func convertTool(spec *reagent.ToolSpec) anthropic.ToolUnionParam {
	doc := spec.JSONSchema()

	properties, _ := doc["properties"].(map[string]any)

	return anthropic.ToolUnionParamOfTool(
		anthropic.ToolInputSchemaParam{
			Properties: properties,
		},
		spec.Name,
	)
}

// convertMessages converts a transcript into Claude wire messages plus
// the system text. Tool results become tool_result blocks inside a user
// message, assistant tool calls become tool_use blocks.
func convertMessages(messages []reagent.Message) (string, []anthropic.MessageParam, error) {
	var system string
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case reagent.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += msg.Content

		case reagent.RoleUser:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))

		case reagent.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				content = append(content, anthropic.ContentBlockParamUnion{
					OfRequestToolUseBlock: &anthropic.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Name,
						Input: call.Arguments,
						Type:  "tool_use",
					},
				})
			}
			if len(content) == 0 {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		case reagent.RoleTool:
			body := msg.Content
			isError := false
			if msg.Error != "" {
				raw, err := json.Marshal(map[string]any{"error": msg.Error})
				if err != nil {
					return "", nil, goerr.Wrap(err, "failed to marshal tool error")
				}
				body = string(raw)
				isError = true
			}
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, body, isError),
			))

		default:
			return "", nil, goerr.Wrap(reagent.ErrModelProtocol, "unsupported message role",
				goerr.V("role", msg.Role))
		}
	}

	return system, result, nil
}
