package openai

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reagent"
	"github.com/sashabaranov/go-openai"
)

func convertTool(spec *reagent.ToolSpec) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.JSONSchema(),
		},
	}
}

func convertMessages(messages []reagent.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case reagent.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})

		case reagent.RoleUser:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})

		case reagent.RoleAssistant:
			out := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				arguments, err := marshalArguments(call.Arguments)
				if err != nil {
					return nil, err
				}
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: arguments,
					},
				})
			}
			result = append(result, out)

		case reagent.RoleTool:
			content := msg.Content
			if msg.Error != "" {
				raw, err := json.Marshal(map[string]any{"error": msg.Error})
				if err != nil {
					return nil, goerr.Wrap(err, "failed to marshal tool error")
				}
				content = string(raw)
			}
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}

	return result, nil
}

func marshalArguments(args map[string]any) (string, error) {
	if args == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal tool call arguments")
	}
	return string(raw), nil
}
