package claude_test

import (
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/reagent"
	"github.com/m-mizutani/reagent/llm/claude"
)

func TestConvertTool(t *testing.T) {
	spec := &reagent.ToolSpec{
		Name:        "order_tool",
		Description: "A tool with nested parameters",
		Parameters: map[string]*reagent.Parameter{
			"user": {
				Type: reagent.TypeObject,
				Properties: map[string]*reagent.Parameter{
					"name": {Type: reagent.TypeString, Description: "User's name"},
				},
				Required: []string{"name"},
			},
			"items": {
				Type: reagent.TypeArray,
				Items: &reagent.Parameter{
					Type: reagent.TypeObject,
					Properties: map[string]*reagent.Parameter{
						"quantity": {Type: reagent.TypeNumber},
					},
				},
			},
		},
	}

	claudeTool := claude.ConvertTool(spec)
	gt.Equal(t, claudeTool.OfTool.Name, "order_tool")

	properties := gt.Cast[map[string]any](t, claudeTool.OfTool.InputSchema.Properties)

	user := gt.Cast[map[string]any](t, properties["user"])
	gt.Equal(t, user["type"], "object")
	userRequired := gt.Cast[[]string](t, user["required"])
	gt.Equal(t, userRequired, []string{"name"})

	userProps := gt.Cast[map[string]any](t, user["properties"])
	name := gt.Cast[map[string]any](t, userProps["name"])
	gt.Equal(t, name["type"], "string")
	gt.Equal(t, name["description"], "User's name")

	items := gt.Cast[map[string]any](t, properties["items"])
	gt.Equal(t, items["type"], "array")
	itemSchema := gt.Cast[map[string]any](t, items["items"])
	itemProps := gt.Cast[map[string]any](t, itemSchema["properties"])
	quantity := gt.Cast[map[string]any](t, itemProps["quantity"])
	gt.Equal(t, quantity["type"], "number")
}

func TestConvertMessages(t *testing.T) {
	t.Run("system messages become system text", func(t *testing.T) {
		system, messages, err := claude.ConvertMessages([]reagent.Message{
			reagent.NewSystemMessage("be brief"),
			reagent.NewSystemMessage("be polite"),
			reagent.NewUserMessage("hello"),
		})
		gt.NoError(t, err)
		gt.Equal(t, system, "be brief\nbe polite")
		gt.Equal(t, len(messages), 1)
		gt.Equal(t, messages[0], anthropic.NewUserMessage(anthropic.NewTextBlock("hello")))
	})

	t.Run("assistant tool calls become tool_use blocks", func(t *testing.T) {
		_, messages, err := claude.ConvertMessages([]reagent.Message{
			reagent.NewToolCallMessage("thinking", []reagent.ToolCall{
				{ID: "call-1", Name: "get_weather", Arguments: map[string]any{"city": "Tokyo"}},
			}),
		})
		gt.NoError(t, err)
		gt.Equal(t, len(messages), 1)
		gt.Equal(t, messages[0].Role, anthropic.MessageParamRoleAssistant)
		gt.Equal(t, len(messages[0].Content), 2)
		gt.Equal(t, messages[0].Content[0], anthropic.NewTextBlock("thinking"))

		block := messages[0].Content[1].OfRequestToolUseBlock
		gt.Equal(t, block.ID, "call-1")
		gt.Equal(t, block.Name, "get_weather")
	})

	t.Run("empty assistant message is skipped", func(t *testing.T) {
		_, messages, err := claude.ConvertMessages([]reagent.Message{
			reagent.NewUserMessage("hello"),
			reagent.NewAssistantMessage(""),
		})
		gt.NoError(t, err)
		gt.Equal(t, len(messages), 1)
	})

	t.Run("tool result becomes tool_result block", func(t *testing.T) {
		call := reagent.ToolCall{ID: "call-1", Name: "get_weather"}
		_, messages, err := claude.ConvertMessages([]reagent.Message{
			reagent.NewToolResultMessage(call, map[string]any{"temp": 20}),
		})
		gt.NoError(t, err)
		gt.Equal(t, len(messages), 1)
		gt.Equal(t, messages[0], anthropic.NewUserMessage(
			anthropic.NewToolResultBlock("call-1", `{"temp":20}`, false),
		))
	})

	t.Run("tool error becomes error tool_result", func(t *testing.T) {
		call := reagent.ToolCall{ID: "call-1", Name: "get_weather"}
		_, messages, err := claude.ConvertMessages([]reagent.Message{
			reagent.NewToolErrorMessage(call, errors.New("lookup failed")),
		})
		gt.NoError(t, err)
		gt.Equal(t, len(messages), 1)
		gt.Equal(t, messages[0], anthropic.NewUserMessage(
			anthropic.NewToolResultBlock("call-1", `{"error":"lookup failed"}`, true),
		))
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		_, _, err := claude.ConvertMessages([]reagent.Message{
			{Role: reagent.Role("oracle"), Content: "hmm"},
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrModelProtocol))
	})
}
