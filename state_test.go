package reagent_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/reagent"
)

var errTest = errors.New("test failure")

func TestState(t *testing.T) {
	t.Run("append preserves order", func(t *testing.T) {
		state := reagent.NewState()
		state.Append(reagent.NewUserMessage("first"))
		state.Append(reagent.NewAssistantMessage("second"))

		gt.Equal(t, len(state.Messages), 2)
		gt.Equal(t, state.Messages[0].Content, "first")
		gt.Equal(t, state.LastMessage().Content, "second")
	})

	t.Run("empty state has no last message", func(t *testing.T) {
		state := reagent.NewState()
		gt.Nil(t, state.LastMessage())
	})

	t.Run("custom fields", func(t *testing.T) {
		state := reagent.NewState()
		state.SetField("user_name", "bob")

		v, ok := state.Field("user_name")
		gt.True(t, ok)
		gt.Equal(t, v, "bob")

		_, ok = state.Field("missing")
		gt.False(t, ok)
	})

	t.Run("clone is independent", func(t *testing.T) {
		state := reagent.NewState()
		state.Append(reagent.NewUserMessage("hello"))
		state.SetField("k", "v")

		cloned := state.Clone()
		cloned.Append(reagent.NewAssistantMessage("world"))
		cloned.SetField("k", "changed")

		gt.Equal(t, len(state.Messages), 1)
		gt.Equal(t, len(cloned.Messages), 2)

		v, _ := state.Field("k")
		gt.Equal(t, v, "v")
	})

	t.Run("nil clone", func(t *testing.T) {
		var state *reagent.State
		gt.Nil(t, state.Clone())
	})
}

func TestMessage(t *testing.T) {
	t.Run("tool result carries JSON output", func(t *testing.T) {
		call := reagent.ToolCall{ID: "call-1", Name: "get_weather"}
		msg := reagent.NewToolResultMessage(call, map[string]any{"forecast": "sunny"})

		gt.Equal(t, msg.Role, reagent.RoleTool)
		gt.Equal(t, msg.ToolCallID, "call-1")

		out, err := msg.Output()
		gt.NoError(t, err)
		gt.Equal(t, out["forecast"], "sunny")
	})

	t.Run("tool error carries message, not output", func(t *testing.T) {
		call := reagent.ToolCall{ID: "call-2", Name: "get_weather"}
		msg := reagent.NewToolErrorMessage(call, errTest)

		gt.Equal(t, msg.Role, reagent.RoleTool)
		gt.Equal(t, msg.ToolCallID, "call-2")
		gt.Equal(t, msg.Error, "test failure")
		gt.Equal(t, msg.Content, "")
	})

	t.Run("tool call detection", func(t *testing.T) {
		plain := reagent.NewAssistantMessage("done")
		gt.False(t, plain.HasToolCalls())

		withCalls := reagent.NewToolCallMessage("", []reagent.ToolCall{{ID: "c", Name: "n"}})
		gt.True(t, withCalls.HasToolCalls())
	})

	t.Run("messages carry unique ids", func(t *testing.T) {
		a := reagent.NewUserMessage("x")
		b := reagent.NewUserMessage("x")
		gt.NotEqual(t, a.ID, b.ID)
	})
}
