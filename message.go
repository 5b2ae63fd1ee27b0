package reagent

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a request by the model to invoke a named tool.
// It is produced only by the model port.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (c ToolCall) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", c.ID),
		slog.String("name", c.Name),
		slog.Any("arguments", c.Arguments),
	)
}

// Message is a single immutable entry of a conversation transcript.
// A transcript is an append-only ordered sequence of messages; callers
// never mutate a message after it has been appended to a State.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID back-references the originating call on tool messages.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Error carries a tool failure fed back to the model. Non-empty only
	// on tool messages.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewUserMessage creates a user message from a prompt text.
func NewUserMessage(text string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleSystem,
		Content:   text,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage creates a final assistant message with no tool calls.
func NewAssistantMessage(text string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   text,
		CreatedAt: time.Now(),
	}
}

// NewToolCallMessage creates an assistant message requesting tool execution.
func NewToolCallMessage(text string, calls []ToolCall) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   text,
		ToolCalls: calls,
		CreatedAt: time.Now(),
	}
}

// NewToolResultMessage creates a tool message carrying the output of a
// successful tool invocation. The output is stored as a JSON document.
func NewToolResultMessage(call ToolCall, output map[string]any) Message {
	content, err := json.Marshal(output)
	if err != nil {
		// Registry sanitizes outputs through a JSON round-trip before this
		// point, so a marshal failure here means a registry bug.
		content = []byte(`{}`)
	}

	return Message{
		ID:         uuid.New().String(),
		Role:       RoleTool,
		Content:    string(content),
		ToolCallID: call.ID,
		CreatedAt:  time.Now(),
	}
}

// NewToolErrorMessage creates a tool message carrying a captured tool
// failure. The loop feeds it back to the model instead of aborting.
func NewToolErrorMessage(call ToolCall, err error) Message {
	return Message{
		ID:         uuid.New().String(),
		Role:       RoleTool,
		ToolCallID: call.ID,
		Error:      err.Error(),
		CreatedAt:  time.Now(),
	}
}

// Output decodes the JSON output of a tool message.
func (m *Message) Output() (map[string]any, error) {
	if m.Content == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(m.Content), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HasToolCalls reports whether the message requests tool execution.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

func (m Message) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", m.ID),
		slog.String("role", string(m.Role)),
	}
	if m.Content != "" {
		attrs = append(attrs, slog.String("content", m.Content))
	}
	if len(m.ToolCalls) > 0 {
		names := make([]string, 0, len(m.ToolCalls))
		for _, c := range m.ToolCalls {
			names = append(names, c.Name)
		}
		attrs = append(attrs, slog.String("tool_calls", strings.Join(names, ",")))
	}
	if m.Error != "" {
		attrs = append(attrs, slog.String("error", m.Error))
	}
	return slog.GroupValue(attrs...)
}
