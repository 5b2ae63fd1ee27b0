package reagent

import (
	"encoding/json"
)

// State is the conversation state owned by a single loop invocation.
// It is shared with the checkpoint store only through explicit save/load,
// and always as a deep copy.
type State struct {
	Messages []Message `json:"messages"`

	// Fields holds application-defined values (e.g. user_name) passed via
	// WithCustomFields. They are visible to prompt functions and persisted
	// with every checkpoint.
	Fields map[string]any `json:"fields,omitempty"`
}

// NewState creates an empty conversation state.
func NewState() *State {
	return &State{}
}

// Append adds messages to the transcript. Order of arguments is preserved.
func (x *State) Append(messages ...Message) {
	x.Messages = append(x.Messages, messages...)
}

// LastMessage returns the most recent message, or nil for an empty state.
func (x *State) LastMessage() *Message {
	if len(x.Messages) == 0 {
		return nil
	}
	return &x.Messages[len(x.Messages)-1]
}

// Field returns a custom field value.
func (x *State) Field(key string) (any, bool) {
	v, ok := x.Fields[key]
	return v, ok
}

// SetField sets a custom field value.
func (x *State) SetField(key string, value any) {
	if x.Fields == nil {
		x.Fields = map[string]any{}
	}
	x.Fields[key] = value
}

// Clone returns a deep copy of the state.
func (x *State) Clone() *State {
	if x == nil {
		return nil
	}

	// JSON round-trip keeps the copy correct when fields are added later.
	data, err := json.Marshal(x)
	if err != nil {
		return nil
	}

	var cloned State
	if err := json.Unmarshal(data, &cloned); err != nil {
		return nil
	}

	return &cloned
}
