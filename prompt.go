package reagent

import (
	"context"
)

// PromptFunc computes the system messages for one model call from the
// current state. It is invoked once per step, so prompts can react to
// custom fields or to the transcript itself. Returned messages are
// prepended to the transcript for that call only; they are not persisted.
type PromptFunc func(ctx context.Context, state *State) ([]Message, error)

// staticPrompt turns a fixed system prompt into a PromptFunc.
func staticPrompt(text string) PromptFunc {
	return func(ctx context.Context, state *State) ([]Message, error) {
		if text == "" {
			return nil, nil
		}
		return []Message{NewSystemMessage(text)}, nil
	}
}
