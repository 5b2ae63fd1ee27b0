package reagent

import (
	"context"
	"log/slog"
)

// ModelRequest is one completion request against the model port: the full
// transcript so far plus the schemas of every registered tool. Adapters
// convert it to their provider wire format per call; the canonical
// transcript always lives in State.
type ModelRequest struct {
	Messages []Message
	Tools    []*ToolSpec

	// ResponseSchema asks providers that support constrained decoding to
	// emit JSON matching the schema. Validation still happens locally on
	// the final answer regardless of provider support.
	ResponseSchema *Parameter
}

// ModelResponse is a completed model turn. Either ToolCalls is empty and
// Text is the final answer, or ToolCalls carries the requested batch.
type ModelResponse struct {
	Text      string
	ToolCalls []ToolCall

	InputTokens  int
	OutputTokens int
}

func (r *ModelResponse) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("text_len", len(r.Text)),
		slog.Int("tool_calls", len(r.ToolCalls)),
		slog.Int("input_tokens", r.InputTokens),
		slog.Int("output_tokens", r.OutputTokens),
	)
}

// ModelDelta is one increment of a streamed model turn. Text carries a
// token fragment; ToolCalls carries calls whose arguments have fully
// accumulated. A non-nil Err terminates the stream.
type ModelDelta struct {
	Text      string
	ToolCalls []ToolCall
	Err       error
}

// ModelClient is the language-model port. Implementations wrap transport
// failures into ErrModelUnavailable, throttling into ErrModelRateLimited
// and malformed responses into ErrModelProtocol so the loop can apply its
// retry policy uniformly.
//
// Stream returns a channel that is closed after the final delta; the
// loop accumulates deltas into one ModelResponse. Implementations that
// cannot stream may implement Stream as a single-delta channel over
// Complete.
type ModelClient interface {
	Complete(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
	Stream(ctx context.Context, req *ModelRequest) (<-chan *ModelDelta, error)
}
