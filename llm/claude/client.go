// Package claude adapts Anthropic's Claude API to the reagent model port.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reagent"
)

// generationParameters represents the parameters for text generation.
type generationParameters struct {
	Temperature float64
	TopP        float64
	MaxTokens   int64
}

// Client is a reagent.ModelClient backed by the Claude API.
type Client struct {
	client *anthropic.Client

	// defaultModel is the model to use for chat completions.
	defaultModel string

	params generationParameters
}

var _ reagent.ModelClient = (*Client)(nil)

// Option is a function that configures a Client.
type Option func(*Client)

// WithModel sets the model identifier to use for completions.
func WithModel(modelName string) Option {
	return func(c *Client) {
		c.defaultModel = modelName
	}
}

// WithTemperature sets the sampling temperature. Range: 0.0 to 1.0.
func WithTemperature(temp float64) Option {
	return func(c *Client) {
		c.params.Temperature = temp
	}
}

// WithTopP sets the nucleus sampling parameter.
func WithTopP(topP float64) Option {
	return func(c *Client) {
		c.params.TopP = topP
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int64) Option {
	return func(c *Client) {
		c.params.MaxTokens = maxTokens
	}
}

// New creates a Claude-backed model client.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	client := &Client{
		defaultModel: anthropic.ModelClaude3_5SonnetLatest,
		params: generationParameters{
			Temperature: 0.7,
			TopP:        1.0,
			MaxTokens:   4096,
		},
	}

	for _, opt := range options {
		opt(client)
	}

	newClient := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	client.client = &newClient

	return client, nil
}

func (c *Client) createRequest(req *reagent.ModelRequest) (anthropic.MessageNewParams, error) {
	system, messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	tools := make([]anthropic.ToolUnionParam, len(req.Tools))
	for i, spec := range req.Tools {
		tools[i] = convertTool(spec)
	}

	params := anthropic.MessageNewParams{
		Model:       c.defaultModel,
		MaxTokens:   c.params.MaxTokens,
		Temperature: anthropic.Float(c.params.Temperature),
		TopP:        anthropic.Float(c.params.TopP),
		Tools:       tools,
		Messages:    messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	return params, nil
}

// Complete performs one blocking model turn.
func (c *Client) Complete(ctx context.Context, req *reagent.ModelRequest) (*reagent.ModelResponse, error) {
	params, err := c.createRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	return processResponse(resp)
}

// processResponse converts a Claude response to the port response type.
func processResponse(resp *anthropic.Message) (*reagent.ModelResponse, error) {
	out := &reagent.ModelResponse{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}

	var texts []string
	for _, content := range resp.Content {
		textBlock := content.AsResponseTextBlock()
		if textBlock.Type == "text" {
			texts = append(texts, textBlock.Text)
		}

		toolUseBlock := content.AsResponseToolUseBlock()
		if toolUseBlock.Type == "tool_use" {
			var args map[string]any
			if err := json.Unmarshal([]byte(toolUseBlock.Input), &args); err != nil {
				return nil, goerr.Wrap(reagent.ErrModelProtocol, "failed to unmarshal tool arguments",
					goerr.V("tool", toolUseBlock.Name))
			}

			out.ToolCalls = append(out.ToolCalls, reagent.ToolCall{
				ID:        toolUseBlock.ID,
				Name:      toolUseBlock.Name,
				Arguments: args,
			})
		}
	}
	out.Text = strings.Join(texts, "")

	return out, nil
}

// toolCallAccumulator accumulates one tool call from stream deltas.
type toolCallAccumulator struct {
	id        string
	name      string
	arguments string
}

func (a *toolCallAccumulator) accumulate() (reagent.ToolCall, error) {
	if a.id == "" || a.name == "" {
		return reagent.ToolCall{}, goerr.Wrap(reagent.ErrModelProtocol, "tool call is not complete")
	}

	var args map[string]any
	if a.arguments != "" {
		if err := json.Unmarshal([]byte(a.arguments), &args); err != nil {
			return reagent.ToolCall{}, goerr.Wrap(reagent.ErrModelProtocol, "failed to unmarshal tool call arguments",
				goerr.V("tool", a.name))
		}
	}

	return reagent.ToolCall{ID: a.id, Name: a.name, Arguments: args}, nil
}

// Stream performs one model turn with incremental delivery. Text deltas
// are forwarded as they arrive; a tool call is delivered once its
// argument JSON has fully accumulated.
func (c *Client) Stream(ctx context.Context, req *reagent.ModelRequest) (<-chan *reagent.ModelDelta, error) {
	params, err := c.createRequest(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	if stream == nil {
		return nil, goerr.Wrap(reagent.ErrModelUnavailable, "failed to create message stream")
	}

	deltaChan := make(chan *reagent.ModelDelta)
	acc := &toolCallAccumulator{}

	go func() {
		defer close(deltaChan)

		for stream.Next() {
			event := stream.Current()

			switch event.Type {
			case "content_block_start":
				startEvent := event.AsContentBlockStartEvent()
				if startEvent.ContentBlock.Type == "tool_use" {
					toolUseBlock := startEvent.ContentBlock.AsResponseToolUseBlock()
					acc.id = toolUseBlock.ID
					acc.name = toolUseBlock.Name
				}

			case "content_block_delta":
				deltaEvent := event.AsContentBlockDeltaEvent()
				switch deltaEvent.Delta.Type {
				case "text_delta":
					textDelta := deltaEvent.Delta.AsTextContentBlockDelta()
					if textDelta.Text != "" {
						deltaChan <- &reagent.ModelDelta{Text: textDelta.Text}
					}
				case "input_json_delta":
					jsonDelta := deltaEvent.Delta.AsInputJSONContentBlockDelta()
					acc.arguments += jsonDelta.PartialJSON
				}

			case "content_block_stop":
				if acc.id != "" {
					call, err := acc.accumulate()
					if err != nil {
						deltaChan <- &reagent.ModelDelta{Err: err}
						return
					}
					deltaChan <- &reagent.ModelDelta{ToolCalls: []reagent.ToolCall{call}}
					acc = &toolCallAccumulator{}
				}
			}
		}

		if err := stream.Err(); err != nil {
			deltaChan <- &reagent.ModelDelta{Err: wrapAPIError(err)}
		}
	}()

	return deltaChan, nil
}

// wrapAPIError maps Anthropic API failures onto the port error taxonomy
// so the loop's retry policy applies uniformly across providers.
func wrapAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return goerr.Wrap(reagent.ErrModelRateLimited, "claude rate limited", goerr.V("cause", err.Error()))
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, 529:
			return goerr.Wrap(reagent.ErrModelUnavailable, "claude unavailable", goerr.V("cause", err.Error()))
		}
		return goerr.Wrap(reagent.ErrModelProtocol, "claude request failed", goerr.V("cause", err.Error()))
	}

	return goerr.Wrap(reagent.ErrModelUnavailable, "failed to call claude", goerr.V("cause", err.Error()))
}
