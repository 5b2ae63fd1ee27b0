// Package openai adapts the OpenAI chat completion API to the reagent
// model port.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reagent"
	"github.com/sashabaranov/go-openai"
)

// Client is a reagent.ModelClient backed by the OpenAI API.
type Client struct {
	client *openai.Client

	// defaultModel is the model to use for chat completions.
	defaultModel string

	temperature float32
	topP        float32
	maxTokens   int
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

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float32) Option {
	return func(c *Client) {
		c.temperature = temp
	}
}

// WithTopP sets the nucleus sampling parameter.
func WithTopP(topP float32) Option {
	return func(c *Client) {
		c.topP = topP
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) Option {
	return func(c *Client) {
		c.maxTokens = maxTokens
	}
}

// New creates an OpenAI-backed model client.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	client := &Client{
		defaultModel: openai.GPT4o,
		temperature:  0.7,
		topP:         1.0,
	}

	for _, opt := range options {
		opt(client)
	}

	client.client = openai.NewClient(apiKey)

	return client, nil
}

func (c *Client) createRequest(req *reagent.ModelRequest, stream bool) (openai.ChatCompletionRequest, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	tools := make([]openai.Tool, len(req.Tools))
	for i, spec := range req.Tools {
		tools[i] = convertTool(spec)
	}

	out := openai.ChatCompletionRequest{
		Model:       c.defaultModel,
		Messages:    messages,
		Tools:       tools,
		Temperature: c.temperature,
		TopP:        c.topP,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}

	if req.ResponseSchema != nil {
		raw, err := json.Marshal(req.ResponseSchema.JSONSchema())
		if err != nil {
			return openai.ChatCompletionRequest{}, goerr.Wrap(err, "failed to marshal response schema")
		}
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "response",
				Schema: json.RawMessage(raw),
			},
		}
	}

	return out, nil
}

// Complete performs one blocking model turn.
func (c *Client) Complete(ctx context.Context, req *reagent.ModelRequest) (*reagent.ModelResponse, error) {
	params, err := c.createRequest(req, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, goerr.Wrap(reagent.ErrModelProtocol, "no choices in response")
	}

	choice := resp.Choices[0].Message
	out := &reagent.ModelResponse{
		Text:         choice.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	for _, call := range choice.ToolCalls {
		converted, err := convertToolCall(call.ID, call.Function.Name, call.Function.Arguments)
		if err != nil {
			return nil, err
		}
		out.ToolCalls = append(out.ToolCalls, converted)
	}

	return out, nil
}

// Stream performs one model turn with incremental delivery. OpenAI
// interleaves partial tool calls by index; each call is delivered once
// the stream ends and its argument JSON is complete.
func (c *Client) Stream(ctx context.Context, req *reagent.ModelRequest) (<-chan *reagent.ModelDelta, error) {
	params, err := c.createRequest(req, true)
	if err != nil {
		return nil, err
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, params)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	deltaChan := make(chan *reagent.ModelDelta)

	go func() {
		defer close(deltaChan)
		defer stream.Close()

		type partialCall struct {
			id        string
			name      string
			arguments string
		}
		var calls []*partialCall

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				deltaChan <- &reagent.ModelDelta{Err: wrapAPIError(err)}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				deltaChan <- &reagent.ModelDelta{Text: delta.Content}
			}

			for _, tc := range delta.ToolCalls {
				idx := len(calls) - 1
				if tc.Index != nil {
					idx = *tc.Index
				}
				for len(calls) <= idx {
					calls = append(calls, &partialCall{})
				}
				if idx < 0 {
					continue
				}
				if tc.ID != "" {
					calls[idx].id = tc.ID
				}
				if tc.Function.Name != "" {
					calls[idx].name = tc.Function.Name
				}
				calls[idx].arguments += tc.Function.Arguments
			}
		}

		for _, pc := range calls {
			converted, err := convertToolCall(pc.id, pc.name, pc.arguments)
			if err != nil {
				deltaChan <- &reagent.ModelDelta{Err: err}
				return
			}
			deltaChan <- &reagent.ModelDelta{ToolCalls: []reagent.ToolCall{converted}}
		}
	}()

	return deltaChan, nil
}

func convertToolCall(id, name, arguments string) (reagent.ToolCall, error) {
	var args map[string]any
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return reagent.ToolCall{}, goerr.Wrap(reagent.ErrModelProtocol, "failed to unmarshal tool call arguments",
				goerr.V("tool", name))
		}
	}
	return reagent.ToolCall{ID: id, Name: name, Arguments: args}, nil
}

// wrapAPIError maps OpenAI API failures onto the port error taxonomy.
func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return goerr.Wrap(reagent.ErrModelRateLimited, "openai rate limited", goerr.V("cause", err.Error()))
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return goerr.Wrap(reagent.ErrModelUnavailable, "openai unavailable", goerr.V("cause", err.Error()))
		}
		return goerr.Wrap(reagent.ErrModelProtocol, "openai request failed", goerr.V("cause", err.Error()))
	}

	return goerr.Wrap(reagent.ErrModelUnavailable, "failed to call openai", goerr.V("cause", err.Error()))
}
