// Package gemini adapts Vertex AI Gemini models to the reagent model
// port.
package gemini

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reagent"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-2.0-flash"

// Client is a reagent.ModelClient backed by Vertex AI Gemini.
type Client struct {
	client *genai.Client

	// defaultModel is the model to use for content generation.
	defaultModel string

	temperature *float32
	topP        *float32
	maxTokens   *int32

	gcpOptions []option.ClientOption
}

var _ reagent.ModelClient = (*Client)(nil)

// Option is a function that configures a Client.
type Option func(*Client)

// WithModel sets the model identifier to use for generation.
func WithModel(model string) Option {
	return func(c *Client) {
		c.defaultModel = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float32) Option {
	return func(c *Client) {
		c.temperature = &temp
	}
}

// WithTopP sets the nucleus sampling parameter.
func WithTopP(topP float32) Option {
	return func(c *Client) {
		c.topP = &topP
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int32) Option {
	return func(c *Client) {
		c.maxTokens = &maxTokens
	}
}

// WithGoogleCloudOptions sets additional options for the underlying
// Vertex AI client, e.g. credentials.
func WithGoogleCloudOptions(opts ...option.ClientOption) Option {
	return func(c *Client) {
		c.gcpOptions = append(c.gcpOptions, opts...)
	}
}

// New creates a Gemini-backed model client on Vertex AI.
func New(ctx context.Context, projectID, location string, options ...Option) (*Client, error) {
	client := &Client{
		defaultModel: defaultModel,
	}

	for _, opt := range options {
		opt(client)
	}

	genaiClient, err := genai.NewClient(ctx, projectID, location, client.gcpOptions...)
	if err != nil {
		return nil, goerr.Wrap(reagent.ErrModelUnavailable, "failed to create vertex ai client",
			goerr.V("project_id", projectID), goerr.V("location", location), goerr.V("cause", err.Error()))
	}
	client.client = genaiClient

	return client, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// startChat converts the request into a chat session: system messages
// become the system instruction, all but the last conversation turn
// become history, and the last turn is returned as the parts to send.
func (c *Client) startChat(req *reagent.ModelRequest) (*genai.ChatSession, []genai.Part, error) {
	model := c.client.GenerativeModel(c.defaultModel)
	model.Temperature = c.temperature
	model.TopP = c.topP
	model.MaxOutputTokens = c.maxTokens

	declarations := make([]*genai.FunctionDeclaration, len(req.Tools))
	for i, spec := range req.Tools {
		declarations[i] = convertTool(spec)
	}
	if len(declarations) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	system, contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, nil, err
	}

	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	if len(contents) == 0 {
		return nil, nil, goerr.Wrap(reagent.ErrModelProtocol, "no messages to send")
	}

	session := model.StartChat()
	last := contents[len(contents)-1]
	session.History = contents[:len(contents)-1]

	return session, last.Parts, nil
}

// Complete performs one blocking model turn.
func (c *Client) Complete(ctx context.Context, req *reagent.ModelRequest) (*reagent.ModelResponse, error) {
	session, parts, err := c.startChat(req)
	if err != nil {
		return nil, err
	}

	resp, err := session.SendMessage(ctx, parts...)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	return processResponse(resp)
}

// Stream performs one model turn with incremental delivery. Gemini
// delivers function calls as whole parts, so only text arrives as
// deltas.
func (c *Client) Stream(ctx context.Context, req *reagent.ModelRequest) (<-chan *reagent.ModelDelta, error) {
	session, parts, err := c.startChat(req)
	if err != nil {
		return nil, err
	}

	iter := session.SendMessageStream(ctx, parts...)
	deltaChan := make(chan *reagent.ModelDelta)

	go func() {
		defer close(deltaChan)

		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				deltaChan <- &reagent.ModelDelta{Err: wrapAPIError(err)}
				return
			}

			chunk, err := processResponse(resp)
			if err != nil {
				deltaChan <- &reagent.ModelDelta{Err: err}
				return
			}
			if chunk.Text != "" {
				deltaChan <- &reagent.ModelDelta{Text: chunk.Text}
			}
			if len(chunk.ToolCalls) > 0 {
				deltaChan <- &reagent.ModelDelta{ToolCalls: chunk.ToolCalls}
			}
		}
	}()

	return deltaChan, nil
}

func processResponse(resp *genai.GenerateContentResponse) (*reagent.ModelResponse, error) {
	out := &reagent.ModelResponse{}
	if usage := resp.UsageMetadata; usage != nil {
		out.InputTokens = int(usage.PromptTokenCount)
		out.OutputTokens = int(usage.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			out.Text += string(v)

		case genai.FunctionCall:
			// Vertex AI assigns no call id; generate one so tool results
			// can reference their call.
			out.ToolCalls = append(out.ToolCalls, reagent.ToolCall{
				ID:        uuid.New().String(),
				Name:      v.Name,
				Arguments: v.Args,
			})
		}
	}

	return out, nil
}

// wrapAPIError maps Vertex AI failures onto the port error taxonomy.
func wrapAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return goerr.Wrap(reagent.ErrModelRateLimited, "gemini rate limited", goerr.V("cause", err.Error()))
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return goerr.Wrap(reagent.ErrModelUnavailable, "gemini unavailable", goerr.V("cause", err.Error()))
		}
		return goerr.Wrap(reagent.ErrModelProtocol, "gemini request failed", goerr.V("cause", err.Error()))
	}

	return goerr.Wrap(reagent.ErrModelUnavailable, "failed to call gemini", goerr.V("cause", err.Error()))
}
