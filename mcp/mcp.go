// Package mcp exposes Model Context Protocol servers as reagent tool
// sets. A Client speaks to one server over stdio or HTTP SSE and feeds
// the server's tools into the agent registry.
package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reagent"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName    = "reagent"
	clientVersion = "0.0.1"
)

// ErrInvalidToolSchema is returned when a server advertises a tool
// input schema that cannot be mapped to parameter specs.
var ErrInvalidToolSchema = goerr.New("invalid MCP tool input schema")

// Client connects to a single MCP server and implements
// reagent.ToolSet over its tools.
type Client struct {
	// For a local server spawned over stdio.
	path    string
	args    []string
	envVars []string

	// For a remote server over HTTP SSE.
	baseURL string
	headers map[string]string

	client     *client.Client
	initResult *mcp.InitializeResult

	initMutex sync.Mutex
}

var _ reagent.ToolSet = (*Client)(nil)

// StdioOption configures a stdio-transport client.
type StdioOption func(*Client)

// WithEnvVars appends environment variables passed to the spawned
// server process.
func WithEnvVars(envVars []string) StdioOption {
	return func(c *Client) {
		c.envVars = append(c.envVars, envVars...)
	}
}

// SSEOption configures an SSE-transport client.
type SSEOption func(*Client)

// WithHeaders sets the HTTP headers sent to the remote server.
func WithHeaders(headers map[string]string) SSEOption {
	return func(c *Client) {
		c.headers = headers
	}
}

// NewStdio spawns a local MCP server executable and connects over
// stdio.
func NewStdio(ctx context.Context, path string, args []string, options ...StdioOption) (*Client, error) {
	c := &Client{
		path: path,
		args: args,
	}
	for _, opt := range options {
		opt(c)
	}

	if err := c.start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewSSE connects to a remote MCP server over HTTP SSE.
func NewSSE(ctx context.Context, baseURL string, options ...SSEOption) (*Client, error) {
	c := &Client{
		baseURL: baseURL,
	}
	for _, opt := range options {
		opt(c)
	}

	if err := c.start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) start(ctx context.Context) error {
	c.initMutex.Lock()
	defer c.initMutex.Unlock()

	if c.initResult != nil {
		return nil
	}

	var tp transport.Interface
	if c.path != "" {
		tp = transport.NewStdio(c.path, c.envVars, c.args...)
	}

	if c.baseURL != "" {
		sse, err := transport.NewSSE(c.baseURL, transport.WithHeaders(c.headers))
		if err != nil {
			return goerr.Wrap(err, "failed to create SSE transport", goerr.V("base_url", c.baseURL))
		}
		tp = sse
	}

	if tp == nil {
		return goerr.New("no transport configured")
	}

	c.client = client.NewClient(tp)

	if err := c.client.Start(ctx); err != nil {
		return goerr.Wrap(err, "failed to start MCP client")
	}

	var initRequest mcp.InitializeRequest
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	resp, err := c.client.Initialize(ctx, initRequest)
	if err != nil {
		return goerr.Wrap(err, "failed to initialize MCP client")
	}
	c.initResult = resp

	return nil
}

// Close shuts down the transport (and the spawned process for stdio).
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close MCP client")
	}
	return nil
}

// Specs lists the server's tools as tool specs.
func (c *Client) Specs(ctx context.Context) ([]*reagent.ToolSpec, error) {
	resp, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list MCP tools")
	}

	specs := make([]*reagent.ToolSpec, len(resp.Tools))
	for i, tool := range resp.Tools {
		spec, err := convertToolSpec(tool)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert MCP tool", goerr.V("tool", tool.Name))
		}
		specs[i] = spec
	}

	reagent.LoggerFromContext(ctx).Debug("listed MCP tools", "count", len(specs))

	return specs, nil
}

// Run invokes one of the server's tools. Progress events are not
// forwarded; the writer is accepted for interface conformance only.
func (c *Client) Run(ctx context.Context, _ reagent.EventWriter, name string, args map[string]any) (map[string]any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := c.client.CallTool(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(reagent.ErrToolExecution, "MCP tool call failed",
			goerr.V("tool", name), goerr.V("cause", err.Error()))
	}
	if resp.IsError {
		return nil, goerr.Wrap(reagent.ErrToolExecution, "MCP tool reported an error",
			goerr.V("tool", name), goerr.V("content", contentToMap(resp.Content)))
	}

	return contentToMap(resp.Content), nil
}

func convertToolSpec(tool mcp.Tool) (*reagent.ToolSpec, error) {
	parameters := map[string]*reagent.Parameter{}
	for name, property := range tool.InputSchema.Properties {
		prop, ok := property.(map[string]any)
		if !ok {
			return nil, goerr.Wrap(ErrInvalidToolSchema, "property is not an object", goerr.V("property", name))
		}

		parameter, err := propertyToParameter(name, prop)
		if err != nil {
			return nil, err
		}
		parameters[name] = parameter
	}

	return &reagent.ToolSpec{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  parameters,
		Required:    tool.InputSchema.Required,
	}, nil
}

func propertyToParameter(name string, prop map[string]any) (*reagent.Parameter, error) {
	var properties map[string]*reagent.Parameter
	var items *reagent.Parameter
	propType := valueOrEmpty[string](prop["type"])

	if propType == "object" {
		properties = map[string]*reagent.Parameter{}
		for k, v := range valueOrEmpty[map[string]any](prop["properties"]) {
			nested, ok := v.(map[string]any)
			if !ok {
				return nil, goerr.Wrap(ErrInvalidToolSchema, "nested property is not an object", goerr.V("property", k))
			}
			objParam, err := propertyToParameter(k, nested)
			if err != nil {
				return nil, err
			}
			properties[k] = objParam
		}
	}

	if propType == "array" {
		itemsProp, ok := prop["items"].(map[string]any)
		if !ok {
			return nil, goerr.Wrap(ErrInvalidToolSchema, "array items is not an object", goerr.V("property", name))
		}
		v, err := propertyToParameter(name, itemsProp)
		if err != nil {
			return nil, err
		}
		items = v
	}

	var required []string
	for _, r := range valueOrEmpty[[]any](prop["required"]) {
		if s, ok := r.(string); ok {
			required = append(required, s)
		}
	}

	var enum []string
	for _, e := range valueOrEmpty[[]any](prop["enum"]) {
		if s, ok := e.(string); ok {
			enum = append(enum, s)
		}
	}

	return &reagent.Parameter{
		Type:        reagent.ParameterType(propType),
		Title:       valueOrEmpty[string](prop["title"]),
		Description: valueOrEmpty[string](prop["description"]),
		Required:    required,
		Enum:        enum,
		Properties:  properties,
		Items:       items,
	}, nil
}

func valueOrEmpty[T any](v any) T {
	var empty T
	if v == nil {
		return empty
	}
	if v, ok := v.(T); ok {
		return v
	}
	return empty
}

// contentToMap flattens the first text content into a result map. A
// JSON object payload passes through as-is, anything else lands under
// a "result" key.
func contentToMap(contents []mcp.Content) map[string]any {
	for _, c := range contents {
		txt, ok := mcp.AsTextContent(c)
		if !ok {
			continue
		}

		var v any
		if err := json.Unmarshal([]byte(txt.Text), &v); err == nil {
			if mapData, ok := v.(map[string]any); ok {
				return mapData
			}
			return map[string]any{"result": v}
		}

		return map[string]any{"result": txt.Text}
	}

	return map[string]any{}
}
