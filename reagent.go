// Package reagent is a tool-calling agent execution runtime: a
// reasoning-act loop over a pluggable language model port, with streamed
// intermediate output and checkpointed multi-turn memory keyed by thread.
package reagent

import (
	"log/slog"
)

// ResponseMode selects how the loop consumes the model port.
type ResponseMode int

const (
	// ResponseModeBlocking waits for each model turn to complete and
	// emits a single step update per turn.
	ResponseModeBlocking ResponseMode = iota

	// ResponseModeStreaming consumes the model's incremental delivery and
	// emits token deltas into the messages stream mode as they arrive.
	ResponseModeStreaming
)

// String returns the string representation of the response mode.
func (x ResponseMode) String() string {
	return []string{"blocking", "streaming"}[x]
}

const (
	DefaultMaxSteps   = 32
	DefaultRetryLimit = 8
)

// Agent is the core structure of the package: a reasoning-act loop bound
// to a model port, a tool registry and a checkpoint store. One Agent can
// serve many threads; per-thread exclusivity is enforced by the store's
// writer lease.
type Agent struct {
	model ModelClient

	agentConfig
}

type agentConfig struct {
	maxSteps   int
	retryLimit int

	systemPrompt string
	promptFunc   PromptFunc

	tools    []Tool
	toolSets []ToolSet

	store          Store
	responseMode   ResponseMode
	responseSchema *Parameter

	streamModes  []StreamMode
	streamBuffer int

	customFields map[string]any

	logger *slog.Logger
}

func (c *agentConfig) clone() *agentConfig {
	cloned := *c
	cloned.tools = c.tools[:len(c.tools):len(c.tools)]
	cloned.toolSets = c.toolSets[:len(c.toolSets):len(c.toolSets)]
	if c.customFields != nil {
		fields := make(map[string]any, len(c.customFields))
		for k, v := range c.customFields {
			fields[k] = v
		}
		cloned.customFields = fields
	}
	return &cloned
}

// New creates an agent. Options given here apply to every run; Run and
// Stream accept the same options for per-call overrides.
func New(model ModelClient, options ...Option) *Agent {
	agent := &Agent{
		model: model,
		agentConfig: agentConfig{
			maxSteps:     DefaultMaxSteps,
			retryLimit:   DefaultRetryLimit,
			store:        NewMemoryStore(),
			responseMode: ResponseModeBlocking,
			streamBuffer: defaultStreamBuffer,
			logger:       slog.New(slog.DiscardHandler),
		},
	}

	for _, opt := range options {
		opt(&agent.agentConfig)
	}

	agent.logger.Info("reagent agent created",
		"max_steps", agent.maxSteps,
		"retry_limit", agent.retryLimit,
		"tools_count", len(agent.tools),
		"tool_sets_count", len(agent.toolSets),
		"response_mode", agent.responseMode.String(),
		"has_prompt_func", agent.promptFunc != nil,
		"has_response_schema", agent.responseSchema != nil,
	)

	return agent
}

// Option is the type for the options of the agent.
type Option func(*agentConfig)

// WithMaxSteps caps loop iterations per run. Exceeding the cap fails the
// run with ErrStepLimitExceeded; checkpoints written so far stay intact.
func WithMaxSteps(maxSteps int) Option {
	return func(c *agentConfig) {
		c.maxSteps = maxSteps
	}
}

// WithRetryLimit bounds retries of transient model errors (rate limits,
// connectivity) within one step.
func WithRetryLimit(retryLimit int) Option {
	return func(c *agentConfig) {
		c.retryLimit = retryLimit
	}
}

// WithSystemPrompt sets a static system prompt. Ignored when a prompt
// function is set.
func WithSystemPrompt(prompt string) Option {
	return func(c *agentConfig) {
		c.systemPrompt = prompt
	}
}

// WithPromptFunc sets a dynamic prompt function computing the system
// messages for every model call from the current state.
func WithPromptFunc(fn PromptFunc) Option {
	return func(c *agentConfig) {
		c.promptFunc = fn
	}
}

// WithTools registers tools for the agent.
func WithTools(tools ...Tool) Option {
	return func(c *agentConfig) {
		c.tools = append(c.tools, tools...)
	}
}

// WithToolSets registers tool sets, e.g. MCP servers.
func WithToolSets(toolSets ...ToolSet) Option {
	return func(c *agentConfig) {
		c.toolSets = append(c.toolSets, toolSets...)
	}
}

// WithStore sets the checkpoint store. Default is an in-memory store
// scoped to the Agent.
func WithStore(store Store) Option {
	return func(c *agentConfig) {
		c.store = store
	}
}

// WithResponseMode selects blocking or streaming model consumption.
func WithResponseMode(mode ResponseMode) Option {
	return func(c *agentConfig) {
		c.responseMode = mode
	}
}

// WithResponseSchema requires the final answer to be a JSON document
// matching the schema. A mismatch fails the run with
// ErrStructuredOutput.
func WithResponseSchema(param *Parameter) Option {
	return func(c *agentConfig) {
		c.responseSchema = param
	}
}

// WithStreamModes sets the modes of the default subscription returned by
// Stream. Additional consumers can subscribe to other modes on the run.
func WithStreamModes(modes ...StreamMode) Option {
	return func(c *agentConfig) {
		c.streamModes = modes
	}
}

// WithStreamBuffer sets the per-subscriber event buffer size.
func WithStreamBuffer(size int) Option {
	return func(c *agentConfig) {
		c.streamBuffer = size
	}
}

// WithCustomFields merges application-defined values into the state of
// the run. They are visible to prompt functions, persisted with every
// checkpoint, and carried across runs of the same thread.
func WithCustomFields(fields map[string]any) Option {
	return func(c *agentConfig) {
		if c.customFields == nil {
			c.customFields = map[string]any{}
		}
		for k, v := range fields {
			c.customFields[k] = v
		}
	}
}

// WithLogger sets the logger. Default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *agentConfig) {
		c.logger = logger
	}
}
