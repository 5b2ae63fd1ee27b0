package reagent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Run executes the reasoning-act loop for a thread until the model
// produces a final answer, blocking the caller. The prior state of the
// thread is loaded from the checkpoint store, the new user message is
// appended, and a checkpoint is written after every completed step.
//
// A concurrent run on the same thread fails fast with ErrThreadBusy.
func (a *Agent) Run(ctx context.Context, threadID string, prompt string, options ...Option) (*State, error) {
	cfg := a.agentConfig.clone()
	for _, opt := range options {
		opt(cfg)
	}

	mux := newMultiplexer(cfg.streamBuffer)

	release, err := cfg.store.Acquire(ctx, threadID)
	if err != nil {
		return nil, err
	}

	return a.runLoop(ctx, threadID, prompt, cfg, mux, release)
}

// StreamRun is a handle to an in-flight streaming run. The consumer that
// called Stream reads Events(); further consumers may Subscribe with
// their own mode selection. Wait returns the final state once the loop
// terminates.
type StreamRun struct {
	mux *multiplexer
	sub *Subscription

	done  chan struct{}
	state *State
	err   error
}

// Events returns the default subscription channel, filtered by the
// stream modes configured on the agent or the call.
func (r *StreamRun) Events() <-chan Event {
	return r.sub.C()
}

// Subscribe attaches an additional consumer. Closing it does not affect
// the loop or other consumers.
func (r *StreamRun) Subscribe(modes ...StreamMode) *Subscription {
	return r.mux.subscribe(modes...)
}

// Wait blocks until the loop terminates and returns its outcome.
func (r *StreamRun) Wait(ctx context.Context) (*State, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return r.state, r.err
	}
}

// Stream starts the loop in the background and returns a handle for
// incremental consumption. The writer lease is taken synchronously, so a
// busy thread is reported before any goroutine is spawned.
func (a *Agent) Stream(ctx context.Context, threadID string, prompt string, options ...Option) (*StreamRun, error) {
	cfg := a.agentConfig.clone()
	for _, opt := range options {
		opt(cfg)
	}

	mux := newMultiplexer(cfg.streamBuffer)

	release, err := cfg.store.Acquire(ctx, threadID)
	if err != nil {
		return nil, err
	}

	run := &StreamRun{
		mux:  mux,
		done: make(chan struct{}),
	}
	run.sub = mux.subscribe(cfg.streamModes...)

	go func() {
		defer close(run.done)
		run.state, run.err = a.runLoop(ctx, threadID, prompt, cfg, mux, release)
	}()

	return run, nil
}

// runLoop is the loop body shared by Run and Stream. The caller has
// already taken the writer lease; runLoop holds it until termination.
func (a *Agent) runLoop(ctx context.Context, threadID string, prompt string, cfg *agentConfig, mux *multiplexer, release func()) (*State, error) {
	defer release()

	logger := cfg.logger.With("thread_id", threadID, "run_id", uuid.New().String())
	ctx = ctxWithLogger(ctx, logger)

	registry, err := NewRegistry(ctx, cfg.tools, cfg.toolSets)
	if err != nil {
		return nil, a.failed(mux, 0, err)
	}

	promptFn := cfg.promptFunc
	if promptFn == nil {
		promptFn = staticPrompt(cfg.systemPrompt)
	}

	var validator *responseValidator
	if cfg.responseSchema != nil {
		validator, err = newResponseValidator(cfg.responseSchema)
		if err != nil {
			return nil, a.failed(mux, 0, err)
		}
	}

	latest, err := cfg.store.GetLatest(ctx, threadID)
	if err != nil {
		return nil, a.failed(mux, 0, goerr.Wrap(err, "failed to load checkpoint", goerr.V("thread_id", threadID)))
	}

	state := NewState()
	step := 0
	if latest != nil {
		state = latest.State.Clone()
		step = latest.Step + 1
	}
	for k, v := range cfg.customFields {
		state.SetField(k, v)
	}

	mux.update(step, PhaseLoading, nil)
	logger.Info("starting run", "prompt", prompt, "resumed_step", step, "history_len", len(state.Messages))

	state.Append(NewUserMessage(prompt))
	specs := registry.Specs()

	for i := 0; i < cfg.maxSteps; i++ {
		if ctx.Err() != nil {
			return nil, a.cancelled(mux, step, ctx.Err())
		}

		mux.update(step, PhaseThinking, nil)
		mux.debug(step, fmt.Sprintf("model call with %d messages, %d tools", len(state.Messages), len(specs)))

		system, err := promptFn(ctx, state)
		if err != nil {
			return nil, a.failed(mux, step, goerr.Wrap(err, "prompt function failed"))
		}

		req := &ModelRequest{
			Messages:       append(system, state.Messages...),
			Tools:          specs,
			ResponseSchema: cfg.responseSchema,
		}

		resp, err := a.generate(ctx, cfg, mux, step, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, a.cancelled(mux, step, ctx.Err())
			}
			return nil, a.failed(mux, step, err)
		}
		logger.Debug("model response", "step", step, "response", resp)

		if len(resp.ToolCalls) == 0 {
			final := NewAssistantMessage(resp.Text)

			if validator != nil {
				if _, err := validator.validate(resp.Text); err != nil {
					return nil, a.failed(mux, step, err)
				}
			}

			state.Append(final)
			if err := cfg.store.Put(ctx, NewCheckpoint(threadID, step, state)); err != nil {
				return nil, a.failed(mux, step, err)
			}

			mux.message(step, final)
			mux.values(step, state)
			mux.finish(step, PhaseDone, "")
			logger.Info("run completed", "steps", i+1, "final_step", step)
			return state, nil
		}

		assistant := NewToolCallMessage(resp.Text, resp.ToolCalls)
		state.Append(assistant)
		mux.message(step, assistant)
		mux.update(step, PhaseActing, &assistant)

		results, err := a.execTools(ctx, registry, mux, step, resp.ToolCalls)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil, a.cancelled(mux, step, err)
			}
			return nil, a.failed(mux, step, err)
		}

		state.Append(results...)
		for _, msg := range results {
			mux.message(step, msg)
		}

		if err := cfg.store.Put(ctx, NewCheckpoint(threadID, step, state)); err != nil {
			return nil, a.failed(mux, step, err)
		}
		mux.values(step, state)
		step++
	}

	return nil, a.failed(mux, step, goerr.Wrap(ErrStepLimitExceeded, "run stopped",
		goerr.V("max_steps", cfg.maxSteps), goerr.V("thread_id", threadID)))
}

// generate performs one model turn. Blocking mode retries transient port
// errors with bounded backoff. Streaming mode retries only stream
// establishment; an error arriving mid-stream is terminal, since
// replaying a half-delivered turn would duplicate emitted tokens.
func (a *Agent) generate(ctx context.Context, cfg *agentConfig, mux *multiplexer, step int, req *ModelRequest) (*ModelResponse, error) {
	if cfg.responseMode == ResponseModeBlocking {
		var out *ModelResponse
		err := withRetry(ctx, cfg.retryLimit, func() error {
			resp, err := a.model.Complete(ctx, req)
			if err != nil {
				return err
			}
			out = resp
			return nil
		})
		return out, err
	}

	var stream <-chan *ModelDelta
	if err := withRetry(ctx, cfg.retryLimit, func() error {
		s, err := a.model.Stream(ctx, req)
		if err != nil {
			return err
		}
		stream = s
		return nil
	}); err != nil {
		return nil, err
	}

	resp := &ModelResponse{}
	for delta := range stream {
		if delta.Err != nil {
			return nil, delta.Err
		}
		if delta.Text != "" {
			resp.Text += delta.Text
			mux.token(step, delta.Text)
		}
		resp.ToolCalls = append(resp.ToolCalls, delta.ToolCalls...)
	}
	return resp, nil
}

// execTools runs one batch of tool calls. Invocations execute
// concurrently, but results land in a slice indexed by request position,
// so the transcript order is deterministic regardless of completion
// order. A tool error becomes an error-carrying tool message unless it
// wraps ErrToolFatal, which aborts the batch.
func (a *Agent) execTools(ctx context.Context, registry *Registry, mux *multiplexer, step int, calls []ToolCall) ([]Message, error) {
	logger := LoggerFromContext(ctx)
	writer := &muxWriter{mux: mux, step: step}

	results := make([]Message, len(calls))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatal error

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()

			logger.Debug("tool call", "step", step, "tool", call.Name, "args", call.Arguments)
			out, err := registry.Invoke(ctx, writer, call.Name, call.Arguments)
			if err != nil {
				if errors.Is(err, ErrToolFatal) {
					mu.Lock()
					if fatal == nil {
						fatal = err
					}
					mu.Unlock()
					return
				}

				logger.Info("tool error", "tool", call.Name, "error", err)
				results[i] = NewToolErrorMessage(call, err)
				return
			}

			logger.Debug("tool result", "tool", call.Name, "result", out)
			results[i] = NewToolResultMessage(call, out)
		}(i, call)
	}
	wg.Wait()

	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *Agent) failed(mux *multiplexer, step int, err error) error {
	mux.finish(step, PhaseFailed, err.Error())
	return err
}

func (a *Agent) cancelled(mux *multiplexer, step int, cause error) error {
	mux.finish(step, PhaseCancelled, cause.Error())
	return goerr.Wrap(ErrRunCancelled, "run cancelled", goerr.V("cause", cause.Error()))
}
