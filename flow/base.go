package flow

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/model"
)

// Options configures a BaseFlow.
type Options struct {
	// Executor runs the function calls returned by the model.
	Executor FunctionExecutor
}

// BaseFlow is a minimal single-agent flow implementation that supports a
// request -> LLM -> (optional tool loop) cycle with pluggable pre/post processors.
type BaseFlow struct {
	agent              FlowAgent
	executor           FunctionExecutor
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
}

// NewBaseFlow creates a new basic single-agent flow.
func NewBaseFlow(agent FlowAgent, optFns ...func(o *Options)) *BaseFlow {
	opts := Options{
		Executor: NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: 4, PreserveOrder: true}),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &BaseFlow{
		agent:    agent,
		executor: opts.Executor,
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed after each model chunk.
func (f *BaseFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// Execute runs model turns until the model answers without requesting tools,
// a tool asks to skip summarization or an error occurs.
func (f *BaseFlow) Execute(runCtx *core.RunContext) error {
	for {
		last, err := f.runOnce(runCtx)
		if err != nil {
			return err
		}

		if last == nil {
			return nil
		}

		// A function response needs another model turn to be summarized.
		if len(last.GetFunctionResponses()) > 0 && !last.IsFinalResponse() {
			continue
		}

		return nil
	}
}

// emit forwards a non-partial event and waits until the runner persisted it.
func (f *BaseFlow) emit(runCtx *core.RunContext, ev core.Event) error {
	if err := runCtx.EmitEvent(ev); err != nil {
		return err
	}

	if ev.IsPartial() {
		return nil
	}

	return runCtx.WaitForResume()
}

// runOnce performs one model turn including any tool executions and returns
// the last emitted non-partial event.
func (f *BaseFlow) runOnce(runCtx *core.RunContext) (*core.Event, error) {
	// Pick up events persisted since the last turn (tool responses included).
	if runCtx.SessionStore != nil {
		if err := runCtx.RefreshSession(); err != nil {
			runCtx.LogWarn("agent.session.refresh_failed", "agent", f.agent.GetName(), "error", err)
		}
	}

	req := new(model.Request)

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(runCtx, req, f.agent); err != nil {
			return nil, fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}

	req.Tools = f.toolDefinitions()

	if runCtx.Limiter != nil {
		if err := runCtx.Limiter.Increment(); err != nil {
			return nil, err
		}
	}

	llm := f.agent.GetLLM()
	if llm == nil {
		return nil, errors.New("agent has no model")
	}

	respCh, errCh := llm.Generate(runCtx.Context, *req)

	var (
		lastEvent *core.Event
		turnErr   error
	)

	for resp := range respCh {
		if turnErr != nil {
			continue // drain so the provider goroutine can finish
		}

		last, err := f.handleResponse(runCtx, resp)
		if err != nil {
			turnErr = err
			continue
		}

		if last != nil {
			lastEvent = last
		}
	}

	if err, ok := <-errCh; ok && err != nil {
		return lastEvent, fmt.Errorf("model %s: %w", llm.Info().Name, err)
	}

	return lastEvent, turnErr
}

func (f *BaseFlow) handleResponse(runCtx *core.RunContext, resp model.Response) (*core.Event, error) {
	for _, processor := range f.responseProcessors {
		if err := processor.ProcessResponse(runCtx, &resp, f.agent); err != nil {
			return nil, fmt.Errorf("response processor %s failed: %w", processor.Name(), err)
		}
	}

	ev := core.NewEvent(runCtx.RunID, f.agent.GetName())
	content := resp.Content
	ev.Content = &content
	partial := resp.Partial
	ev.Partial = &partial

	if partial {
		return nil, runCtx.EmitEvent(ev)
	}

	if resp.Usage != nil {
		runCtx.LogDebug(
			"agent.model.usage",
			"agent", f.agent.GetName(),
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
		)
	}

	fnCalls := ev.GetFunctionCalls()
	if len(fnCalls) == 0 {
		complete := true
		ev.TurnComplete = &complete

		if key := f.agent.GetOutputKey(); key != "" {
			runCtx.SetState(key, strings.Join(ev.Texts(), ""))
		}
	}

	if err := f.emit(runCtx, ev); err != nil {
		return nil, err
	}

	lastEvent := &ev

	if len(fnCalls) > 0 {
		var emitErr error
		f.executor.Execute(runCtx, f.agent, f.agent.GetTools(), fnCalls, func(respEv core.Event) error {
			if err := f.emit(runCtx, respEv); err != nil {
				emitErr = err
				return err
			}
			lastEvent = &respEv
			return nil
		})

		if emitErr != nil {
			return nil, emitErr
		}
	}

	return lastEvent, nil
}

// toolDefinitions declares the agent tools sorted by name.
func (f *BaseFlow) toolDefinitions() []model.ToolDefinition {
	tools := f.agent.GetTools()
	if len(tools) == 0 {
		return nil
	}

	names := lo.Keys(tools)
	slices.Sort(names)

	return lo.Map(names, func(name string, _ int) model.ToolDefinition {
		t := tools[name]
		return model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		}
	})
}
