// Package flow drives the model turn loop of a model agent: request
// processors assemble the model request, the model is called, returned
// function calls are executed and the loop repeats until the model produces
// a final answer.
package flow

import (
	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/model"
	"github.com/hupe1980/edumesh/tool"
)

// Flow defines the interface for agent execution flows.
//
// Execute emits every event through runCtx and waits for the runner to
// persist non-partial events before continuing.
type Flow interface {
	Execute(runCtx *core.RunContext) error
}

// FlowAgent defines what a flow needs from the agent driving it.
type FlowAgent interface {
	// GetName returns the agent's display name.
	GetName() string

	// GetLLM returns the language model instance.
	GetLLM() model.Model

	// ResolveInstructions returns the raw (unrendered) system instruction.
	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// GetTools returns the registered tools for function calling.
	GetTools() map[string]tool.Tool

	// IsStreamingEnabled returns whether streaming responses are enabled.
	IsStreamingEnabled() bool

	// GetOutputKey returns the session state key the final answer is saved under.
	GetOutputKey() string

	// MaxHistoryMessages returns the maximum number of conversation history messages to keep.
	MaxHistoryMessages() int
}

// RequestProcessor processes the request before sending it to the LLM.
type RequestProcessor interface {
	Name() string
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// ResponseProcessor processes the response after receiving it from the LLM.
type ResponseProcessor interface {
	Name() string
	ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error
}
