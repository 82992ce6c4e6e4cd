package agent

import (
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/flow"
	"github.com/hupe1980/edumesh/model"
	"github.com/hupe1980/edumesh/tool"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction        Instruction
	Description        string
	EnableStreaming    bool
	OutputKey          string
	MaxHistoryMessages int
	Tools              []tool.Tool
	// Executor runs tool calls. Defaults to an order-preserving parallel executor.
	Executor flow.FunctionExecutor
}

// ModelAgent drives a language model with registered tools.
//
// Each Run executes a SingleAgentFlow: the instruction is rendered against
// session state, the conversation history is sent to the model and tool calls
// are executed until the model answers. With an OutputKey the final answer is
// also saved to session state.
type ModelAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	tools              map[string]tool.Tool
	enableStreaming    bool
	outputKey          string
	maxHistoryMessages int
	executor           flow.FunctionExecutor
}

var _ flow.FlowAgent = (*ModelAgent)(nil)

// NewModelAgent creates a new model-based agent with sensible defaults.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful tutor.", name)),
		MaxHistoryMessages: 20,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent:          NewBaseAgent(name, "model"),
		llm:                llm,
		instruction:        opts.Instruction,
		tools:              make(map[string]tool.Tool, len(opts.Tools)),
		enableStreaming:    opts.EnableStreaming,
		outputKey:          opts.OutputKey,
		maxHistoryMessages: opts.MaxHistoryMessages,
		executor:           opts.Executor,
	}

	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}

	a.RegisterTools(opts.Tools...)

	return a
}

// RegisterTool adds a tool; a tool with the same name is replaced.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// ListTools returns the sorted names of all registered tools.
func (a *ModelAgent) ListTools() []string {
	return slices.Sorted(maps.Keys(a.tools))
}

// GetName returns the agent's display name.
func (a *ModelAgent) GetName() string { return a.Name() }

// GetLLM returns the language model instance.
func (a *ModelAgent) GetLLM() model.Model { return a.llm }

// GetTools returns a copy of the registered tools.
func (a *ModelAgent) GetTools() map[string]tool.Tool { return maps.Clone(a.tools) }

// IsStreamingEnabled returns whether streaming responses are enabled.
func (a *ModelAgent) IsStreamingEnabled() bool { return a.enableStreaming }

// GetOutputKey returns the session state key for saving responses.
func (a *ModelAgent) GetOutputKey() string { return a.outputKey }

// MaxHistoryMessages returns the maximum number of conversation history messages to keep.
func (a *ModelAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// ResolveInstructions resolves the static or dynamic instruction.
func (a *ModelAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return a.instruction.Resolve(runCtx)
}

// Run implements core.Agent.
func (a *ModelAgent) Run(runCtx *core.RunContext) error {
	runCtx.LogDebug("agent.run.start", "agent", a.Name(), "run", runCtx.RunID, "model", a.llm.Info().Name)

	fl := flow.NewSingleAgentFlow(a, func(o *flow.Options) {
		if a.executor != nil {
			o.Executor = a.executor
		}
	})

	if err := fl.Execute(runCtx); err != nil {
		runCtx.LogError("agent.flow.execute.error", "agent", a.Name(), "error", err)
		return fmt.Errorf("flow execution failed: %w", err)
	}

	runCtx.LogDebug("agent.flow.execute.complete", "agent", a.Name())

	return nil
}
