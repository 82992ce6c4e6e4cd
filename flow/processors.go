package flow

import (
	"fmt"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/internal/util"
	"github.com/hupe1980/edumesh/model"
)

// InstructionsProcessor resolves the agent instruction and renders it as a
// template against the visible session state.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets req.Instructions.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	runCtx.LogDebug("agent.instruction.resolved", "agent", agent.GetName(), "length", len(instructions))

	rendered, err := util.RenderTemplate(instructions, runCtx.State())
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	req.Instructions = rendered

	return nil
}

// ContentsProcessor copies the trailing conversation history into the request.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest sets req.Contents from the session history.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	var contents []core.Content

	if runCtx.Session != nil {
		events := runCtx.Session.GetConversationHistory()
		if limit := agent.MaxHistoryMessages(); limit > 0 && len(events) > limit {
			events = events[len(events)-limit:]
		}

		for _, ev := range events {
			if ev.Content != nil && len(ev.Content.Parts) > 0 {
				contents = append(contents, *ev.Content)
			}
		}
	}

	// Without a persisted session the run's user content is the only input.
	if len(contents) == 0 && len(runCtx.UserContent.Parts) > 0 {
		contents = append(contents, runCtx.UserContent)
	}

	req.Contents = contents

	return nil
}

// StreamingProcessor toggles req.Stream from the agent configuration.
type StreamingProcessor struct{}

// NewStreamingProcessor creates a new streaming processor.
func NewStreamingProcessor() *StreamingProcessor { return &StreamingProcessor{} }

// Name returns the processor's identifier.
func (p *StreamingProcessor) Name() string { return "streaming" }

// ProcessRequest sets req.Stream.
func (p *StreamingProcessor) ProcessRequest(_ *core.RunContext, req *model.Request, agent FlowAgent) error {
	req.Stream = agent.IsStreamingEnabled()
	return nil
}
