package flow

// SingleAgentFlow implements the execution flow for a standalone model agent.
// It wires the default processors for instruction rendering, content
// assembly and streaming, then relays model events.
type SingleAgentFlow struct{ *BaseFlow }

// NewSingleAgentFlow creates a new single-agent flow.
func NewSingleAgentFlow(agent FlowAgent, optFns ...func(o *Options)) *SingleAgentFlow {
	baseFlow := NewBaseFlow(agent, optFns...)

	baseFlow.AddRequestProcessor(NewInstructionsProcessor())
	baseFlow.AddRequestProcessor(NewContentsProcessor())
	baseFlow.AddRequestProcessor(NewStreamingProcessor())

	return &SingleAgentFlow{BaseFlow: baseFlow}
}
