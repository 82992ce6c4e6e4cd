package core

// Agent defines the interface that all agents must implement.
//
// Agents receive a RunContext, process it and emit events through it. The
// runner owns the Start/Stop lifecycle; composite agents call Run on their
// children directly.
//
// Implementations must:
//   - Respect context cancellation
//   - Emit events through the provided RunContext
//   - Wait for the resume signal after non-partial events when they depend
//     on the persisted session
type Agent interface {
	Name() string
	Description() string
	Start(runCtx *RunContext) error
	Stop(runCtx *RunContext) error
	Run(runCtx *RunContext) error
	SetSubAgents(children ...Agent) error
	SubAgents() []Agent
	Parent() Agent
	FindAgent(name string) Agent
}

// AgentInfo carries identifying details about an agent used in contexts & events.
// Name is the external identifier; Type categorizes implementation (e.g. "model", "sequential").
type AgentInfo struct{ Name, Type string }
