package agent

import (
	"fmt"

	"github.com/hupe1980/edumesh/core"
)

// SequentialAgent runs child agents one after another on the same session.
//
// Each child receives its own RunContext clone bound to the child's name, so
// events carry the correct author and branch. Because agents wait for every
// non-partial event to be persisted, a child sees all events of its
// predecessors when it refreshes the session. The first error stops the
// sequence.
type SequentialAgent struct {
	BaseAgent
	children []core.Agent
}

// NewSequentialAgent creates a new sequential execution coordinator.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	s := &SequentialAgent{
		BaseAgent: NewBaseAgent(name, "sequential"),
		children:  children,
	}
	_ = s.SetSubAgents(children...)
	return s
}

// Start starts the coordinator and every child. Children already started are
// stopped again if a later one fails.
func (s *SequentialAgent) Start(runCtx *core.RunContext) error {
	if err := s.BaseAgent.Start(runCtx); err != nil {
		return err
	}

	for i, child := range s.children {
		if err := child.Start(runCtx); err != nil {
			for _, started := range s.children[:i] {
				_ = started.Stop(runCtx)
			}
			_ = s.BaseAgent.Stop(runCtx)
			return fmt.Errorf("start %s: %w", child.Name(), err)
		}
	}

	return nil
}

// Stop stops every child then the coordinator and reports the first failure.
func (s *SequentialAgent) Stop(runCtx *core.RunContext) error {
	var firstErr error

	for _, child := range s.children {
		if err := child.Stop(runCtx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", child.Name(), err)
		}
	}

	if err := s.BaseAgent.Stop(runCtx); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// Run implements core.Agent.
func (s *SequentialAgent) Run(runCtx *core.RunContext) error {
	for _, child := range s.children {
		if err := runCtx.Err(); err != nil {
			return err
		}

		runCtx.LogDebug("agent.sequential.step", "agent", s.Name(), "child", child.Name())

		if err := child.Run(runCtx.WithAgent(infoOf(child))); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}
