// Package agent contains the agent implementations the tutoring pipeline is
// assembled from:
//
//  1. BaseAgent: lifecycle (Start/Stop) and hierarchy plumbing
//  2. SequentialAgent: runs child agents in order on a shared session
//  3. ModelAgent: a model-driven, tool-calling agent backed by flow
//
// Every agent receives a *core.RunContext, emits events through it and waits
// for the runner to persist each non-partial event before continuing, so a
// later agent in a sequence observes everything an earlier one produced.
package agent
