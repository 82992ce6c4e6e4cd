// Package core provides the foundational domain types, interfaces and execution
// contexts used by edumesh. It defines the core abstractions for:
//
//   - Agents (units of autonomous / orchestrated work)
//   - Sessions (stateful conversational containers with event history)
//   - Events (immutable communication + orchestration records)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - Pluggable stores for session state and long-term memory
//
// Implementation concerns (persistence backends, runner orchestration,
// concrete agents) live in sibling packages that depend on core.
package core
