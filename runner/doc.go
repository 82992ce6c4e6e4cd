// Package runner executes a root agent for one conversational turn.
//
// A run binds a session, the user's content and the root agent. The runner
// appends the user event, starts the agent on its own goroutine and
// processes every emitted event in order:
//
//  1. OnStateChange callbacks may reject the event's state delta
//  2. the delta is applied to the session store
//  3. the event is appended to the session history
//  4. OnEvent callbacks observe it and the event is delivered to the caller
//  5. the agent is resumed so it can read the persisted session
//
// When the agent finishes, AfterAgent callbacks run synchronously before the
// event channel closes. Post-turn work such as session state
// synchronisation hooks in there, so callers that drain the channel observe
// its effects.
//
// Partial (streaming) events are delivered but never persisted.
package runner
