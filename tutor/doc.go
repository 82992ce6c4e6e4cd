// Package tutor assembles the textbook tutoring pipeline:
//
//	rag_agent -> explanation_main_agent
//
// rag_agent retrieves textbook passages once per session for the
// curriculum named in the student's first message. explanation_main_agent is
// a model agent that shows the passages, asks for an explanation style and
// explains in that style. After every turn a statesync.Syncer folds the
// turn's events into session state.
package tutor
