// Package memory contains core.MemoryStore implementations. Sessions are
// flattened into records (a student profile, the retrieved context summary,
// the chosen explanation style and every conversational message) which are
// then recalled by keyword overlap with a query.
//
// InMemoryStore keeps records in process; memory/sqlite persists them.
package memory
