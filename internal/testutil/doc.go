// Package testutil contains builders and shared conformance checks used
// across tests: fluent constructors for sessions and events, tutoring turn
// fixtures and a behavioural suite every core.SessionStore must pass. It is
// not intended for production usage.
package testutil
