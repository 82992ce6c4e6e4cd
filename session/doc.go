// Package session houses concrete implementations of core.SessionStore.
//
// The interface and the Session type live in core so agents and the runner
// never depend on a storage backend. This package provides the in-memory
// store; durable backends live in sub-packages:
//
//   - session/sqlite: embedded SQL storage (modernc.org/sqlite)
//   - session/redis: shared storage for multi-replica deployments
//   - session/cache: a read-through TTL cache in front of any store
//
// Only the wiring layer decides which implementation to instantiate.
package session
