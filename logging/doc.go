// Package logging provides a minimal logging interface and adapters for edumesh.
//
// The Logger interface defines the structured logging methods (Debug, Info,
// Warn, Error) that the runner, agents, tools and the state sync step use.
// Messages are dotted event names ("runner.run.start") followed by key/value
// pairs. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping log/slog
//   - ZapAdapter wrapping go.uber.org/zap with optional rotating file output
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger, closeFn, err := logging.New(logging.Config{Backend: "zap", Level: "info", File: "edumesh.log"})
//	if err != nil { ... }
//	defer closeFn()
package logging
