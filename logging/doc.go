// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing callers to plug
// any structured logger. The orchestrator, scheduler and HTTP server all take
// a Logger through their Options; tests pass NoOpLogger.
package logging
