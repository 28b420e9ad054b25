// Package core defines the shared data model of the desk agent: conversation
// messages and records, the closed event taxonomy used by the streaming
// protocol, and identifier generation. All higher-level packages (history,
// agent, server) depend on core and core depends on nothing but the standard
// library and uuid.
package core
