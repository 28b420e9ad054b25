// Package agent implements the conversation orchestrator: the single
// serialization point through which every conversation-mutating operation
// flows. One process-wide exclusive lock guards the history, the active
// completion-provider binding and the scheduler registration, and is held
// for the full duration of any generation including the blocking provider
// round-trip. This caps the system at one concurrent generation by design,
// trading throughput for the guarantee that history mutations never
// interleave.
package agent
