// Package model defines the provider-agnostic completion abstraction used by
// the orchestrator.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI-compatible, Anthropic) implement the Model interface from
// this package so the orchestrator remains decoupled from vendor SDKs. The
// provider call is treated as an opaque, possibly slow, possibly failing
// remote operation; no mid-stream cancellation beyond ctx is supported.
package model
