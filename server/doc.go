// Package server exposes the conversation engine over a local HTTP
// interface: JSON request/response endpoints plus newline-delimited JSON
// streams for live generation, with permissive CORS for the embedding
// desktop shell.
package server
