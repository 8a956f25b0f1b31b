// Package backend implements the Backend Runner (spec §4.B): a pluggable
// subprocess/streaming-API abstraction with activity-based timeout,
// concurrent stdout/stderr draining, and a status callback channel.
//
// Grounded on original_source/agents/cursor/client.py (activity-timeout
// algorithm, environment allowlist) and the teacher's internal/engine.go
// invokeAgent (PTY subprocess plumbing via github.com/creack/pty).
package backend

import (
	"context"
	"errors"
)

// Result is what one backend invocation returns to the Agent Loop.
type Result struct {
	Content string
	Usage   *Usage
}

// Usage carries best-effort token accounting; nil when a backend doesn't
// report it (the CLI-subprocess variant typically can't).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// StatusFunc receives human-readable progress lines as a backend streams;
// it is wired to the Agent Loop's state-publish hook, never required.
type StatusFunc func(line string)

// ErrBackendMissing is a distinct fatal error for a missing CLI binary
// (spec §4.B "Missing binary is a distinct fatal error").
var ErrBackendMissing = errors.New("backend: binary not found")

// Backend is the single operation every variant implements: given a prompt
// and a working directory, return a Result (spec §4.B).
type Backend interface {
	Run(ctx context.Context, prompt, cwd string, status StatusFunc) (Result, error)
}
