package backend

import "context"

// Mock is a first-class backend variant (spec §9 Design Notes: "Mock
// backends should be a first-class variant, not a conditional inside the
// real ones") that returns a scripted sequence of canned responses, one per
// call, repeating the last response once exhausted. Used by unit and
// acceptance tests to drive the Agent Loop and Sprint Scheduler
// deterministically.
type Mock struct {
	Responses []string
	calls     int
	Invocations []MockInvocation
}

// MockInvocation records one call for test assertions.
type MockInvocation struct {
	Prompt string
	CWD    string
}

func (m *Mock) Run(ctx context.Context, prompt, cwd string, status StatusFunc) (Result, error) {
	m.Invocations = append(m.Invocations, MockInvocation{Prompt: prompt, CWD: cwd})
	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++
	if idx < 0 {
		return Result{Content: ""}, nil
	}
	return Result{Content: m.Responses[idx]}, nil
}

// Calls returns the number of times Run has been invoked.
func (m *Mock) Calls() int { return m.calls }
