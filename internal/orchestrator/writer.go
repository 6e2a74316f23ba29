package orchestrator

// Writer emits the SSE event grammar spec §4.5 defines. Implementations
// live in internal/gateway, which owns the http.ResponseWriter/Flusher;
// the orchestrator is kept transport-agnostic so it can be driven by
// httptest-backed fakes in tests, mirroring the teacher's pattern of a
// consumer-owned writer (spec §9 Design Notes).
type Writer interface {
	// Session emits the initial `event: session` frame.
	Session(sessionID string) error
	// Delta emits a default-event `data: {"delta": "..."}` frame.
	Delta(text string) error
	// Status emits an `event: status` informational frame.
	Status(message string) error
	// Done emits the terminating `data: [DONE]` frame.
	Done() error
	// Error emits an `event: error` frame with an opaque reason.
	Error(reason string) error
}
