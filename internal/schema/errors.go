package schema

import "errors"

// Error taxonomy for the coordination layer. Callers match with errors.Is;
// wrapping preserves the backend detail for logs.
var (
	// ErrStoreUnavailable marks an unreachable or timed-out backing store.
	// Most paths degrade to a logged no-op instead of surfacing it.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSummarizationFailed marks a summarizer error or timeout. Never
	// propagated past the conversation manager; teardown substitutes a
	// degraded one-liner summary.
	ErrSummarizationFailed = errors.New("summarization failed")

	// ErrInvalidTransition marks a task status change the state machine
	// forbids. Unlike the store errors it is returned to the caller as-is:
	// task-state integrity is a contract, not a best-effort feature.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrNotFound marks a lookup miss on paths where absence is genuinely
	// an error. Plain reads return absent values instead.
	ErrNotFound = errors.New("not found")
)
