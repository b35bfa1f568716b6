// Package summarizer turns a finished session's raw turns into a structured
// summary. The actual text understanding is an external capability; callers
// invoke it with a bounded timeout and fall back to a degraded one-liner when
// it fails, so summarization can never block session teardown.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/pearl-assistant/pearl/internal/schema"
)

// DefaultMaxInputBytes bounds the rendered transcript handed to the backend.
const DefaultMaxInputBytes = 48 * 1024

// Summarizer produces a structured summary of an ordered list of turns.
type Summarizer interface {
	Summarize(ctx context.Context, turns []schema.Turn) (schema.Summary, error)
}

// Func adapts a plain function to the Summarizer interface.
type Func func(ctx context.Context, turns []schema.Turn) (schema.Summary, error)

func (f Func) Summarize(ctx context.Context, turns []schema.Turn) (schema.Summary, error) {
	return f(ctx, turns)
}

// Degraded returns the fallback summary used when summarization fails or
// times out: only the one-liner is populated.
func Degraded(channel schema.Channel, messageCount int) schema.Summary {
	line := fmt.Sprintf("%s session ended; %d messages, summary unavailable", channel, messageCount)
	return schema.Summary{Text: line, OneLiner: line}
}

// RenderTranscript formats turns as "role: text" lines, deterministically
// dropping turns from the middle (replaced by an omission marker) until the
// result fits maxBytes. Oversized input degrades, it never fails.
func RenderTranscript(turns []schema.Turn, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxInputBytes
	}

	lines := make([]string, len(turns))
	total := 0
	for i, t := range turns {
		lines[i] = fmt.Sprintf("[%s] %s: %s",
			t.Timestamp.UTC().Format("2006-01-02T15:04"), t.Role, t.Text)
		total += len(lines[i]) + 1
	}

	omitted := 0
	for total > maxBytes && len(lines) > 2 {
		// Remove the middle line; head and tail carry the most signal
		// (opening intent and final state).
		mid := len(lines) / 2
		total -= len(lines[mid]) + 1
		lines = append(lines[:mid], lines[mid+1:]...)
		omitted++
	}

	if omitted > 0 {
		mid := len(lines) / 2
		marker := fmt.Sprintf("... (%d turns omitted) ...", omitted)
		lines = append(lines[:mid], append([]string{marker}, lines[mid:]...)...)
	}

	return strings.Join(lines, "\n")
}
