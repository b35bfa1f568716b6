package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/pearl-assistant/pearl/internal/bus"
	"github.com/pearl-assistant/pearl/internal/schema"
)

// Request is everything a Responder gets for one inbound message. Context
// and Handoff are only set on the first message of a conversation.
type Request struct {
	Message bus.InboundMessage
	Context string                // cross-session context block, "" when none
	Handoff *schema.HandoffSignal // consumed handoff, nil when none
	Turns   []schema.Turn         // transcript so far, including this message
}

// Reply is the responder's answer. An empty Text sends nothing; a non-empty
// Topic updates the channel's active topic.
type Reply struct {
	Text  string
	Topic string
}

// Responder produces the assistant's reply for one inbound message.
type Responder interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, req Request) (Reply, error)

func (f ResponderFunc) Respond(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}

// EchoResponder is the built-in responder used when no assistant backend is
// wired in: it acknowledges each message and, on the first message of a
// conversation, surfaces the carried-over context and any pending handoff.
// It exists so the memory layer can be exercised end to end from any channel.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, req Request) (Reply, error) {
	var b strings.Builder

	if req.Handoff != nil {
		fmt.Fprintf(&b, "Picking up from %s: %s\n\n", req.Handoff.FromChannel, req.Handoff.ContextSummary)
	}
	if req.Context != "" {
		fmt.Fprintf(&b, "%s\n\n", req.Context)
	}
	fmt.Fprintf(&b, "Got it: %s", req.Message.ContentPreview())

	return Reply{Text: b.String()}, nil
}
