// Package bus defines the message types that flow between channel adapters
// and the session runner.
package bus

import (
	"time"

	"github.com/pearl-assistant/pearl/internal/schema"
)

// InboundMessage is a message received from a chat channel.
type InboundMessage struct {
	Channel   schema.Channel // source channel
	SenderID  string         // user identifier within the channel
	ChatID    string         // chat / DM identifier
	Content   string         // message text
	Timestamp time.Time      // when the message was received
	Metadata  map[string]any // channel-specific extra data (message_id, thread_ts, …)
}

// SessionKey returns the key used to look up the live session for this
// conversation. Format: "channel:chat_id".
func (m InboundMessage) SessionKey() string {
	return string(m.Channel) + ":" + m.ChatID
}

// ContentPreview returns a short snippet of the message content for logging.
// The cut lands on a rune boundary so the preview stays valid UTF-8.
func (m InboundMessage) ContentPreview() string {
	runes := []rune(m.Content)
	if len(runes) > 80 {
		return string(runes[:80]) + "..."
	}
	return m.Content
}

// OutboundMessage is a response to be sent back through a channel.
type OutboundMessage struct {
	Channel  schema.Channel // destination channel
	ChatID   string         // destination chat / DM identifier
	Content  string         // text to send
	Metadata map[string]any // channel-specific hints (thread_ts, parse_mode, …)
}

// MessageBus decouples chat channels from the session runner.
//
// Channels push InboundMessages; the runner consumes them, processes, and
// pushes OutboundMessages back for the channel manager to route. Both
// directions are buffered to absorb short bursts; a sender still blocks once
// the buffer fills.
type MessageBus struct {
	Inbound  chan InboundMessage  // channels → runner
	Outbound chan OutboundMessage // runner → channels
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound:  make(chan InboundMessage, bufSize),
		Outbound: make(chan OutboundMessage, bufSize),
	}
}
