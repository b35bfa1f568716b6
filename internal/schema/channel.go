// Package schema defines the records shared across the memory coordination
// layer: live-session presence, topics, handoff signals, durable conversation
// memories, preferences, and tasks.
package schema

// Channel identifies one communication surface the user talks through.
type Channel string

const (
	ChannelVoice    Channel = "voice"
	ChannelTelegram Channel = "telegram"
	ChannelSlack    Channel = "slack"
	ChannelWeb      Channel = "web"
	ChannelCLI      Channel = "cli"
)

// KnownChannels lists every channel the coordination layer accepts.
var KnownChannels = []Channel{
	ChannelVoice,
	ChannelTelegram,
	ChannelSlack,
	ChannelWeb,
	ChannelCLI,
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	for _, k := range KnownChannels {
		if c == k {
			return true
		}
	}
	return false
}

func (c Channel) String() string { return string(c) }
