package schema

import (
	"fmt"
	"time"
)

// Timestamps are normalised to whole-second UTC before persistence so their
// RFC 3339 encodings are uniform length and sort lexicographically in time
// order (the durable store orders on the encoded field).
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Session is the presence record for one live conversation on one channel.
// It lives in the ephemeral store and is visible for at most the session TTL
// after the last heartbeat; an absent record means the session is over for
// coordination purposes even if the owning process never ran teardown.
type Session struct {
	SessionID    string    `json:"sessionId"`
	Channel      Channel   `json:"channel"`
	UserID       string    `json:"userId,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

func (s *Session) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session: missing sessionId")
	}
	if !s.Channel.Valid() {
		return fmt.Errorf("session: unknown channel %q", s.Channel)
	}
	return nil
}

// TopicState is the current subject of conversation on one channel.
// At most one per channel, last writer wins, expires via the topic TTL.
type TopicState struct {
	Channel   Channel   `json:"channel"`
	Topic     string    `json:"topic"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *TopicState) Validate() error {
	if !t.Channel.Valid() {
		return fmt.Errorf("topic: unknown channel %q", t.Channel)
	}
	if t.Topic == "" {
		return fmt.Errorf("topic: empty topic")
	}
	return nil
}

// HandoffSignal is a one-shot "user switched channel" notification. Keyed by
// user: a new signal overwrites any prior unconsumed one. The first reader on
// the target channel consumes it; the TTL bounds how stale a carried-over
// context can be.
type HandoffSignal struct {
	UserID         string    `json:"userId"`
	FromChannel    Channel   `json:"fromChannel"`
	ToChannel      Channel   `json:"toChannel"`
	ContextSummary string    `json:"contextSummary"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (h *HandoffSignal) Validate() error {
	if h.UserID == "" {
		return fmt.Errorf("handoff: missing userId")
	}
	if !h.FromChannel.Valid() {
		return fmt.Errorf("handoff: unknown fromChannel %q", h.FromChannel)
	}
	if !h.ToChannel.Valid() {
		return fmt.Errorf("handoff: unknown toChannel %q", h.ToChannel)
	}
	return nil
}

// ConversationMemory is the durable, structured summary of one finished
// session. Written exactly once at teardown and never updated; a repeated
// teardown for the same sessionId is rejected by the durable store.
type ConversationMemory struct {
	SessionID    string    `json:"sessionId"`
	Channel      Channel   `json:"channel"`
	UserID       string    `json:"userId,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	Summary      string    `json:"summary"`
	Topics       []string  `json:"topics,omitempty"`
	KeyDecisions []string  `json:"keyDecisions,omitempty"`
	ActionItems  []string  `json:"actionItems,omitempty"`
	MessageCount int       `json:"messageCount"`
}

func (m *ConversationMemory) Validate() error {
	if m.SessionID == "" {
		return fmt.Errorf("conversation memory: missing sessionId")
	}
	if !m.Channel.Valid() {
		return fmt.Errorf("conversation memory: unknown channel %q", m.Channel)
	}
	if m.EndedAt.Before(m.StartedAt) {
		return fmt.Errorf("conversation memory: endedAt before startedAt")
	}
	if m.MessageCount < 0 {
		return fmt.Errorf("conversation memory: negative messageCount")
	}
	return nil
}

// UserPreference is a learned, possibly-revised fact about the user.
// At most one current value per (userId, key); a new observation overwrites
// the old one, and the caller is told what it replaced.
type UserPreference struct {
	UserID          string    `json:"userId"`
	Category        string    `json:"category"`
	Key             string    `json:"key"`
	Value           string    `json:"value"`
	Confidence      float64   `json:"confidence"`
	LearnedFrom     string    `json:"learnedFrom,omitempty"` // sessionId the fact came from
	LastConfirmedAt time.Time `json:"lastConfirmedAt"`
}

func (p *UserPreference) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("preference: missing userId")
	}
	if p.Key == "" {
		return fmt.Errorf("preference: missing key")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("preference: confidence %v outside [0,1]", p.Confidence)
	}
	return nil
}
