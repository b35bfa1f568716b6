package schema

import "time"

// Turn is one entry of a session's raw conversation history, as accumulated
// by the transport adapter and handed to teardown. The coordination layer
// never retains turns beyond the teardown call.
type Turn struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the structured output of summarizing one session's turns.
type Summary struct {
	Text         string   `json:"summary"`
	Topics       []string `json:"topics"`
	KeyDecisions []string `json:"key_decisions"`
	ActionItems  []string `json:"action_items"`
	OneLiner     string   `json:"one_liner"`
}
