// Package service exposes the memory layer as one facade. Channel adapters
// and commands talk to Memory instead of the individual stores, so the
// session lifecycle (register, context, handoff check, teardown) stays in
// one place.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pearl-assistant/pearl/internal/conversation"
	"github.com/pearl-assistant/pearl/internal/facts"
	"github.com/pearl-assistant/pearl/internal/handoff"
	"github.com/pearl-assistant/pearl/internal/registry"
	"github.com/pearl-assistant/pearl/internal/schema"
)

// SessionStart is what a channel adapter gets back when a session opens:
// a rendered cross-session context block (may be empty) and a pending
// handoff for this user on this channel, if one was consumed.
type SessionStart struct {
	Context string
	Handoff *schema.HandoffSignal
}

// Memory is the coordination facade over the session registry, the handoff
// coordinator, the conversation manager, and the preference/task store.
type Memory struct {
	sessions      *registry.Registry
	handoffs      *handoff.Coordinator
	conversations *conversation.Manager
	facts         *facts.Store
}

// New assembles the facade. All four collaborators are required.
func New(sessions *registry.Registry, handoffs *handoff.Coordinator, conversations *conversation.Manager, facts *facts.Store) (*Memory, error) {
	if sessions == nil || handoffs == nil || conversations == nil || facts == nil {
		return nil, fmt.Errorf("memory service: missing collaborator")
	}
	return &Memory{
		sessions:      sessions,
		handoffs:      handoffs,
		conversations: conversations,
		facts:         facts,
	}, nil
}

// OnSessionStart registers the session, builds the cross-session context
// block, and consumes any handoff addressed to this channel. Registration
// and handoff consumption degrade to no-ops when the ephemeral store is
// down, so a session always starts; only the context may be thinner.
func (m *Memory) OnSessionStart(ctx context.Context, channel schema.Channel, sessionID, userID string) (SessionStart, error) {
	if err := m.sessions.Register(ctx, channel, sessionID, userID); err != nil {
		return SessionStart{}, fmt.Errorf("session start: %w", err)
	}

	start := SessionStart{}

	block, err := m.conversations.BuildContext(ctx, channel)
	if err != nil {
		slog.Warn("context unavailable at session start", "channel", channel, "err", err)
	} else {
		start.Context = block
	}

	sig, err := m.handoffs.Check(ctx, userID, channel)
	if err != nil {
		slog.Warn("handoff check failed at session start", "channel", channel, "err", err)
	} else {
		start.Handoff = sig
	}

	return start, nil
}

// OnSessionEnd runs the teardown pipeline: summarize, persist, narrative
// log, deregister. See conversation.Manager.OnSessionEnd for the degradation
// contract of each step.
func (m *Memory) OnSessionEnd(ctx context.Context, sessionID string, channel schema.Channel, userID string, startedAt time.Time, turns []schema.Turn) (conversation.TeardownReport, error) {
	return m.conversations.OnSessionEnd(ctx, sessionID, channel, userID, startedAt, turns)
}

// Heartbeat refreshes the session's liveness TTL.
func (m *Memory) Heartbeat(ctx context.Context, channel schema.Channel, sessionID string) error {
	return m.sessions.Heartbeat(ctx, channel, sessionID)
}

// SetTopic records the channel's current topic and drops any cached context
// blocks that would now be stale.
func (m *Memory) SetTopic(ctx context.Context, channel schema.Channel, topic string) error {
	if err := m.sessions.SetTopic(ctx, channel, topic); err != nil {
		return err
	}
	m.conversations.InvalidateContext()
	return nil
}

// ListActiveSessions returns the sessions currently alive across channels.
func (m *Memory) ListActiveSessions(ctx context.Context) ([]schema.Session, error) {
	return m.sessions.ListActiveSessions(ctx)
}

// GetTopics returns the live topic per channel.
func (m *Memory) GetTopics(ctx context.Context) (map[schema.Channel]schema.TopicState, error) {
	return m.sessions.GetTopics(ctx)
}

// GetCrossSessionContext renders the context block a new session on channel
// would receive.
func (m *Memory) GetCrossSessionContext(ctx context.Context, channel schema.Channel) (string, error) {
	return m.conversations.BuildContext(ctx, channel)
}

// GetRecentConversations returns finished-session memories, newest first,
// optionally filtered by channel and a lower time bound.
func (m *Memory) GetRecentConversations(ctx context.Context, limit int, channel schema.Channel, since time.Time) ([]schema.ConversationMemory, error) {
	return m.conversations.GetRecent(ctx, limit, channel, since)
}

// SignalHandoff announces that the user is moving to another channel.
func (m *Memory) SignalHandoff(ctx context.Context, userID string, from, to schema.Channel, contextSummary string) error {
	return m.handoffs.Signal(ctx, userID, from, to, contextSummary)
}

// CheckHandoff consumes a pending handoff addressed to channel, if any.
func (m *Memory) CheckHandoff(ctx context.Context, userID string, channel schema.Channel) (*schema.HandoffSignal, error) {
	return m.handoffs.Check(ctx, userID, channel)
}

// LearnPreference upserts a user preference and returns the new record plus
// the one it replaced, if any.
func (m *Memory) LearnPreference(ctx context.Context, userID, key, value, category string, confidence float64, learnedFrom string) (schema.UserPreference, *schema.UserPreference, error) {
	return m.facts.LearnPreference(ctx, userID, key, value, category, confidence, learnedFrom)
}

// GetPreference returns the current value for (userID, key).
func (m *Memory) GetPreference(ctx context.Context, userID, key string) (string, bool, error) {
	return m.facts.GetPreference(ctx, userID, key)
}

// GetPreferences lists the user's preferences, newest-confirmed first.
// An empty category means all categories.
func (m *Memory) GetPreferences(ctx context.Context, userID, category string) ([]schema.UserPreference, error) {
	return m.facts.GetPreferences(ctx, userID, category)
}

// CreateTask records a new pending task for the user.
func (m *Memory) CreateTask(ctx context.Context, userID, title, description string, channel schema.Channel) (schema.ActiveTask, error) {
	return m.facts.CreateTask(ctx, userID, title, description, channel)
}

// GetActiveTasks lists the user's non-terminal tasks, newest first.
func (m *Memory) GetActiveTasks(ctx context.Context, userID string) ([]schema.ActiveTask, error) {
	return m.facts.GetActiveTasks(ctx, userID)
}

// TransitionTask moves a task through its state machine.
func (m *Memory) TransitionTask(ctx context.Context, taskID string, to schema.TaskStatus) (schema.ActiveTask, error) {
	return m.facts.Transition(ctx, taskID, to)
}

// CompleteTask marks the task done.
func (m *Memory) CompleteTask(ctx context.Context, taskID string) (schema.ActiveTask, error) {
	return m.facts.CompleteTask(ctx, taskID)
}
