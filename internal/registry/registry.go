// Package registry tracks which sessions are currently active on each
// channel and what they are discussing. State lives in the ephemeral store
// under TTLs, so a crashed session disappears on its own; nothing here is
// authoritative beyond the TTL window.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pearl-assistant/pearl/internal/ephemeral"
	"github.com/pearl-assistant/pearl/internal/schema"
)

const (
	sessionKeyPrefix = "session:"
	topicKeyPrefix   = "topic:"
)

// Registry owns session lifecycle (register/heartbeat/deregister) and the
// per-channel topic state.
type Registry struct {
	store      ephemeral.Store
	sessionTTL time.Duration
	topicTTL   time.Duration
	now        func() time.Time
}

// New creates a Registry over store with the given TTLs.
func New(store ephemeral.Store, sessionTTL, topicTTL time.Duration) *Registry {
	return &Registry{
		store:      store,
		sessionTTL: sessionTTL,
		topicTTL:   topicTTL,
		now:        time.Now,
	}
}

func sessionKey(channel schema.Channel, sessionID string) string {
	return sessionKeyPrefix + string(channel) + ":" + sessionID
}

func topicKey(channel schema.Channel) string {
	return topicKeyPrefix + string(channel)
}

// Register writes the presence record for a new session. Ephemeral-store
// unavailability degrades to a logged no-op: the session continues without
// cross-session awareness rather than failing the conversation.
func (r *Registry) Register(ctx context.Context, channel schema.Channel, sessionID, userID string) error {
	now := schema.NormalizeTime(r.now())
	sess := schema.Session{
		SessionID:    sessionID,
		Channel:      channel,
		UserID:       userID,
		StartedAt:    now,
		LastActiveAt: now,
	}
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	value, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("register: marshal session: %w", err)
	}
	if err := r.store.Put(ctx, sessionKey(channel, sessionID), value, r.sessionTTL); err != nil {
		return degrade("register session", err)
	}
	return nil
}

// Heartbeat refreshes the session's TTL and lastActiveAt. An already-expired
// session is a no-op, not an error; the caller re-registers in that case.
func (r *Registry) Heartbeat(ctx context.Context, channel schema.Channel, sessionID string) error {
	key := sessionKey(channel, sessionID)

	value, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return degrade("heartbeat read", err)
	}
	if !ok {
		return nil
	}

	var sess schema.Session
	if err := json.Unmarshal(value, &sess); err != nil {
		slog.Warn("heartbeat: dropping malformed session record", "key", key, "err", err)
		return r.store.Delete(ctx, key)
	}
	sess.LastActiveAt = schema.NormalizeTime(r.now())

	updated, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("heartbeat: marshal session: %w", err)
	}
	if err := r.store.Put(ctx, key, updated, r.sessionTTL); err != nil {
		return degrade("heartbeat write", err)
	}
	return nil
}

// Deregister removes the session's presence record.
func (r *Registry) Deregister(ctx context.Context, channel schema.Channel, sessionID string) error {
	if err := r.store.Delete(ctx, sessionKey(channel, sessionID)); err != nil {
		return degrade("deregister session", err)
	}
	return nil
}

// ListActiveSessions returns a best-effort snapshot of live sessions. It may
// race with concurrent registrations and expirations; callers treat the
// result as advisory.
func (r *Registry) ListActiveSessions(ctx context.Context) ([]schema.Session, error) {
	entries, err := r.store.Scan(ctx, sessionKeyPrefix)
	if err != nil {
		if degrade("list sessions", err) == nil {
			return nil, nil
		}
		return nil, err
	}

	out := make([]schema.Session, 0, len(entries))
	for key, value := range entries {
		var sess schema.Session
		if err := json.Unmarshal(value, &sess); err != nil {
			slog.Warn("skipping malformed session record", "key", key, "err", err)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// SetTopic overwrites the channel's topic. Last writer wins, no merge.
func (r *Registry) SetTopic(ctx context.Context, channel schema.Channel, topic string) error {
	state := schema.TopicState{
		Channel:   channel,
		Topic:     topic,
		UpdatedAt: schema.NormalizeTime(r.now()),
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("set topic: %w", err)
	}

	value, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("set topic: marshal: %w", err)
	}
	if err := r.store.Put(ctx, topicKey(channel), value, r.topicTTL); err != nil {
		return degrade("set topic", err)
	}
	return nil
}

// GetTopics returns the live topic per channel.
func (r *Registry) GetTopics(ctx context.Context) (map[schema.Channel]schema.TopicState, error) {
	entries, err := r.store.Scan(ctx, topicKeyPrefix)
	if err != nil {
		if degrade("get topics", err) == nil {
			return map[schema.Channel]schema.TopicState{}, nil
		}
		return nil, err
	}

	out := make(map[schema.Channel]schema.TopicState, len(entries))
	for key, value := range entries {
		var state schema.TopicState
		if err := json.Unmarshal(value, &state); err != nil {
			slog.Warn("skipping malformed topic record", "key", key, "err", err)
			continue
		}
		out[state.Channel] = state
	}
	return out, nil
}

// degrade converts store unavailability into a logged success so presence
// bookkeeping never takes down the user-facing conversation. Other errors
// pass through.
func degrade(op string, err error) error {
	if errors.Is(err, schema.ErrStoreUnavailable) {
		slog.Warn("ephemeral store unavailable, continuing without cross-session awareness",
			"op", op, "err", err)
		return nil
	}
	return err
}
