// Package handoff propagates "user switched channel" signals between
// sessions. A signal is keyed by user, overwritten by any newer signal, and
// consumed at most once: the first reader on the target channel that wins the
// compare-and-delete gets it, everyone else sees absence.
package handoff

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

const keyPrefix = "handoff:"

// Coordinator writes and consumes handoff signals via the ephemeral store.
type Coordinator struct {
	store ephemeral.Store
	ttl   time.Duration
	now   func() time.Time
}

// New creates a Coordinator whose signals expire after ttl.
func New(store ephemeral.Store, ttl time.Duration) *Coordinator {
	return &Coordinator{store: store, ttl: ttl, now: time.Now}
}

func signalKey(userID string) string { return keyPrefix + userID }

// Signal records that the user intends to continue on toChannel, carrying a
// short context summary. It unconditionally overwrites any prior unconsumed
// signal for the user: only the most recent destination matters.
func (c *Coordinator) Signal(ctx context.Context, userID string, from, to schema.Channel, contextSummary string) error {
	sig := schema.HandoffSignal{
		UserID:         userID,
		FromChannel:    from,
		ToChannel:      to,
		ContextSummary: contextSummary,
		CreatedAt:      schema.NormalizeTime(c.now()),
	}
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("signal handoff: %w", err)
	}

	value, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("signal handoff: marshal: %w", err)
	}
	if err := c.store.Put(ctx, signalKey(userID), value, c.ttl); err != nil {
		if errors.Is(err, schema.ErrStoreUnavailable) {
			slog.Warn("handoff signal dropped, ephemeral store unavailable",
				"user", userID, "to", to, "err", err)
			return nil
		}
		return err
	}
	return nil
}

// Check looks for a pending handoff addressed to currentChannel and consumes
// it. A signal destined for a different channel is left in place for that
// channel to claim. Losing the compare-and-delete race is not an error; the
// loser simply observes no handoff.
func (c *Coordinator) Check(ctx context.Context, userID string, currentChannel schema.Channel) (*schema.HandoffSignal, error) {
	key := signalKey(userID)

	value, ok, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, schema.ErrStoreUnavailable) {
			slog.Warn("handoff check skipped, ephemeral store unavailable",
				"user", userID, "err", err)
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var sig schema.HandoffSignal
	if err := json.Unmarshal(value, &sig); err != nil {
		slog.Warn("dropping malformed handoff signal", "user", userID, "err", err)
		_ = c.store.Delete(ctx, key)
		return nil, nil
	}
	if sig.ToChannel != currentChannel {
		return nil, nil
	}

	// Consume exactly the bytes we read: if another reader already consumed
	// the signal, or a newer signal replaced it, we lose and report absence.
	won, err := c.store.CompareAndDelete(ctx, key, value)
	if err != nil {
		if errors.Is(err, schema.ErrStoreUnavailable) {
			slog.Warn("handoff consume skipped, ephemeral store unavailable",
				"user", userID, "err", err)
			return nil, nil
		}
		return nil, err
	}
	if !won {
		return nil, nil
	}
	return &sig, nil
}
