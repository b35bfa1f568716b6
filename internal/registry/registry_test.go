package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pearl-assistant/pearl/internal/ephemeral"
	"github.com/pearl-assistant/pearl/internal/schema"
)

func newTestRegistry(t *testing.T) (*Registry, *ephemeral.SQLiteStore) {
	t.Helper()
	store, err := ephemeral.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, time.Minute, 30*time.Second), store
}

func TestRegisterAndList(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, schema.ChannelVoice, "s1", "u1"))
	require.NoError(t, r.Register(ctx, schema.ChannelWeb, "s2", "u1"))

	sessions, err := r.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	byID := map[string]schema.Session{}
	for _, s := range sessions {
		byID[s.SessionID] = s
	}
	assert.Equal(t, schema.ChannelVoice, byID["s1"].Channel)
	assert.Equal(t, "u1", byID["s1"].UserID)
	assert.False(t, byID["s1"].StartedAt.IsZero())
}

func TestRegisterRejectsUnknownChannel(t *testing.T) {
	r, _ := newTestRegistry(t)
	err := r.Register(context.Background(), schema.Channel("carrier-pigeon"), "s1", "u1")
	assert.Error(t, err)
}

func TestSessionExpiresWithoutHeartbeat(t *testing.T) {
	store, err := ephemeral.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := New(store, 50*time.Millisecond, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, schema.ChannelVoice, "s1", "u1"))

	time.Sleep(70 * time.Millisecond)

	sessions, err := r.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions, "expired session must not be listed")
}

func TestHeartbeatRefreshesTTL(t *testing.T) {
	store, err := ephemeral.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := New(store, 80*time.Millisecond, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, schema.ChannelVoice, "s1", "u1"))

	// Keep heartbeating past the original TTL.
	for i := 0; i < 3; i++ {
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, r.Heartbeat(ctx, schema.ChannelVoice, "s1"))
	}

	sessions, err := r.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].LastActiveAt.After(sessions[0].StartedAt) ||
		sessions[0].LastActiveAt.Equal(sessions[0].StartedAt))
}

func TestHeartbeatOnExpiredSessionIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t)
	assert.NoError(t, r.Heartbeat(context.Background(), schema.ChannelVoice, "never-registered"))
}

func TestDeregisterRemovesSession(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, schema.ChannelVoice, "s1", "u1"))
	require.NoError(t, r.Deregister(ctx, schema.ChannelVoice, "s1"))

	sessions, err := r.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestTopicsLastWriterWins(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.SetTopic(ctx, schema.ChannelVoice, "demo timeline"))
	require.NoError(t, r.SetTopic(ctx, schema.ChannelVoice, "budget review"))
	require.NoError(t, r.SetTopic(ctx, schema.ChannelWeb, "travel plans"))

	topics, err := r.GetTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "budget review", topics[schema.ChannelVoice].Topic)
	assert.Equal(t, "travel plans", topics[schema.ChannelWeb].Topic)
}

func TestSetTopicRejectsEmptyTopic(t *testing.T) {
	r, _ := newTestRegistry(t)
	assert.Error(t, r.SetTopic(context.Background(), schema.ChannelVoice, ""))
}

func TestDegradeOnClosedStore(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	store.Close()

	// Registration and topic updates degrade to logged no-ops.
	assert.NoError(t, r.Register(ctx, schema.ChannelVoice, "s1", "u1"))
	assert.NoError(t, r.Heartbeat(ctx, schema.ChannelVoice, "s1"))
	assert.NoError(t, r.SetTopic(ctx, schema.ChannelVoice, "anything"))

	sessions, err := r.ListActiveSessions(ctx)
	assert.NoError(t, err)
	assert.Empty(t, sessions)
}
