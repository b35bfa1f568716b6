package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pearl-assistant/pearl/internal/bus"
	"github.com/pearl-assistant/pearl/internal/conversation"
	"github.com/pearl-assistant/pearl/internal/durable"
	"github.com/pearl-assistant/pearl/internal/ephemeral"
	"github.com/pearl-assistant/pearl/internal/facts"
	"github.com/pearl-assistant/pearl/internal/handoff"
	"github.com/pearl-assistant/pearl/internal/registry"
	"github.com/pearl-assistant/pearl/internal/schema"
	"github.com/pearl-assistant/pearl/internal/service"
	"github.com/pearl-assistant/pearl/internal/summarizer"
)

type fixture struct {
	mem    *service.Memory
	b      *bus.MessageBus
	runner *Runner
	clock  time.Time
}

func newFixture(t *testing.T, resp Responder) *fixture {
	t.Helper()

	kv, err := ephemeral.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	records, err := durable.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	sessions := registry.New(kv, time.Minute, time.Minute)
	handoffs := handoff.New(kv, time.Minute)

	sum := summarizer.Func(func(context.Context, []schema.Turn) (schema.Summary, error) {
		return schema.Summary{Text: "talked about errands", OneLiner: "errands"}, nil
	})

	narrative, err := conversation.NewFileNarrativeLog(t.TempDir())
	require.NoError(t, err)

	conversations, err := conversation.NewManager(records, sum, sessions, narrative, conversation.Config{
		SummaryTimeout:   time.Second,
		TeardownDeadline: 2 * time.Second,
	})
	require.NoError(t, err)

	mem, err := service.New(sessions, handoffs, conversations, facts.New(records))
	require.NoError(t, err)

	b := bus.NewMessageBus(16)
	f := &fixture{
		mem:   mem,
		b:     b,
		clock: time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
	}
	f.runner = New(mem, b, resp, 2*time.Minute)
	f.runner.now = func() time.Time { return f.clock }
	return f
}

func inbound(channel schema.Channel, user, chat, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   channel,
		SenderID:  user,
		ChatID:    chat,
		Content:   text,
		Timestamp: time.Now(),
	}
}

func TestFirstMessageOpensSession(t *testing.T) {
	f := newFixture(t, EchoResponder{})
	ctx := context.Background()

	f.runner.HandleInbound(ctx, inbound(schema.ChannelTelegram, "u1", "chat1", "hello"))

	assert.Equal(t, 1, f.runner.LiveSessions())

	sessions, err := f.mem.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, schema.ChannelTelegram, sessions[0].Channel)
	assert.Equal(t, "u1", sessions[0].UserID)

	require.Len(t, f.b.Outbound, 1)
	reply := <-f.b.Outbound
	assert.Equal(t, "chat1", reply.ChatID)
	assert.Contains(t, reply.Content, "hello")
}

func TestSecondMessageReusesSession(t *testing.T) {
	f := newFixture(t, EchoResponder{})
	ctx := context.Background()

	f.runner.HandleInbound(ctx, inbound(schema.ChannelTelegram, "u1", "chat1", "one"))
	f.runner.HandleInbound(ctx, inbound(schema.ChannelTelegram, "u1", "chat1", "two"))

	assert.Equal(t, 1, f.runner.LiveSessions())

	sessions, err := f.mem.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	// Different chat on the same channel is a separate conversation.
	f.runner.HandleInbound(ctx, inbound(schema.ChannelTelegram, "u2", "chat2", "hi"))
	assert.Equal(t, 2, f.runner.LiveSessions())
}

func TestResponderTopicUpdatesChannelTopic(t *testing.T) {
	resp := ResponderFunc(func(_ context.Context, req Request) (Reply, error) {
		return Reply{Text: "ok", Topic: "grocery run"}, nil
	})
	f := newFixture(t, resp)
	ctx := context.Background()

	f.runner.HandleInbound(ctx, inbound(schema.ChannelWeb, "u1", "c1", "let's plan groceries"))

	topics, err := f.mem.GetTopics(ctx)
	require.NoError(t, err)
	require.Contains(t, topics, schema.ChannelWeb)
	assert.Equal(t, "grocery run", topics[schema.ChannelWeb].Topic)
}

func TestIdleSweepClosesSession(t *testing.T) {
	f := newFixture(t, EchoResponder{})
	ctx := context.Background()

	f.runner.HandleInbound(ctx, inbound(schema.ChannelVoice, "u1", "c1", "remind me later"))
	require.Equal(t, 1, f.runner.LiveSessions())

	// Still fresh: sweep keeps it.
	f.runner.SweepIdle(ctx)
	assert.Equal(t, 1, f.runner.LiveSessions())

	f.clock = f.clock.Add(3 * time.Minute)
	f.runner.SweepIdle(ctx)
	assert.Equal(t, 0, f.runner.LiveSessions())

	recent, err := f.mem.GetRecentConversations(ctx, 10, "", time.Time{})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, schema.ChannelVoice, recent[0].Channel)
	assert.Equal(t, "talked about errands", recent[0].Summary)

	sessions, err := f.mem.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestEndAllPersistsEverySession(t *testing.T) {
	f := newFixture(t, EchoResponder{})
	ctx := context.Background()

	f.runner.HandleInbound(ctx, inbound(schema.ChannelTelegram, "u1", "c1", "a"))
	f.runner.HandleInbound(ctx, inbound(schema.ChannelWeb, "u1", "c2", "b"))
	require.Equal(t, 2, f.runner.LiveSessions())

	f.runner.EndAll(ctx)
	assert.Equal(t, 0, f.runner.LiveSessions())

	recent, err := f.mem.GetRecentConversations(ctx, 10, "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestFullOutboundBufferDoesNotBlockRunner(t *testing.T) {
	f := newFixture(t, EchoResponder{})
	ctx := context.Background()

	for i := 0; i < cap(f.b.Outbound); i++ {
		f.b.Outbound <- bus.OutboundMessage{Channel: schema.ChannelWeb, ChatID: "stuck"}
	}

	// HandleInbound must return even though no dispatcher is draining; the
	// reply is dropped rather than wedging the session table.
	f.runner.HandleInbound(ctx, inbound(schema.ChannelTelegram, "u1", "c1", "hello"))

	assert.Equal(t, 1, f.runner.LiveSessions())
	assert.Len(t, f.b.Outbound, cap(f.b.Outbound))
}

func TestHandoffSurfacedOnFirstMessage(t *testing.T) {
	f := newFixture(t, EchoResponder{})
	ctx := context.Background()

	require.NoError(t, f.mem.SignalHandoff(ctx, "u1", schema.ChannelVoice, schema.ChannelTelegram, "halfway through the shopping list"))

	f.runner.HandleInbound(ctx, inbound(schema.ChannelTelegram, "u1", "c1", "continue"))

	require.Len(t, f.b.Outbound, 1)
	reply := <-f.b.Outbound
	assert.Contains(t, reply.Content, "Picking up from voice")
	assert.Contains(t, reply.Content, "halfway through the shopping list")
}
