// Package runner drives the session lifecycle for live conversations: it
// consumes inbound messages from the bus, opens a memory session on the
// first message of a conversation, heartbeats on every message, and tears
// the session down once the conversation goes idle.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/pearl-assistant/pearl/internal/bus"
	"github.com/pearl-assistant/pearl/internal/schema"
	"github.com/pearl-assistant/pearl/internal/service"
)

// sweepSchedule is how often idle sessions are checked for teardown.
const sweepSchedule = "@every 30s"

// teardownBudget bounds each OnSessionEnd during sweep and shutdown.
const teardownBudget = 10 * time.Second

// liveSession tracks one in-flight conversation between open and teardown.
type liveSession struct {
	sessionID string
	channel   schema.Channel
	userID    string
	chatID    string
	startedAt time.Time
	lastSeen  time.Time
	turns     []schema.Turn
}

// Runner owns the live-session table.
type Runner struct {
	mem         *service.Memory
	b           *bus.MessageBus
	resp        Responder
	idleTimeout time.Duration

	mu   sync.Mutex
	live map[string]*liveSession // session key → session

	now func() time.Time
}

// New creates a Runner. idleTimeout is how long a conversation may be
// silent before its session is torn down.
func New(mem *service.Memory, b *bus.MessageBus, resp Responder, idleTimeout time.Duration) *Runner {
	return &Runner{
		mem:         mem,
		b:           b,
		resp:        resp,
		idleTimeout: idleTimeout,
		live:        make(map[string]*liveSession),
		now:         time.Now,
	}
}

// Run consumes inbound messages until ctx is cancelled, sweeping idle
// sessions on a fixed schedule. On shutdown every live session is torn
// down so its conversation is summarized rather than lost.
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(sweepSchedule, func() { r.SweepIdle(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	for {
		select {
		case msg := <-r.b.Inbound:
			r.HandleInbound(ctx, msg)
		case <-ctx.Done():
			shutCtx, cancel := context.WithTimeout(context.Background(), teardownBudget)
			r.EndAll(shutCtx)
			cancel()
			return ctx.Err()
		}
	}
}

// HandleInbound processes one message: opens a session if this conversation
// has none, records the turn, heartbeats, and routes the responder's reply
// back onto the bus.
func (r *Runner) HandleInbound(ctx context.Context, msg bus.InboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := msg.SessionKey()
	sess, ok := r.live[key]

	req := Request{Message: msg}

	if !ok {
		sess = &liveSession{
			sessionID: uuid.NewString(),
			channel:   msg.Channel,
			userID:    msg.SenderID,
			chatID:    msg.ChatID,
			startedAt: r.now(),
		}

		start, err := r.mem.OnSessionStart(ctx, sess.channel, sess.sessionID, sess.userID)
		if err != nil {
			slog.Error("session start failed", "channel", sess.channel, "err", err)
			return
		}
		r.live[key] = sess
		req.Context = start.Context
		req.Handoff = start.Handoff
		slog.Info("session opened", "channel", sess.channel, "session", sess.sessionID, "user", sess.userID)
	} else if err := r.mem.Heartbeat(ctx, sess.channel, sess.sessionID); err != nil {
		slog.Warn("heartbeat failed", "session", sess.sessionID, "err", err)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	sess.lastSeen = r.now()
	sess.turns = append(sess.turns, schema.Turn{Role: "user", Text: msg.Content, Timestamp: ts})
	req.Turns = sess.turns

	reply, err := r.resp.Respond(ctx, req)
	if err != nil {
		slog.Error("responder failed", "session", sess.sessionID, "err", err)
		return
	}

	if reply.Topic != "" {
		if err := r.mem.SetTopic(ctx, sess.channel, reply.Topic); err != nil {
			slog.Warn("set topic failed", "channel", sess.channel, "err", err)
		}
	}

	if reply.Text != "" {
		sess.turns = append(sess.turns, schema.Turn{Role: "assistant", Text: reply.Text, Timestamp: r.now()})
		out := bus.OutboundMessage{
			Channel:  sess.channel,
			ChatID:   sess.chatID,
			Content:  reply.Text,
			Metadata: msg.Metadata,
		}
		// Non-blocking: the session table lock is held here, so a stalled
		// dispatcher must not wedge the runner.
		select {
		case r.b.Outbound <- out:
		default:
			slog.Warn("outbound buffer full, reply dropped", "channel", sess.channel, "chat", sess.chatID)
		}
	}
}

// SweepIdle tears down every session that has been silent longer than the
// idle timeout.
func (r *Runner) SweepIdle(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTimeout)
	for key, sess := range r.live {
		if sess.lastSeen.After(cutoff) {
			continue
		}
		r.endLocked(ctx, key, sess, "idle")
	}
}

// EndAll tears down every live session. Used on shutdown.
func (r *Runner) EndAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, sess := range r.live {
		r.endLocked(ctx, key, sess, "shutdown")
	}
}

// LiveSessions returns the number of conversations currently tracked.
func (r *Runner) LiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Runner) endLocked(ctx context.Context, key string, sess *liveSession, reason string) {
	delete(r.live, key)

	report, err := r.mem.OnSessionEnd(ctx, sess.sessionID, sess.channel, sess.userID, sess.startedAt, sess.turns)
	if err != nil {
		slog.Error("session teardown failed", "session", sess.sessionID, "err", err)
		return
	}
	slog.Info("session closed",
		"channel", sess.channel,
		"session", sess.sessionID,
		"reason", reason,
		"turns", len(sess.turns),
		"persisted", report.MemoryPersisted,
		"degraded", report.SummaryDegraded)
}
