// Package conversation orchestrates what happens to a session's history at
// the session boundary: summarize on teardown, persist the structured memory,
// log the one-liner, and assemble cross-session context for new sessions.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/pearl-assistant/pearl/internal/durable"
	"github.com/pearl-assistant/pearl/internal/registry"
	"github.com/pearl-assistant/pearl/internal/schema"
	"github.com/pearl-assistant/pearl/internal/summarizer"
)

// Config carries the manager's timing and sizing knobs.
type Config struct {
	SummaryTimeout   time.Duration // per-call bound on the summarizer
	TeardownDeadline time.Duration // hard upper bound on OnSessionEnd
	ContextLimit     int           // conversations folded into the context block
	ContextCacheTTL  time.Duration // 0 disables the context read cache
}

// TeardownReport is what OnSessionEnd hands back: the memory that was built
// plus warning flags for the steps that degraded. Per the error policy, a
// finished session never fails teardown — it reports.
type TeardownReport struct {
	Memory          schema.ConversationMemory
	SummaryDegraded bool // summarizer failed or timed out, one-liner substituted
	MemoryPersisted bool // durable write succeeded
	NarrativeLogged bool // narrative append succeeded
}

// Manager implements the conversation memory lifecycle.
type Manager struct {
	store      durable.Store
	summarizer summarizer.Summarizer
	sessions   *registry.Registry
	narrative  NarrativeLog
	cfg        Config

	cache *ristretto.Cache // caches rendered context blocks per channel
	now   func() time.Time
}

// NewManager wires a Manager. narrative may be nil when no sink is
// configured; the append step is skipped and reported as not logged.
func NewManager(store durable.Store, sum summarizer.Summarizer, sessions *registry.Registry, narrative NarrativeLog, cfg Config) (*Manager, error) {
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = 5
	}

	m := &Manager{
		store:      store,
		summarizer: sum,
		sessions:   sessions,
		narrative:  narrative,
		cfg:        cfg,
		now:        time.Now,
	}

	if cfg.ContextCacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1 << 10,
			MaxCost:     1 << 20,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create context cache: %w", err)
		}
		m.cache = cache
	}
	return m, nil
}

// OnSessionEnd runs the teardown sequence: summarize, persist, log, then
// deregister presence. Each step's failure is caught, logged, and reported
// without stopping the steps after it, and the whole sequence runs under the
// teardown deadline so a slow store can never stall a session's exit.
func (m *Manager) OnSessionEnd(ctx context.Context, sessionID string, channel schema.Channel, userID string, startedAt time.Time, turns []schema.Turn) (TeardownReport, error) {
	if m.cfg.TeardownDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.TeardownDeadline)
		defer cancel()
	}

	report := TeardownReport{}

	summary := m.summarize(ctx, channel, turns)
	report.SummaryDegraded = summary.degraded

	endedAt := schema.NormalizeTime(m.now())
	startedAt = schema.NormalizeTime(startedAt)
	if endedAt.Before(startedAt) {
		endedAt = startedAt
	}

	memory := schema.ConversationMemory{
		SessionID:    sessionID,
		Channel:      channel,
		UserID:       userID,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		Summary:      summary.Text,
		Topics:       summary.Topics,
		KeyDecisions: summary.KeyDecisions,
		ActionItems:  summary.ActionItems,
		MessageCount: len(turns),
	}
	if err := memory.Validate(); err != nil {
		return report, fmt.Errorf("session end: %w", err)
	}
	report.Memory = memory

	if err := m.store.Create(ctx, durable.TypeConversation, sessionID, memory); err != nil {
		switch {
		case errors.Is(err, durable.ErrDuplicateKey):
			// A session summarizes exactly once; repeated teardown is rejected,
			// never an overwrite.
			slog.Warn("conversation memory already recorded", "session", sessionID)
		default:
			slog.Warn("conversation memory lost, durable store write failed",
				"session", sessionID, "err", err)
		}
	} else {
		report.MemoryPersisted = true
		m.InvalidateContext()
	}

	if m.narrative != nil {
		if err := m.narrative.Append(channel, summary.OneLiner); err != nil {
			slog.Warn("narrative log append failed", "session", sessionID, "err", err)
		} else {
			report.NarrativeLogged = true
		}
	}

	if err := m.sessions.Deregister(ctx, channel, sessionID); err != nil {
		slog.Warn("session deregistration failed", "session", sessionID, "err", err)
	}

	return report, nil
}

type summaryResult struct {
	schema.Summary
	degraded bool
}

// summarize invokes the summarizer under its own timeout and substitutes the
// degraded one-liner on any failure.
func (m *Manager) summarize(ctx context.Context, channel schema.Channel, turns []schema.Turn) summaryResult {
	sctx := ctx
	if m.cfg.SummaryTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, m.cfg.SummaryTimeout)
		defer cancel()
	}

	s, err := m.summarizer.Summarize(sctx, turns)
	if err != nil {
		slog.Warn("summarization failed, substituting degraded summary",
			"channel", channel, "messages", len(turns), "err", err)
		return summaryResult{Summary: summarizer.Degraded(channel, len(turns)), degraded: true}
	}
	if s.OneLiner == "" {
		s.OneLiner = summarizer.Degraded(channel, len(turns)).OneLiner
	}
	return summaryResult{Summary: s}
}

// GetRecent returns up to limit conversation memories, most recent first,
// optionally filtered by channel and a lower bound on end time.
func (m *Manager) GetRecent(ctx context.Context, limit int, channel schema.Channel, since time.Time) ([]schema.ConversationMemory, error) {
	if limit <= 0 {
		limit = m.cfg.ContextLimit
	}

	filter := durable.Filter{}
	if channel != "" {
		filter["channel"] = string(channel)
	}
	opts := durable.QueryOptions{OrderBy: "endedAt", Descending: true, Limit: limit}
	if !since.IsZero() {
		opts.Since = schema.NormalizeTime(since).Format(time.RFC3339)
	}

	rows, err := m.store.Query(ctx, durable.TypeConversation, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("recent conversations: %w", err)
	}

	out := make([]schema.ConversationMemory, 0, len(rows))
	for _, row := range rows {
		var mem schema.ConversationMemory
		if err := json.Unmarshal(row, &mem); err != nil {
			slog.Warn("skipping malformed conversation memory", "err", err)
			continue
		}
		out = append(out, mem)
	}
	return out, nil
}

// BuildContext composes the recent conversation memories and the live topic
// map into one human-readable block for injection into a new session.
// Deterministic given the same stored state.
func (m *Manager) BuildContext(ctx context.Context, currentChannel schema.Channel) (string, error) {
	cacheKey := "ctx:" + string(currentChannel)
	if m.cache != nil {
		if v, ok := m.cache.Get(cacheKey); ok {
			return v.(string), nil
		}
	}

	recent, err := m.GetRecent(ctx, m.cfg.ContextLimit, "", time.Time{})
	if err != nil {
		return "", err
	}
	topics, err := m.sessions.GetTopics(ctx)
	if err != nil {
		return "", err
	}

	block := renderContext(currentChannel, recent, topics)

	if m.cache != nil {
		m.cache.SetWithTTL(cacheKey, block, int64(len(block)), m.cfg.ContextCacheTTL)
	}
	return block, nil
}

// InvalidateContext drops every cached context block. Called internally
// after a memory is persisted, and by callers after writes that change what
// BuildContext renders, such as a topic update.
func (m *Manager) InvalidateContext() {
	if m.cache != nil {
		m.cache.Clear()
	}
}

func renderContext(currentChannel schema.Channel, recent []schema.ConversationMemory, topics map[schema.Channel]schema.TopicState) string {
	var b strings.Builder

	if len(recent) > 0 {
		b.WriteString("## Recent conversations\n")
		for _, mem := range recent {
			marker := ""
			if mem.Channel == currentChannel {
				marker = " (this channel)"
			}
			fmt.Fprintf(&b, "- [%s] %s%s: %s\n",
				mem.EndedAt.UTC().Format("2006-01-02 15:04"), mem.Channel, marker, mem.Summary)
			if len(mem.ActionItems) > 0 {
				fmt.Fprintf(&b, "  open items: %s\n", strings.Join(mem.ActionItems, "; "))
			}
		}
	}

	if len(topics) > 0 {
		channels := make([]string, 0, len(topics))
		for ch := range topics {
			channels = append(channels, string(ch))
		}
		sort.Strings(channels)

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## Active topics\n")
		for _, ch := range channels {
			fmt.Fprintf(&b, "- %s: %s\n", ch, topics[schema.Channel(ch)].Topic)
		}
	}

	if b.Len() == 0 {
		return ""
	}
	return strings.TrimRight(b.String(), "\n")
}
