package channels

import (
	"context"
	"log/slog"

	"github.com/pearl-assistant/pearl/internal/bus"
	"github.com/pearl-assistant/pearl/internal/config"
	"github.com/pearl-assistant/pearl/internal/schema"
)

// Manager owns all enabled channel adapters and routes outbound messages.
type Manager struct {
	adapters map[schema.Channel]Adapter
	b        *bus.MessageBus
}

// NewManager creates a Manager and initialises all enabled adapters.
func NewManager(cfg *config.Config, b *bus.MessageBus) *Manager {
	m := &Manager{
		adapters: make(map[schema.Channel]Adapter),
		b:        b,
	}

	if cfg.Channels.CLI.Enabled {
		m.register(NewCLIChannel(&cfg.Channels.CLI, b))
	}
	if cfg.Channels.Telegram.Enabled {
		m.register(NewTelegramChannel(&cfg.Channels.Telegram, b))
	}
	if cfg.Channels.Slack.Enabled {
		m.register(NewSlackChannel(&cfg.Channels.Slack, b))
	}
	if cfg.Channels.Web.Enabled {
		m.register(NewWebChannel(&cfg.Channels.Web, b))
	}

	return m
}

func (m *Manager) register(a Adapter) {
	m.adapters[a.Name()] = a
	slog.Info("channel enabled", "name", a.Name())
}

// EnabledChannels returns the names of all enabled channels.
func (m *Manager) EnabledChannels() []schema.Channel {
	names := make([]schema.Channel, 0, len(m.adapters))
	for n := range m.adapters {
		names = append(names, n)
	}
	return names
}

// StartAll starts all adapters concurrently and dispatches outbound
// messages. Blocks until ctx is cancelled.
func (m *Manager) StartAll(ctx context.Context) error {
	go m.dispatchOutbound(ctx)

	for name, a := range m.adapters {
		go func(n schema.Channel, a Adapter) {
			slog.Info("starting channel", "name", n)
			if err := a.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("channel exited with error", "name", n, "err", err)
			}
		}(name, a)
	}

	<-ctx.Done()
	return ctx.Err()
}

// dispatchOutbound reads from bus.Outbound and routes each message to the
// owning adapter's Send method.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-m.b.Outbound:
			a, ok := m.adapters[msg.Channel]
			if !ok {
				slog.Debug("unknown channel for outbound message", "channel", msg.Channel)
				continue
			}
			if err := a.Send(ctx, msg); err != nil {
				slog.Error("send error", "channel", msg.Channel, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
