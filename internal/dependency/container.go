// Package dependency wires the pearl services using go.uber.org/dig.
package dependency

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/dig"

	"github.com/pearl-assistant/pearl/internal/bus"
	"github.com/pearl-assistant/pearl/internal/config"
	"github.com/pearl-assistant/pearl/internal/conversation"
	"github.com/pearl-assistant/pearl/internal/durable"
	"github.com/pearl-assistant/pearl/internal/ephemeral"
	"github.com/pearl-assistant/pearl/internal/facts"
	"github.com/pearl-assistant/pearl/internal/handoff"
	"github.com/pearl-assistant/pearl/internal/registry"
	"github.com/pearl-assistant/pearl/internal/runner"
	"github.com/pearl-assistant/pearl/internal/schema"
	"github.com/pearl-assistant/pearl/internal/service"
	"github.com/pearl-assistant/pearl/internal/summarizer"
)

// Container holds the resolved service singletons. Callers use the typed
// getter methods; they never need to import dig directly.
type Container struct {
	memory *service.Memory
	msgBus *bus.MessageBus
	run    *runner.Runner

	kv      *ephemeral.SQLiteStore
	records *durable.SQLiteStore
}

func (c *Container) Memory() *service.Memory     { return c.memory }
func (c *Container) MessageBus() *bus.MessageBus { return c.msgBus }
func (c *Container) Runner() *runner.Runner      { return c.run }

// Close releases the underlying stores. Call once the gateway has stopped.
func (c *Container) Close() error {
	var firstErr error
	if err := c.kv.Close(); err != nil {
		firstErr = err
	}
	if err := c.records.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// New builds and wires all services from cfg.
func New(cfg *config.Config) (*Container, error) {
	dataDir := cfg.DataDirPath()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	d := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		newEphemeralStore,
		newDurableStore,
		newSummarizer,
		newRegistry,
		newHandoffCoordinator,
		newNarrativeLog,
		newConversationManager,
		newFactsStore,
		newMemoryService,
		newMessageBus,
		newResponder,
		newRunner,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		memory *service.Memory,
		msgBus *bus.MessageBus,
		run *runner.Runner,
		kv *ephemeral.SQLiteStore,
		records *durable.SQLiteStore,
	) {
		result = &Container{
			memory:  memory,
			msgBus:  msgBus,
			run:     run,
			kv:      kv,
			records: records,
		}
	})
	return result, err
}

func newEphemeralStore(cfg *config.Config) (*ephemeral.SQLiteStore, error) {
	return ephemeral.NewSQLiteStore(filepath.Join(cfg.DataDirPath(), "ephemeral.db"))
}

func newDurableStore(cfg *config.Config) (*durable.SQLiteStore, error) {
	return durable.NewSQLiteStore(filepath.Join(cfg.DataDirPath(), "memory.db"))
}

// newSummarizer returns the model-backed summarizer when credentials are
// available, otherwise one that always fails so teardown falls back to the
// degraded one-line summary instead of blocking session close.
func newSummarizer(cfg *config.Config) summarizer.Summarizer {
	apiKey := cfg.Summarizer.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return summarizer.Func(func(context.Context, []schema.Turn) (schema.Summary, error) {
			return schema.Summary{}, fmt.Errorf("summarizer: no API key configured")
		})
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return summarizer.NewAnthropic(&client, cfg.Summarizer.Model, cfg.Summarizer.MaxInputBytes)
}

func newRegistry(cfg *config.Config, kv *ephemeral.SQLiteStore) *registry.Registry {
	return registry.New(kv, cfg.Memory.SessionTTL.Std(), cfg.Memory.TopicTTL.Std())
}

func newHandoffCoordinator(cfg *config.Config, kv *ephemeral.SQLiteStore) *handoff.Coordinator {
	return handoff.New(kv, cfg.Memory.HandoffTTL.Std())
}

func newNarrativeLog(cfg *config.Config) (*conversation.FileNarrativeLog, error) {
	return conversation.NewFileNarrativeLog(cfg.DataDirPath())
}

func newConversationManager(
	cfg *config.Config,
	records *durable.SQLiteStore,
	sum summarizer.Summarizer,
	sessions *registry.Registry,
	narrative *conversation.FileNarrativeLog,
) (*conversation.Manager, error) {
	return conversation.NewManager(records, sum, sessions, narrative, conversation.Config{
		SummaryTimeout:   cfg.Memory.SummaryTimeout.Std(),
		TeardownDeadline: cfg.Memory.TeardownDeadline.Std(),
		ContextLimit:     cfg.Memory.ContextLimit,
		ContextCacheTTL:  cfg.Memory.ContextCacheTTL.Std(),
	})
}

func newFactsStore(records *durable.SQLiteStore) *facts.Store {
	return facts.New(records)
}

func newMemoryService(
	sessions *registry.Registry,
	handoffs *handoff.Coordinator,
	conversations *conversation.Manager,
	factsStore *facts.Store,
) (*service.Memory, error) {
	return service.New(sessions, handoffs, conversations, factsStore)
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newResponder() runner.Responder {
	return runner.EchoResponder{}
}

func newRunner(cfg *config.Config, mem *service.Memory, b *bus.MessageBus, resp runner.Responder) *runner.Runner {
	return runner.New(mem, b, resp, cfg.Memory.IdleTimeout.Std())
}
