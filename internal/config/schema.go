// Package config defines the configuration schema for pearl, loaded from
// ~/.pearl/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads from YAML as a duration string
// ("90s", "2m") or a bare number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("parse duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("parse duration: want string or seconds, got %q", node.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MemoryConfig tunes the coordination layer itself: where the stores live
// and how long ephemeral state survives without refresh.
type MemoryConfig struct {
	DataDir          string   `yaml:"dataDir"`
	SessionTTL       Duration `yaml:"sessionTtl"`
	TopicTTL         Duration `yaml:"topicTtl"`
	HandoffTTL       Duration `yaml:"handoffTtl"`
	SummaryTimeout   Duration `yaml:"summaryTimeout"`
	TeardownDeadline Duration `yaml:"teardownDeadline"`
	ContextLimit     int      `yaml:"contextLimit"`
	ContextCacheTTL  Duration `yaml:"contextCacheTtl"`
	IdleTimeout      Duration `yaml:"idleTimeout"`
}

func defaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		DataDir:          "", // resolved to DataDir() when empty
		SessionTTL:       Duration(90 * time.Second),
		TopicTTL:         Duration(60 * time.Second),
		HandoffTTL:       Duration(120 * time.Second),
		SummaryTimeout:   Duration(10 * time.Second),
		TeardownDeadline: Duration(5 * time.Second),
		ContextLimit:     5,
		ContextCacheTTL:  Duration(30 * time.Second),
		IdleTimeout:      Duration(3 * time.Minute),
	}
}

// SummarizerConfig holds model credentials for session summarization.
type SummarizerConfig struct {
	APIKey        string `yaml:"apiKey"`
	Model         string `yaml:"model"`
	MaxInputBytes int    `yaml:"maxInputBytes"`
}

func defaultSummarizerConfig() SummarizerConfig {
	return SummarizerConfig{
		Model:         "claude-sonnet-4-5",
		MaxInputBytes: 48 * 1024,
	}
}

// CLIConfig configures the interactive terminal channel.
type CLIConfig struct {
	Enabled bool   `yaml:"enabled"`
	UserID  string `yaml:"userId"`
}

func defaultCLIConfig() CLIConfig {
	return CLIConfig{Enabled: true, UserID: "local"}
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Token     string   `yaml:"token"`
	AllowFrom []string `yaml:"allowFrom"`
}

func defaultTelegramConfig() TelegramConfig {
	return TelegramConfig{AllowFrom: []string{}}
}

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	Enabled   bool     `yaml:"enabled"`
	BotToken  string   `yaml:"botToken"`
	AppToken  string   `yaml:"appToken"`
	AllowFrom []string `yaml:"allowFrom"`
}

func defaultSlackConfig() SlackConfig {
	return SlackConfig{AllowFrom: []string{}}
}

// WebConfig configures the WebSocket channel server.
type WebConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	AuthToken string   `yaml:"authToken"`
	AllowFrom []string `yaml:"allowFrom"`
}

func defaultWebConfig() WebConfig {
	return WebConfig{Host: "127.0.0.1", Port: 18890, AllowFrom: []string{}}
}

// ChannelsConfig groups all channel configurations.
type ChannelsConfig struct {
	CLI      CLIConfig      `yaml:"cli"`
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`
	Web      WebConfig      `yaml:"web"`
}

func defaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{
		CLI:      defaultCLIConfig(),
		Telegram: defaultTelegramConfig(),
		Slack:    defaultSlackConfig(),
		Web:      defaultWebConfig(),
	}
}

// Config is the root configuration object.
type Config struct {
	Memory     MemoryConfig     `yaml:"memory"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Channels   ChannelsConfig   `yaml:"channels"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Memory:     defaultMemoryConfig(),
		Summarizer: defaultSummarizerConfig(),
		Channels:   defaultChannelsConfig(),
	}
}

// DataDirPath returns the resolved data directory, creating nothing.
func (c *Config) DataDirPath() string {
	if c.Memory.DataDir != "" {
		return expandHome(c.Memory.DataDir)
	}
	return DataDir()
}

func expandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
