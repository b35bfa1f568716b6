package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pearl-assistant/pearl/internal/config"
	"github.com/pearl-assistant/pearl/internal/dependency"
)

var statusConfigPath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pearl status: active sessions, topics, and recent conversations",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusConfigPath, "config", "c", "", "Config file path (default ~/.pearl/config.yaml)")
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := statusConfigPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	fmt.Printf("%s pearl Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:   %s %s\n", cfgPath, cfgMark)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	fmt.Printf("Data dir: %s\n", cfg.DataDirPath())
	fmt.Printf("Model:    %s\n\n", cfg.Summarizer.Model)

	container, err := dependency.New(cfg)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer container.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mem := container.Memory()

	fmt.Println("Active sessions:")
	sessions, err := mem.ListActiveSessions(ctx)
	if err != nil {
		fmt.Printf("  (unavailable: %v)\n", err)
	} else if len(sessions) == 0 {
		fmt.Println("  (none)")
	} else {
		for _, s := range sessions {
			fmt.Printf("  %-10s %s user=%s last active %s\n",
				s.Channel, s.SessionID, s.UserID, s.LastActiveAt.Local().Format("15:04:05"))
		}
	}

	fmt.Println("\nActive topics:")
	topics, err := mem.GetTopics(ctx)
	if err != nil {
		fmt.Printf("  (unavailable: %v)\n", err)
	} else if len(topics) == 0 {
		fmt.Println("  (none)")
	} else {
		for ch, topic := range topics {
			fmt.Printf("  %-10s %s\n", ch, topic.Topic)
		}
	}

	fmt.Println("\nRecent conversations:")
	recent, err := mem.GetRecentConversations(ctx, 5, "", time.Time{})
	if err != nil {
		fmt.Printf("  (unavailable: %v)\n", err)
	} else if len(recent) == 0 {
		fmt.Println("  (none)")
	} else {
		for _, m := range recent {
			fmt.Printf("  [%s] %-10s %s\n",
				m.EndedAt.Local().Format("2006-01-02 15:04"), m.Channel, m.Summary)
		}
	}

	return nil
}
