package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pearl-assistant/pearl/internal/channels"
	"github.com/pearl-assistant/pearl/internal/config"
	"github.com/pearl-assistant/pearl/internal/dependency"
)

var gatewayConfigPath string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the pearl gateway: channels, session runner, and memory stores",
	RunE:  runGateway,
}

func init() {
	gatewayCmd.Flags().StringVarP(&gatewayConfigPath, "config", "c", "", "Config file path (default ~/.pearl/config.yaml)")
}

func runGateway(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(gatewayConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer container.Close()

	fmt.Printf("%s Starting pearl gateway...\n", logo)

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	channelMgr := channels.NewManager(cfg, container.MessageBus())
	if enabled := channelMgr.EnabledChannels(); len(enabled) > 0 {
		var sb string
		for i, n := range enabled {
			if i > 0 {
				sb += ", "
			}
			sb += string(n)
		}
		fmt.Printf("✓ Channels enabled: %s\n", sb)
	} else {
		fmt.Println("Warning: no channels enabled")
	}

	g.Go(func() error { return container.Runner().Run(gctx) })
	g.Go(func() error { return channelMgr.StartAll(gctx) })

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
