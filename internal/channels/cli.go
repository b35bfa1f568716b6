package channels

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pearl-assistant/pearl/internal/bus"
	"github.com/pearl-assistant/pearl/internal/config"
	"github.com/pearl-assistant/pearl/internal/schema"
)

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLIChannel wires the terminal (stdin/stdout) into the channel manager so
// interactive console input reaches the session runner through the bus.
type CLIChannel struct {
	Base
	userID  string
	replies chan bus.OutboundMessage
}

// NewCLIChannel creates a CLIChannel.
func NewCLIChannel(cfg *config.CLIConfig, b *bus.MessageBus) *CLIChannel {
	userID := cfg.UserID
	if userID == "" {
		userID = "local"
	}
	return &CLIChannel{
		Base:    NewBase(schema.ChannelCLI, b, nil),
		userID:  userID,
		replies: make(chan bus.OutboundMessage, 16),
	}
}

func (c *CLIChannel) Name() schema.Channel { return schema.ChannelCLI }

// Start runs the stdin REPL: reads lines, dispatches them to the runner via
// the inbound bus, and prints each reply routed back through Send.
// Blocks until ctx is cancelled or stdin is closed.
func (c *CLIChannel) Start(ctx context.Context) error {
	fmt.Printf("CLI channel ready. Type 'exit' or press Ctrl+C to quit.\n\n")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")

		// scanner.Scan has no way to be interrupted, so ctx cancellation can
		// leave this goroutine parked on stdin until the process exits.
		scanDone := make(chan bool, 1)
		go func() {
			scanDone <- scanner.Scan()
		}()

		select {
		case ok := <-scanDone:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if cliExitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		c.HandleMessage(c.userID, "direct", line, nil)
		c.waitForReply(ctx)
	}
}

// waitForReply blocks until the runner's reply arrives, then prints it.
func (c *CLIChannel) waitForReply(ctx context.Context) {
	select {
	case msg := <-c.replies:
		fmt.Printf("\nPearl: %s\n\n", msg.Content)
	case <-ctx.Done():
	}
}

// Send delivers an outbound reply to the CLI. The Start loop drains the
// reply channel and prints to stdout.
func (c *CLIChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	select {
	case c.replies <- msg:
	default:
	}
	return nil
}
