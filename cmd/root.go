// Package cmd implements the pearl CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"
const logo = "🪩"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "pearl",
	Short: logo + " pearl — cross-session memory for a multi-channel assistant",
	Long:  logo + " pearl — the memory coordination layer that lets an assistant remember conversations across voice, chat, and text channels",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(statusCmd)
}
