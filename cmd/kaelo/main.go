package main

import (
	"fmt"
	"os"

	"github.com/kaelo-ai/kaelo/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "kaelo",
		Short: "Kaelo CLI - verified career guidance",
		Long: `Kaelo CLI asks the guidance service career questions and inspects outcomes.

Environment variables:
  KAELO_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")

	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.RecentCmd())
	rootCmd.AddCommand(client.StatsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
