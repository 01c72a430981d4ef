package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/docqa/internal/cli/client"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "docqa CLI - ingest documents and ask questions",
		Long: `docqa CLI talks to a docqa server.

Environment variables:
  DOCQA_API_URL      API base URL (default: http://localhost:8080)
  DOCQA_API_KEY      API key sent as x-api-key
  DOCQA_CUSTOMER_ID  tenant customer id
  DOCQA_PROJECT_ID   tenant project id`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	rootCmd.PersistentFlags().String("api-key", "", "API key (overrides env and config)")
	rootCmd.PersistentFlags().String("customer", "", "Customer id (overrides env and config)")
	rootCmd.PersistentFlags().String("project", "", "Project id (overrides env and config)")

	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.HistoryCmd())
	rootCmd.AddCommand(client.AuthCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
