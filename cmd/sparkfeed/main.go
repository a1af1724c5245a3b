// Command sparkfeed runs the feed server and a terminal feed client.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zfogg/sparkfeed/internal/config"
	"github.com/zfogg/sparkfeed/internal/logger"
)

var (
	cfg *config.Config

	authToken string
	apiURL    string
	output    = "text" // "text" or "json"
	logLevel  string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "sparkfeed",
	Short: "sparkfeed - social feed server and terminal client",
	Long: `sparkfeed serves the feed API and realtime stream, manages its database,
and includes a terminal client that tails a live, windowed feed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if noColor {
			color.NoColor = true
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if apiURL == "" {
			apiURL = cfg.APIBaseURL
		}
		if authToken == "" {
			authToken = os.Getenv("SPARKFEED_TOKEN")
		}
		return logger.Initialize(cfg.LogLevel, cfg.LogFile)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Authentication token (defaults to SPARKFEED_TOKEN env var)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API server URL (defaults to SPARKFEED_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(postCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
