// Package main is the CLI entry point for storegated, the conversational
// commerce gateway (spec §1, §4.7).
//
// Start the server:
//
//	storegated serve --config storegate.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "storegated",
		Short:        "storegated - conversational commerce gateway",
		Long:         "storegated mediates chat between a storefront widget and an LLM, grounded in a merchant's tool service.",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildStatusCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the storegate gateway server",
		Long: `Start the HTTP server that serves the storefront chat widget.

The server will:
1. Load configuration from the specified file (or environment variables)
2. Start the JSON-RPC tool client for the configured shop
3. Start the session-eviction sweep
4. Serve /apps/assistant/chat, /apps/assistant/mcp, and health routes

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "storegate.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildStatusCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Validate configuration and print the resolved settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), configPath, cmd)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "storegate.yaml", "Path to YAML configuration file")
	return cmd
}
