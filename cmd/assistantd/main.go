// Package main provides the CLI entry point for assistantd, an
// OpenAI-Assistants-compatible API server backed by a local database.
//
// Start the server:
//
//	assistantd serve --config assistantd.yaml
//
// Useful environment variables:
//
//   - OPENAI_API_KEY: OpenAI API key (referenced as ${OPENAI_API_KEY} in config)
//   - ANTHROPIC_API_KEY: enables the anthropic backend when referenced
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "assistantd",
		Short: "assistantd - OpenAI-Assistants-compatible API server",
		Long: `assistantd serves the OpenAI Assistants API surface (assistants, threads,
messages, runs) against a local SQLite database, with pluggable LLM backends
and a pre-completion tool pipeline for retrieval-augmented generation.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
	)
	return rootCmd
}
