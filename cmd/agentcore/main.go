// Package main provides the CLI entry point for agentcore, the Agent
// Execution Core library's reference runtime: a single process that
// loads one YAML configuration file, wires the reasoning engine to a
// pluggable memory/event backend and LLM provider, and either serves an
// HTTP front end or runs one query to completion.
//
// # Basic Usage
//
// Start the server:
//
//	agentcore serve --config agentcore.yaml
//
// Run one query locally, without starting a server:
//
//	agentcore run --config agentcore.yaml --query "summarize the open PRs"
//
// Migrate a running session's memory backend:
//
//	agentcore migrate-memory --config agentcore.yaml --to filekv
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
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentcore",
		Short:        "agentcore runs the Agent Execution Core reference server and CLI",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildRunCmd(), buildMigrateMemoryCmd())
	return root
}
