package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/spf13/cobra"
)

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		query      string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one query against a locally-constructed AgentCore and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), configPath, query, sessionID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Query to run")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (generated if empty)")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func runOnce(ctx context.Context, configPath, query, sessionID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() { _ = rt.Close(ctx) }()

	result, err := rt.core.Run(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
