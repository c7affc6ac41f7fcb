package main

import (
	"context"
	"fmt"

	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/spf13/cobra"
)

func buildMigrateMemoryCmd() *cobra.Command {
	var (
		configPath string
		toKind     string
		toDSN      string
		toDriver   string
		toDatabase string
	)

	cmd := &cobra.Command{
		Use:   "migrate-memory",
		Short: "Hot-swap the running memory backend onto a new store, per MemoryRouter's snapshot-then-flip protocol",
		Long: `Builds the new backend from the --to-* flags, then flips MemoryRouter onto
it without losing in-flight sessions. This only takes effect for the
process that runs it: to migrate a long-running server, point this
command's --config at the same file the server uses and restart the
server afterward with the new memory.kind in its config, or drive the
switch through the server's own admin surface if one is wired in.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateMemory(cmd.Context(), configPath, toKind, toDSN, toDriver, toDatabase)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&toKind, "to", "", "Target backend kind: memkv, filekv, sqlkv, or dockv")
	cmd.Flags().StringVar(&toDSN, "to-dsn", "", "Target backend DSN/path")
	cmd.Flags().StringVar(&toDriver, "to-driver", "", "Target sqlkv driver (postgres, sqlite, sqlite3)")
	cmd.Flags().StringVar(&toDatabase, "to-database", "", "Target dockv database name")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runMigrateMemory(ctx context.Context, configPath, toKind, toDSN, toDriver, toDatabase string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() { _ = rt.Close(ctx) }()

	target := config.MemoryConfig{Kind: toKind, DSN: toDSN, Driver: toDriver, Database: toDatabase}
	newBackend, err := buildKVStore(ctx, target)
	if err != nil {
		return fmt.Errorf("build target backend: %w", err)
	}

	if err := rt.core.SwitchMemory(ctx, toKind, newBackend); err != nil {
		return fmt.Errorf("switch memory: %w", err)
	}

	fmt.Printf("memory backend switched to %q\n", toKind)
	return nil
}
