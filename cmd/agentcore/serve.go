package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/haasonsaas/agentcore/internal/cache"
	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agentcore HTTP front end",
		Long: `Start the agentcore HTTP front end.

The server will:
1. Load and validate configuration from the given file
2. Construct the reasoning engine, memory/event routers, and tool registry
3. Connect any auto_start MCP tool providers
4. Start the background scheduler, if enabled
5. Serve run/stream/health endpoints over HTTP

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go watchGuardrailConfig(ctx, configPath, rt)

	mux := http.NewServeMux()
	registerHandlers(mux, rt)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info(ctx, "agentcore server started", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	rt.logger.Info(ctx, "shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return rt.Close(shutdownCtx)
}

// watchGuardrailConfig reloads cfg.Guardrail whenever configPath changes
// on disk, swapping it into the already-running Guardrail pipeline. It
// blocks until ctx is cancelled and logs a warning rather than failing
// the server if the watch itself cannot start (e.g. an unwatchable
// filesystem).
func watchGuardrailConfig(ctx context.Context, configPath string, rt *runtime) {
	err := config.Watch(ctx, configPath, rt.logger, func(cfg *config.Config) {
		if err := rt.guard.Reload(cfg.Guardrail); err != nil {
			rt.logger.Warn(ctx, "guardrail config reload rejected", "error", err)
			return
		}
		rt.logger.Info(ctx, "guardrail config reloaded", "path", configPath)
	})
	if err != nil {
		rt.logger.Warn(ctx, "config watch stopped", "path", configPath, "error", err)
	}
}

// registerHandlers wires the HTTP surface over AgentCore's facade
// methods: one run and one stream endpoint, plus a health check.
func registerHandlers(mux *http.ServeMux, rt *runtime) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /v1/run", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string `json:"query"`
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}

		if key := r.Header.Get("Idempotency-Key"); key != "" {
			if rt.runDedupe.Check(cache.IdempotencyKey(req.SessionID, key)) {
				writeJSONError(w, http.StatusConflict, fmt.Errorf("duplicate request for idempotency key %q", key))
				return
			}
		}

		result, err := rt.core.Run(r.Context(), req.Query, req.SessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /v1/sessions/{session_id}/stream", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("session_id")
		afterEventID := r.URL.Query().Get("after")
		events, err := rt.core.Stream(r.Context(), sessionID, afterEventID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	})

	mux.HandleFunc("GET /v1/sessions/{session_id}/history", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("session_id")
		history, err := rt.core.GetSessionHistory(r.Context(), sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	})

	mux.HandleFunc("DELETE /v1/sessions/{session_id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("session_id")
		if err := rt.core.ClearSession(r.Context(), sessionID); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /v1/tools", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.core.ListTools())
	})

	mux.HandleFunc("GET /v1/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.core.GetMetrics())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
