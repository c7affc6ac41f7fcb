package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/artifacts"
	"github.com/haasonsaas/agentcore/internal/errs"
	"github.com/haasonsaas/agentcore/internal/events"
	"github.com/haasonsaas/agentcore/internal/memory"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/reasoning"
	"github.com/haasonsaas/agentcore/internal/store"
	"github.com/haasonsaas/agentcore/internal/tools"
)

// AgentCore is the facade spec.md §6 names as the module's public API. A
// single instance serves many sessions; per-session mutual exclusion
// (spec.md §5: "a single agent processes one request per session at a
// time") is enforced internally, so callers never need their own
// session-level locking.
type AgentCore struct {
	cfg          Config
	reasoningCfg reasoning.Config

	memory    *memory.Router
	events    *events.Router
	tools     *tools.Registry
	artifacts artifacts.Repository
	engine    *reasoning.Engine

	agentMetrics *observability.AgentMetrics
	metrics      *observability.Metrics
	logger       *observability.Logger

	sessionLocks sync.Map // session_id -> *sync.Mutex
	inFlight     chan struct{}

	providersMu sync.Mutex
	providers   []ToolProvider
	connected   bool
}

// New builds an AgentCore over already-constructed subsystems. engine
// must have been built with the same memRouter/evtRouter/toolRegistry/
// artifactRepo passed here, so the facade's bookkeeping (session locks,
// metrics) and the engine's actual I/O agree on the same backing stores.
func New(
	engine *reasoning.Engine,
	reasoningCfg reasoning.Config,
	memRouter *memory.Router,
	evtRouter *events.Router,
	toolRegistry *tools.Registry,
	artifactRepo artifacts.Repository,
	cfg Config,
	agentMetrics *observability.AgentMetrics,
	metrics *observability.Metrics,
	logger *observability.Logger,
	providers ...ToolProvider,
) *AgentCore {
	a := &AgentCore{
		cfg:          cfg,
		reasoningCfg: reasoningCfg,
		memory:       memRouter,
		events:       evtRouter,
		tools:        toolRegistry,
		artifacts:    artifactRepo,
		engine:       engine,
		agentMetrics: agentMetrics,
		metrics:      metrics,
		logger:       logger,
		providers:    providers,
	}
	if cfg.RequestLimit > 0 {
		a.inFlight = make(chan struct{}, cfg.RequestLimit)
	}
	return a
}

func (a *AgentCore) sessionLock(sessionID string) *sync.Mutex {
	v, _ := a.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Run executes one turn for sessionID (generated if empty), serialized
// against any other Run for the same session, and bounded by
// Config.RequestLimit across all sessions.
func (a *AgentCore) Run(ctx context.Context, query, sessionID string) (reasoning.RunResult, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if a.inFlight != nil {
		select {
		case a.inFlight <- struct{}{}:
			defer func() { <-a.inFlight }()
		case <-ctx.Done():
			return reasoning.RunResult{}, ctx.Err()
		}
	}

	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if a.metrics != nil {
		a.metrics.ActiveSessions.Inc()
		defer a.metrics.ActiveSessions.Dec()
	}

	result, err := a.engine.Run(ctx, sessionID, query)
	if a.agentMetrics != nil {
		a.agentMetrics.RecordRun(result.Metric.InputTokens, result.Metric.OutputTokens, result.Metric.ToolCalls, result.Metric.Duration, result.Error != nil)
	}
	return result, err
}

// Stream returns every event emitted for sessionID after afterEventID,
// oldest first. Callers poll again with the last event_id seen to
// continue the (conceptually infinite) stream.
func (a *AgentCore) Stream(ctx context.Context, sessionID, afterEventID string) ([]store.Event, error) {
	return a.events.Stream(ctx, sessionID, afterEventID)
}

// SwitchMemory migrates session history onto newBackend, identified by
// kind, following MemoryRouter's snapshot-then-flip protocol.
func (a *AgentCore) SwitchMemory(ctx context.Context, kind string, newBackend store.KVStore) error {
	if err := a.memory.SwitchTo(ctx, kind, newBackend); err != nil {
		return errs.Wrap(errs.KindMigrationFailed, "switch memory backend", err)
	}
	return nil
}

// SwitchEvents migrates the event stream onto newBackend, identified by
// kind, writing a routing_handover marker to both streams.
func (a *AgentCore) SwitchEvents(ctx context.Context, kind string, newBackend store.StreamStore) error {
	if err := a.events.SwitchTo(ctx, kind, newBackend, uuid.NewString()); err != nil {
		return errs.Wrap(errs.KindMigrationFailed, "switch event backend", err)
	}
	return nil
}

// ListTools returns the current tool catalog, deterministically ordered.
func (a *AgentCore) ListTools() []tools.Descriptor {
	return a.tools.Catalog()
}

// GetSessionHistory returns a session's active messages, ordered by
// (created_at, id) per spec.md §8's session-ordering invariant.
func (a *AgentCore) GetSessionHistory(ctx context.Context, sessionID string) ([]store.Message, error) {
	history, err := a.memory.Load(ctx, sessionID, store.Filter{ActiveOnly: true})
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, "load session history", err)
	}
	return history, nil
}

// ClearSession deletes a session's history outright. sessionID is
// required: this facade has no notion of an implicit "current session",
// so the optional-looking spelling in spec.md §6 resolves to "caller
// must name the session" (see DESIGN.md).
func (a *AgentCore) ClearSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errs.New(errs.KindInternal, "clearSession requires a session id")
	}
	if err := a.memory.Clear(ctx, sessionID); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, "clear session", err)
	}
	a.sessionLocks.Delete(sessionID)
	return nil
}

// GetMetrics returns a snapshot of this AgentCore's cumulative run
// counters and EWMA response time.
func (a *AgentCore) GetMetrics() observability.Snapshot {
	if a.agentMetrics == nil {
		return observability.Snapshot{}
	}
	return a.agentMetrics.Snapshot()
}

// Cleanup releases resources held by the facade: connected tool
// providers are closed and expired artifacts are pruned. Safe to call
// once at shutdown.
func (a *AgentCore) Cleanup(ctx context.Context) error {
	a.providersMu.Lock()
	for _, p := range a.providers {
		if err := p.Close(); err != nil && a.logger != nil {
			a.logger.Warn(ctx, "tool provider close failed", "provider_id", p.ID(), "error", err)
		}
	}
	a.connected = false
	a.providersMu.Unlock()

	if a.artifacts != nil {
		if _, err := a.artifacts.PruneExpired(ctx); err != nil {
			return errs.Wrap(errs.KindInternal, "prune expired artifacts", err)
		}
	}
	return nil
}

// ConnectToolProviders connects every registered ToolProvider and folds
// its tools into the catalog as kind "mcp", namespaced
// "<provider_id>.<tool_name>" to avoid collisions across providers.
func (a *AgentCore) ConnectToolProviders(ctx context.Context) error {
	a.providersMu.Lock()
	defer a.providersMu.Unlock()

	for _, p := range a.providers {
		if err := p.Connect(ctx); err != nil {
			return errs.Wrap(errs.KindInternal, fmt.Sprintf("connect tool provider %s", p.ID()), err)
		}
		descriptors, err := p.ListTools(ctx)
		if err != nil {
			return errs.Wrap(errs.KindInternal, fmt.Sprintf("list tools for provider %s", p.ID()), err)
		}
		for _, d := range descriptors {
			provider := p
			qualified := provider.ID() + "." + d.Name
			toolName := d.Name
			d.Name = qualified
			d.Kind = tools.KindMCP
			handler := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				return provider.Call(ctx, toolName, args)
			}
			if err := a.tools.Register(d, handler); err != nil && a.logger != nil {
				a.logger.Warn(ctx, "skipping duplicate mcp tool", "tool_name", qualified, "error", err)
			}
		}
	}
	a.connected = true
	return nil
}
