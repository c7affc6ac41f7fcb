// Bootstrap wires a config.Config into a running AgentCore: selecting
// the configured memory/event backends, the LLM provider, the guardrail
// and context managers, and the background scheduler, grounded on the
// teacher's cmd/nexus/handlers_serve.go composition root (load config,
// construct the gateway, start it, wait on signals, stop it).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/agentcore/internal/agentcore"
	"github.com/haasonsaas/agentcore/internal/artifacts"
	"github.com/haasonsaas/agentcore/internal/cache"
	"github.com/haasonsaas/agentcore/internal/config"
	ctxmgr "github.com/haasonsaas/agentcore/internal/context"
	"github.com/haasonsaas/agentcore/internal/events"
	"github.com/haasonsaas/agentcore/internal/guardrail"
	"github.com/haasonsaas/agentcore/internal/llm"
	"github.com/haasonsaas/agentcore/internal/llm/anthropic"
	"github.com/haasonsaas/agentcore/internal/llm/bedrock"
	"github.com/haasonsaas/agentcore/internal/llm/openai"
	"github.com/haasonsaas/agentcore/internal/mcp"
	"github.com/haasonsaas/agentcore/internal/memory"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/reasoning"
	"github.com/haasonsaas/agentcore/internal/scheduler"
	"github.com/haasonsaas/agentcore/internal/skills"
	"github.com/haasonsaas/agentcore/internal/store"
	"github.com/haasonsaas/agentcore/internal/store/dockv"
	"github.com/haasonsaas/agentcore/internal/store/filekv"
	"github.com/haasonsaas/agentcore/internal/store/memkv"
	"github.com/haasonsaas/agentcore/internal/store/sqlkv"
	"github.com/haasonsaas/agentcore/internal/summarize"
	"github.com/haasonsaas/agentcore/internal/tools"
)

// runtime bundles every subsystem bootstrap constructs, so serve/run/
// migrate commands share one setup path and one shutdown path.
type runtime struct {
	core      *agentcore.AgentCore
	scheduler *scheduler.Manager
	memory    *memory.Router
	events    *events.Router
	mcp       *mcp.Manager
	guard     *guardrail.Guardrail
	logger    *observability.Logger
	tracer    *observability.Tracer
	runDedupe *cache.DedupeCache
	shutdownTracer func(context.Context) error
}

// bootstrap constructs every subsystem named in cfg and wires them into
// a runtime, following the teacher's "one struct owns the whole request
// path" composition style from internal/agent/loop.go.
func bootstrap(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Observability.Logging.Level,
		Format:    cfg.Observability.Logging.Format,
		AddSource: cfg.Observability.Logging.AddSource,
	})

	var tracer *observability.Tracer
	shutdownTracer := func(context.Context) error { return nil }
	if cfg.Observability.Tracing.Enabled && cfg.Observability.Tracing.Endpoint != "" {
		tracer, shutdownTracer = newTracer(cfg)
	}

	metrics := observability.NewMetrics()
	agentMetrics := observability.NewAgentMetrics()

	kvStore, err := buildKVStore(ctx, cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: memory backend: %w", err)
	}
	memRouter := memory.New(cfg.Memory.Kind, kvStore, logger)

	streamStore, err := buildStreamStore(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: events backend: %w", err)
	}
	evtRouter := events.New(cfg.Events.Kind, streamStore, cfg.Events.BufferSize, logger)

	artifactStore, err := buildArtifactStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: artifact store: %w", err)
	}
	artifactRepo := artifacts.NewMemoryRepository(artifactStore, cfg.Artifacts.MaxPreviewTokens, slog.Default())

	guard, err := guardrail.New(cfg.Guardrail)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: guardrail: %w", err)
	}

	llmClient, err := buildLLMClient(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: llm client: %w", err)
	}

	summarizer := summarize.New(config.SummarizerConfig(cfg.Summarize), memRouter, llmClient, evtRouter, nil, nil)
	ctxManager := ctxmgr.New(cfg.Context, summarizer)

	registry := tools.New()
	if cfg.Agent.EnableAgentSkills && cfg.Skills.Enabled {
		skillsManager := skills.New(cfg.Skills.Directory, slog.Default())
		if err := skillsManager.Load(ctx, registry); err != nil {
			return nil, fmt.Errorf("bootstrap: skills: %w", err)
		}
	}

	reasoningCfg := config.ReasoningConfig(cfg.Agent)
	engine := reasoning.New(memRouter, evtRouter, registry, artifactRepo, guard, ctxManager, summarizer, llmClient, reasoningCfg, metrics, logger)

	var mcpManager *mcp.Manager
	var providers []agentcore.ToolProvider
	if cfg.MCP.Enabled {
		mcpManager = mcp.NewManager(&cfg.MCP, slog.Default())
		for _, serverCfg := range cfg.MCP.Servers {
			if serverCfg == nil || !serverCfg.AutoStart {
				continue
			}
			providers = append(providers, mcp.NewConnector(serverCfg, slog.Default()))
		}
	}

	facadeCfg := agentcore.Config{
		RequestLimit:      cfg.Agent.RequestLimit,
		EnableAgentSkills: cfg.Agent.EnableAgentSkills,
		MemoryToolBackend: cfg.Agent.MemoryToolBackend,
	}
	core := agentcore.New(engine, reasoningCfg, memRouter, evtRouter, registry, artifactRepo, facadeCfg, agentMetrics, metrics, logger, providers...)

	if len(providers) > 0 {
		if err := core.ConnectToolProviders(ctx); err != nil {
			logger.Warn(ctx, "tool provider connect failed", "error", err)
		}
	}

	var sched *scheduler.Manager
	if cfg.Scheduler.Enabled {
		emitter := &schedulerEventEmitter{events: evtRouter}
		sched = scheduler.New(emitter, metrics, logger,
			scheduler.WithQueueSize(cfg.Scheduler.QueueSize),
			scheduler.WithShutdownGrace(cfg.Scheduler.ShutdownGraceSeconds))
	}

	runDedupe := cache.NewDedupeCache(cache.DedupeCacheOptions{
		TTL:     5 * time.Minute,
		MaxSize: 10000,
	})

	return &runtime{
		core:           core,
		scheduler:      sched,
		memory:         memRouter,
		events:         evtRouter,
		mcp:            mcpManager,
		guard:          guard,
		logger:         logger,
		tracer:         tracer,
		runDedupe:      runDedupe,
		shutdownTracer: shutdownTracer,
	}, nil
}

// schedulerEventEmitter adapts events.Router to scheduler.EventEmitter,
// keying background-task events under a synthetic per-agent stream so
// they ride the same Stream()/SwitchTo() machinery as session events.
type schedulerEventEmitter struct {
	events *events.Router
}

func (e *schedulerEventEmitter) Emit(ctx context.Context, event scheduler.TaskEvent) error {
	return e.events.Emit(ctx, store.Event{
		EventID:   uuid.NewString(),
		SessionID: "agent:" + event.AgentID,
		AgentID:   event.AgentID,
		Type:      event.Type,
		Timestamp: time.Now().UTC(),
		Payload:   taskEventPayload(event),
	})
}

func taskEventPayload(event scheduler.TaskEvent) map[string]any {
	payload := map[string]any{"task_id": event.TaskID}
	for k, v := range event.Payload {
		payload[k] = v
	}
	return payload
}

// Close releases every subsystem the runtime owns, in reverse
// construction order.
func (r *runtime) Close(ctx context.Context) error {
	if r.scheduler != nil {
		if err := r.scheduler.Shutdown(ctx); err != nil {
			return err
		}
	}
	if r.mcp != nil {
		_ = r.mcp.Stop()
	}
	if err := r.core.Cleanup(ctx); err != nil {
		return err
	}
	return r.shutdownTracer(ctx)
}

func buildKVStore(ctx context.Context, cfg config.MemoryConfig) (store.KVStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "memkv":
		return memkv.New(), nil
	case "filekv":
		return filekv.New(cfg.DSN)
	case "sqlkv":
		driver := sqlkv.Driver(cfg.Driver)
		if driver == "" {
			driver = sqlkv.DriverSQLite
		}
		return sqlkv.Open(ctx, driver, cfg.DSN)
	case "dockv":
		return dockv.Open(ctx, cfg.DSN, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown memory.kind %q", cfg.Kind)
	}
}

// buildStreamStore only supports memkv today: filekv/sqlkv/dockv
// implement KVStore but not StreamStore (see DESIGN.md).
func buildStreamStore(cfg config.EventsConfig) (store.StreamStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "memkv":
		return memkv.NewStreamStore(), nil
	default:
		return nil, fmt.Errorf("events.kind %q has no StreamStore implementation yet; use \"memkv\"", cfg.Kind)
	}
}

func buildArtifactStore(ctx context.Context, cfg config.StoreConfig) (artifacts.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "local":
		return artifacts.NewLocalStore(cfg.Path)
	case "s3":
		return artifacts.NewS3Store(ctx, &artifacts.S3StoreConfig{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Prefix:   cfg.S3.Prefix,
			Endpoint: cfg.S3.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown store.backend %q", cfg.Backend)
	}
}

func buildLLMClient(ctx context.Context, cfg config.LLMConfig) (llm.Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.DefaultProvider))
	providerCfg, ok := cfg.Providers[provider]
	if !ok {
		providerCfg = cfg.Providers[cfg.DefaultProvider]
	}

	switch provider {
	case "", "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:       providerCfg.APIKey,
			BaseURL:      providerCfg.BaseURL,
			DefaultModel: providerCfg.DefaultModel,
			MaxRetries:   providerCfg.MaxRetries,
			RetryDelay:   providerCfg.RetryDelay,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:       providerCfg.APIKey,
			BaseURL:      providerCfg.BaseURL,
			DefaultModel: providerCfg.DefaultModel,
		})
	case "bedrock":
		return bedrock.New(ctx, bedrock.Config{
			Region:       providerCfg.Region,
			DefaultModel: providerCfg.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown llm.default_provider %q", cfg.DefaultProvider)
	}
}

func newTracer(cfg *config.Config) (*observability.Tracer, func(context.Context) error) {
	return observability.NewTracer(observability.TraceConfig{
		ServiceName:  "agentcore",
		Endpoint:     cfg.Observability.Tracing.Endpoint,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
	})
}
