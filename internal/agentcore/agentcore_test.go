package agentcore

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ctxmgr "github.com/haasonsaas/agentcore/internal/context"
	"github.com/haasonsaas/agentcore/internal/events"
	"github.com/haasonsaas/agentcore/internal/llm"
	"github.com/haasonsaas/agentcore/internal/llm/mockllm"
	"github.com/haasonsaas/agentcore/internal/memory"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/reasoning"
	"github.com/haasonsaas/agentcore/internal/store/memkv"
	"github.com/haasonsaas/agentcore/internal/tools"
)

func newTestCore(t *testing.T, client llm.Client, cfg Config) *AgentCore {
	t.Helper()
	memRouter := memory.New("memkv", memkv.New(), nil)
	evtRouter := events.New("memkv", memkv.NewStreamStore(), 0, nil)
	registry := tools.New()
	ctxManager := ctxmgr.New(ctxmgr.DefaultConfig(), nil)
	reasoningCfg := reasoning.DefaultConfig()
	engine := reasoning.New(memRouter, evtRouter, registry, nil, nil, ctxManager, nil, client, reasoningCfg, nil, nil)
	return New(engine, reasoningCfg, memRouter, evtRouter, registry, nil, cfg, observability.NewAgentMetrics(), nil, nil)
}

func TestAgentCore_RunGeneratesSessionID(t *testing.T) {
	core := newTestCore(t, mockllm.Echo(), DefaultConfig())
	result, err := core.Run(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Response != "hi" {
		t.Fatalf("expected echoed response, got %q", result.Response)
	}
}

func TestAgentCore_GetSessionHistoryAndClear(t *testing.T) {
	core := newTestCore(t, mockllm.Echo(), DefaultConfig())
	if _, err := core.Run(context.Background(), "hello", "sess-1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	history, err := core.GetSessionHistory(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSessionHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages (user + assistant), got %d", len(history))
	}

	if err := core.ClearSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	history, err = core.GetSessionHistory(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSessionHistory() after clear error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history after clear, got %d", len(history))
	}
}

func TestAgentCore_ClearSessionRequiresID(t *testing.T) {
	core := newTestCore(t, mockllm.Echo(), DefaultConfig())
	if err := core.ClearSession(context.Background(), ""); err == nil {
		t.Fatal("expected an error clearing without a session id")
	}
}

func TestAgentCore_SerializesRunsPerSession(t *testing.T) {
	var concurrent int32
	var maxConcurrent int32

	core := newTestCore(t, &blockingClient{
		onCall: func() {
			n := atomic.AddInt32(&concurrent, 1)
			for {
				cur := atomic.LoadInt32(&maxConcurrent)
				if n <= cur || atomic.CompareAndSwapInt32(&maxConcurrent, cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
		},
	}, DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = core.Run(context.Background(), "hi", "shared-session")
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&maxConcurrent) != 1 {
		t.Fatalf("expected runs on the same session to never overlap, max concurrent was %d", maxConcurrent)
	}
}

func TestAgentCore_GetMetricsAccumulates(t *testing.T) {
	core := newTestCore(t, mockllm.Echo(), DefaultConfig())
	_, _ = core.Run(context.Background(), "hi", "sess-m")
	_, _ = core.Run(context.Background(), "hi again", "sess-m")

	snap := core.GetMetrics()
	if snap.Requests != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", snap.Requests)
	}
}

type stubProvider struct {
	id      string
	tools   []tools.Descriptor
	closed  bool
	calledW string
}

func (p *stubProvider) ID() string { return p.id }
func (p *stubProvider) Connect(ctx context.Context) error { return nil }
func (p *stubProvider) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	return p.tools, nil
}
func (p *stubProvider) Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	p.calledW = name
	return json.RawMessage(`{"ok":true}`), nil
}
func (p *stubProvider) Close() error { p.closed = true; return nil }

func TestAgentCore_ConnectToolProvidersNamespacesTools(t *testing.T) {
	core := newTestCore(t, mockllm.Echo(), DefaultConfig())
	provider := &stubProvider{id: "search", tools: []tools.Descriptor{{Name: "lookup", Kind: tools.KindMCP}}}
	core.providers = []ToolProvider{provider}

	if err := core.ConnectToolProviders(context.Background()); err != nil {
		t.Fatalf("ConnectToolProviders() error = %v", err)
	}

	found := false
	for _, d := range core.ListTools() {
		if d.Name == "search.lookup" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected namespaced tool search.lookup in catalog")
	}

	if err := core.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if !provider.closed {
		t.Fatal("expected Cleanup to close the tool provider")
	}
}

func TestAgentCore_RegisterSubAgentRefusesPastMaxDepth(t *testing.T) {
	parentCfg := reasoning.DefaultConfig()
	parentCfg.SubAgentMaxDepth = 1

	memRouter := memory.New("memkv", memkv.New(), nil)
	evtRouter := events.New("memkv", memkv.NewStreamStore(), 0, nil)
	registry := tools.New()
	ctxManager := ctxmgr.New(ctxmgr.DefaultConfig(), nil)
	client := mockllm.Echo()
	engine := reasoning.New(memRouter, evtRouter, registry, nil, nil, ctxManager, nil, client, parentCfg, nil, nil)
	parent := New(engine, parentCfg, memRouter, evtRouter, registry, nil, DefaultConfig(), observability.NewAgentMetrics(), nil, nil)

	child := newTestCore(t, mockllm.Echo(), DefaultConfig())
	if err := parent.RegisterSubAgent("delegate", "delegates to a helper agent", child); err != nil {
		t.Fatalf("RegisterSubAgent() error = %v", err)
	}

	ctx := reasoning.WithIncrementedSubAgentDepth(context.Background())
	_, err := registry.Execute(ctx, "delegate", json.RawMessage(`{"session_id":"s","query":"hi"}`))
	if err == nil {
		t.Fatal("expected sub_agent call at max depth to be refused")
	}
}

type blockingClient struct {
	onCall func()
}

func (c *blockingClient) Complete(ctx context.Context, messages []llm.Message, schemas []llm.ToolSchema, params llm.Params) (llm.Completion, error) {
	c.onCall()
	return llm.Completion{Text: "done"}, nil
}
