package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/haasonsaas/agentcore/internal/agentcore"
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

func newTestAgent(t *testing.T, client llm.Client) *agentcore.AgentCore {
	t.Helper()
	memRouter := memory.New("memkv", memkv.New(), nil)
	evtRouter := events.New("memkv", memkv.NewStreamStore(), 0, nil)
	registry := tools.New()
	ctxManager := ctxmgr.New(ctxmgr.DefaultConfig(), nil)
	reasoningCfg := reasoning.DefaultConfig()
	engine := reasoning.New(memRouter, evtRouter, registry, nil, nil, ctxManager, nil, client, reasoningCfg, nil, nil)
	return agentcore.New(engine, reasoningCfg, memRouter, evtRouter, registry, nil, agentcore.DefaultConfig(), observability.NewAgentMetrics(), nil, nil)
}

func TestSequential_ThreadsOutputForward(t *testing.T) {
	upper := newTestAgent(t, mockllm.New(mockllm.Turn{Completion: llm.Completion{Text: "STEP-ONE-OUT"}}))
	final := newTestAgent(t, mockllm.New(mockllm.Turn{Completion: llm.Completion{Text: "STEP-TWO-OUT"}}))

	seq := NewSequential(upper, final)
	result, err := seq.Run(context.Background(), "start", "sess-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Response != "STEP-TWO-OUT" {
		t.Fatalf("expected last step's response, got %q", result.Response)
	}
}

func TestSequential_AbortsOnStepError(t *testing.T) {
	failing := newTestAgent(t, erroringClient{})
	never := newTestAgent(t, mockllm.Echo())

	seq := NewSequential(failing, never)
	if _, err := seq.Run(context.Background(), "start", "sess-2"); err == nil {
		t.Fatal("expected an error from the failing step")
	}
}

func TestSequential_RequiresSteps(t *testing.T) {
	seq := NewSequential()
	if _, err := seq.Run(context.Background(), "q", "s"); err == nil {
		t.Fatal("expected an error for an empty sequential workflow")
	}
}

func TestParallel_JoinsAllChildren(t *testing.T) {
	a := newTestAgent(t, mockllm.New(mockllm.Turn{Completion: llm.Completion{Text: "A-OUT"}}))
	b := newTestAgent(t, mockllm.New(mockllm.Turn{Completion: llm.Completion{Text: "B-OUT"}}))

	par := NewParallel(
		Member{Name: "a", Description: "agent a", Agent: a},
		Member{Name: "b", Description: "agent b", Agent: b},
	)

	results, err := par.Run(context.Background(), "task", "sess-3")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results["a"].Run.Response != "A-OUT" {
		t.Fatalf("expected A-OUT, got %q", results["a"].Run.Response)
	}
	if results["b"].Run.Response != "B-OUT" {
		t.Fatalf("expected B-OUT, got %q", results["b"].Run.Response)
	}
}

func TestParallel_ReportsChildErrorsWithoutFailingTheRun(t *testing.T) {
	ok := newTestAgent(t, mockllm.Echo())
	bad := newTestAgent(t, erroringClient{})

	par := NewParallel(
		Member{Name: "ok", Agent: ok},
		Member{Name: "bad", Agent: bad},
	)

	results, err := par.Run(context.Background(), "task", "sess-4")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if results["bad"].Run.Error == nil {
		t.Fatal("expected the failing child's RunResult to carry an error")
	}
	if results["ok"].Run.Response != "task" {
		t.Fatalf("expected the healthy child to still complete, got %q", results["ok"].Run.Response)
	}
}

type fixedClassifier struct {
	name   string
	reason string
}

func (c fixedClassifier) Classify(ctx context.Context, task string, candidates []Member) (string, string, error) {
	return c.name, c.reason, nil
}

func TestRouter_RunsSelectedChild(t *testing.T) {
	billing := newTestAgent(t, mockllm.New(mockllm.Turn{Completion: llm.Completion{Text: "billing handled"}}))
	support := newTestAgent(t, mockllm.New(mockllm.Turn{Completion: llm.Completion{Text: "support handled"}}))

	r := NewRouter(fixedClassifier{name: "billing"},
		Member{Name: "billing", Description: "handles billing", Agent: billing},
		Member{Name: "support", Description: "handles support", Agent: support},
	)

	result, err := r.Run(context.Background(), "refund please", "sess-5")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Response != "billing handled" {
		t.Fatalf("expected billing's response, got %q", result.Response)
	}
}

func TestRouter_ExhaustsRetriesOnRepeatedRefusal(t *testing.T) {
	billing := newTestAgent(t, mockllm.Echo())
	r := NewRouter(fixedClassifier{reason: "out of scope"},
		Member{Name: "billing", Agent: billing},
	)
	r.RetryLimit = 2

	if _, err := r.Run(context.Background(), "???", "sess-6"); err == nil {
		t.Fatal("expected router to exhaust retries and return an error")
	}
}

func TestRouter_RequiresChildren(t *testing.T) {
	r := NewRouter(fixedClassifier{})
	if _, err := r.Run(context.Background(), "q", "s"); err == nil {
		t.Fatal("expected an error for a router with no children")
	}
}

// erroringClient fails every Complete call, for exercising Sequential's
// abort-on-error and Parallel's report-but-don't-fail paths.
type erroringClient struct{}

func (erroringClient) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema, params llm.Params) (llm.Completion, error) {
	return llm.Completion{}, fmt.Errorf("simulated provider failure")
}
