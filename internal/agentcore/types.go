// Package agentcore implements the AgentCore public facade: the single
// entry point spec.md §6 names (run, stream, switchMemory, switchEvents,
// connectToolProviders, listTools, getSessionHistory, clearSession,
// getMetrics, cleanup), composing the ReasoningEngine with the routers,
// registries, and stores it needs without exposing their construction
// surface to callers.
//
// Grounded on internal/agent/loop.go's top-level LoopConfig/AgenticLoop
// as the "one struct owns the whole request path" shape, generalized
// from a single loop type into a facade that also owns backend
// hot-swapping and sub-agent registration.
package agentcore

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/agentcore/internal/tools"
)

// Config configures the facade itself, independent of the reasoning,
// memory, context, and guardrail configs already owned by the
// subsystems it wires together.
type Config struct {
	// RequestLimit caps the number of runs in flight across every
	// session at once. 0 means unbounded, per spec.md §6's
	// request_limit(0) default.
	RequestLimit int

	// EnableAgentSkills toggles registration of skill_script-kind tools
	// discovered from the configured skills directory.
	EnableAgentSkills bool

	// MemoryToolBackend selects whether a "none" or "local" memory tool
	// (letting the model read/write scratch notes outside chat history)
	// is registered alongside the ordinary tool catalog.
	MemoryToolBackend string
}

// DefaultConfig returns spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{RequestLimit: 0, EnableAgentSkills: false, MemoryToolBackend: "none"}
}

// ToolProvider is the MCPConnector contract from spec.md §6, narrowed to
// what the facade needs to fold a provider's tools into the registry:
// connect, enumerate, invoke, close. Transport-specific implementations
// (stdio / http-stream / sse) live in internal/mcp.
type ToolProvider interface {
	ID() string
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]tools.Descriptor, error)
	Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
	Close() error
}
