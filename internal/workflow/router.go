package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/agentcore/internal/llm"
	"github.com/haasonsaas/agentcore/internal/reasoning"
)

// Classifier selects exactly one candidate's Name for a task, or refuses
// with a non-empty reason the Router logs and retries against, up to
// RetryLimit times. Grounded on internal/multiagent/router.go's
// IntentClassifier interface, generalized from "classify into one of
// several intents" to "classify into one of several named candidates".
type Classifier interface {
	Classify(ctx context.Context, task string, candidates []Member) (selected, refusalReason string, err error)
}

// LLMClassifier grounds Classify in a single LLMClient.Complete call, the
// "dedicated LLM call" spec.md §4.10 names for the Router variant.
type LLMClassifier struct {
	LLM   llm.Client
	Model string
}

const routerSystemPrompt = "You route tasks to the single best-suited specialist from a fixed list. " +
	"Reply with only the specialist's name if one fits. If none fit, reply with exactly " +
	"\"none: <short reason>\"."

func (c *LLMClassifier) Classify(ctx context.Context, task string, candidates []Member) (string, string, error) {
	var b strings.Builder
	b.WriteString("Task:\n")
	b.WriteString(task)
	b.WriteString("\n\nCandidates:\n")
	for _, m := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", m.Name, m.Description)
	}

	resp, err := c.LLM.Complete(ctx, []llm.Message{
		{Role: "system", Content: routerSystemPrompt},
		{Role: "user", Content: b.String()},
	}, nil, llm.Params{Model: c.Model})
	if err != nil {
		return "", "", fmt.Errorf("router classify: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if strings.HasPrefix(strings.ToLower(text), "none") {
		reason := strings.TrimSpace(strings.TrimPrefix(text, "none:"))
		if reason == "" {
			reason = "classifier declined to select a candidate"
		}
		return "", reason, nil
	}
	return text, "", nil
}

// Router picks exactly one child via a Classifier and runs the original
// task against it, re-routing up to RetryLimit times on refusal before
// giving up. RetryLimit 0 is treated as 1, spec.md §4.10's default.
type Router struct {
	Children   []Member
	Classifier Classifier
	RetryLimit int
}

// NewRouter builds a Router over children, routed by classifier, with
// the default router_retry_limit of 1.
func NewRouter(classifier Classifier, children ...Member) *Router {
	return &Router{Children: children, Classifier: classifier, RetryLimit: 1}
}

func (r *Router) Run(ctx context.Context, query, sessionID string) (reasoning.RunResult, error) {
	if len(r.Children) == 0 {
		return reasoning.RunResult{}, fmt.Errorf("workflow: router has no children")
	}

	limit := r.RetryLimit
	if limit <= 0 {
		limit = 1
	}

	var lastRefusal string
	for attempt := 0; attempt <= limit; attempt++ {
		name, refusal, err := r.Classifier.Classify(ctx, query, r.Children)
		if err != nil {
			return reasoning.RunResult{}, fmt.Errorf("workflow: router classify: %w", err)
		}
		if refusal != "" {
			lastRefusal = refusal
			continue
		}

		child := findMember(r.Children, name)
		if child == nil {
			lastRefusal = fmt.Sprintf("classifier selected unknown candidate %q", name)
			continue
		}
		return child.Agent.Run(ctx, query, sessionID)
	}

	return reasoning.RunResult{}, fmt.Errorf("workflow: router exhausted %d attempt(s), last refusal: %s", limit+1, lastRefusal)
}

func findMember(members []Member, name string) *Member {
	for i := range members {
		if members[i].Name == name {
			return &members[i]
		}
	}
	return nil
}
