// Package summarize implements the MemorySummarizer: compression of older
// stored turns into a rolling summary, run after turns are persisted
// (not in the prompt path — that's internal/context's job).
//
// Grounded on internal/agent/context/summary.go's
// FindLatestSummary/NeedsSummarization/CreateSummaryMessage shape for the
// sliding-window/supersedes-tracking logic, and internal/compaction's
// chars/4 token-estimation heuristic for the token_budget mode threshold
// and its chunk-then-merge strategy for spans too large for one LLM call.
package summarize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/agentcore/internal/compaction"
	ctxmgr "github.com/haasonsaas/agentcore/internal/context"
	"github.com/haasonsaas/agentcore/internal/events"
	"github.com/haasonsaas/agentcore/internal/llm"
	"github.com/haasonsaas/agentcore/internal/memory"
	"github.com/haasonsaas/agentcore/internal/store"
)

// Mode selects the trigger condition for summarization, matching
// spec.md §4.7's memory_config.mode.
type Mode string

const (
	ModeSlidingWindow Mode = "sliding_window"
	ModeTokenBudget   Mode = "token_budget"
)

// RetentionPolicy controls what happens to superseded source messages.
type RetentionPolicy string

const (
	RetentionKeep   RetentionPolicy = "keep"
	RetentionDelete RetentionPolicy = "delete"
)

// Config mirrors spec.md §6's memory_config record.
type Config struct {
	Mode            Mode
	Value           int
	Enabled         bool
	RetentionPolicy RetentionPolicy
}

// summaryPromptTemplate is the reserved prompt used to ask the LLM for a
// condensed summary of a dropped span.
const summaryPromptTemplate = "Summarize the following conversation turns concisely, preserving any facts, decisions, or commitments a later turn might need:\n\n%s"

const summarizeSystemPrompt = "You compress conversation history into short, information-dense summaries."

// Summarizer runs after turns are persisted, compressing a session's
// oldest active messages into a single rolling summary once the
// configured threshold is exceeded. A single session has at most one
// rolling summary at a time; its SupersedesIDs grows as later
// summarization rounds fold in more history.
type Summarizer struct {
	cfg    Config
	router *memory.Router
	llm    llm.Client
	events *events.Router
	nowFn  func() time.Time
	idFn   func() string

	mu       sync.Mutex
	sessions map[string]*sync.Mutex // per-session serialization
}

// New builds a Summarizer. evtRouter may be nil, in which case
// summary_created events are simply not published. nowFn/idFn default to
// time.Now/a uuid-style generator if nil; tests inject deterministic
// versions.
func New(cfg Config, router *memory.Router, client llm.Client, evtRouter *events.Router, nowFn func() time.Time, idFn func() string) *Summarizer {
	return &Summarizer{
		cfg:      cfg,
		router:   router,
		llm:      client,
		events:   evtRouter,
		nowFn:    nowFn,
		idFn:     idFn,
		sessions: make(map[string]*sync.Mutex),
	}
}

func (s *Summarizer) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sessions[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.sessions[sessionID] = l
	}
	return l
}

// MaybeSummarize checks whether sessionID's active history exceeds the
// configured threshold and, if so, summarizes the oldest span. Safe to
// call after every turn; it is a no-op when under threshold.
func (s *Summarizer) MaybeSummarize(ctx context.Context, sessionID string) error {
	if !s.cfg.Enabled {
		return nil
	}
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	active, err := s.router.Load(ctx, sessionID, store.Filter{ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("summarize: load active history: %w", err)
	}

	toSummarize := s.selectSpan(active)
	if len(toSummarize) == 0 {
		return nil
	}

	summary, err := s.SummarizeSpan(ctx, sessionID, toSummarize)
	if err != nil {
		return err
	}

	if err := s.router.Append(ctx, sessionID, summary); err != nil {
		return fmt.Errorf("summarize: append summary: %w", err)
	}
	s.emit(ctx, sessionID, "summary_created", map[string]any{
		"summary_id":  summary.ID,
		"folded":      len(toSummarize),
		"token_count": summary.TokenEstimate,
	})

	ids := make([]string, len(toSummarize))
	for i, m := range toSummarize {
		ids[i] = m.ID
	}
	// Both retention policies mark sources inactive first, so they drop
	// out of every active-view read immediately. "delete" additionally
	// purges the underlying rows where the backend supports it; backends
	// that don't implement Purger keep the (now inactive) rows, which is
	// externally indistinguishable from "keep" until a GC pass runs.
	if err := s.router.UpdateActive(ctx, sessionID, ids, false); err != nil {
		return fmt.Errorf("summarize: mark sources inactive: %w", err)
	}
	if s.cfg.RetentionPolicy == RetentionDelete {
		if err := s.router.Purge(ctx, sessionID, ids); err != nil {
			return fmt.Errorf("summarize: purge sources: %w", err)
		}
	}
	return nil
}

// selectSpan picks the oldest-to-newest span of active, non-summary
// messages that should be folded into a (possibly new) rolling summary,
// never selecting a tool-call message without its paired tool results.
func (s *Summarizer) selectSpan(active []store.Message) []store.Message {
	var nonSummary []store.Message
	for _, m := range active {
		if m.Role != store.RoleSummary {
			nonSummary = append(nonSummary, m)
		}
	}

	var overCount int
	switch s.cfg.Mode {
	case ModeTokenBudget:
		total := 0
		for _, m := range nonSummary {
			total += tokenEstimate(m)
		}
		if total <= s.cfg.Value {
			return nil
		}
		// Fold oldest messages until the remaining active tokens fit.
		running := total
		for i, m := range nonSummary {
			running -= tokenEstimate(m)
			if running <= s.cfg.Value {
				overCount = i + 1
				break
			}
		}
	default: // ModeSlidingWindow
		if len(nonSummary) <= s.cfg.Value {
			return nil
		}
		overCount = len(nonSummary) - s.cfg.Value
	}

	if overCount <= 0 {
		return nil
	}
	if overCount > len(nonSummary) {
		overCount = len(nonSummary)
	}
	return avoidSplittingToolPair(nonSummary, overCount)
}

// avoidSplittingToolPair extends the drop count forward past any
// tool-result messages that would otherwise be separated from their
// originating tool-call message.
func avoidSplittingToolPair(messages []store.Message, cut int) []store.Message {
	for cut < len(messages) && messages[cut].Role == store.RoleTool {
		cut++
	}
	return messages[:cut]
}

func tokenEstimate(m store.Message) int {
	if m.TokenEstimate > 0 {
		return m.TokenEstimate
	}
	return ctxmgr.EstimateTokens(m.Content)
}

// SummarizeSpan condenses toSummarize into one summary message,
// implementing the context.Summarizer capability so ContextManager's
// summarize_and_truncate strategy can delegate here rather than
// duplicating the summarization call. Spans that would overflow one LLM
// call are chunked and merged via internal/compaction rather than sent
// whole; small spans go through a single direct call.
func (s *Summarizer) SummarizeSpan(ctx context.Context, sessionID string, toSummarize []store.Message) (store.Message, error) {
	if len(toSummarize) == 0 {
		return store.Message{}, fmt.Errorf("summarize: empty span")
	}

	text, err := s.summarizeText(ctx, toSummarize)
	if err != nil {
		return store.Message{}, fmt.Errorf("summarize: llm call: %w", err)
	}

	ids := make([]string, len(toSummarize))
	for i, m := range toSummarize {
		ids[i] = m.ID
	}

	return store.Message{
		ID:            s.newID(),
		SessionID:     sessionID,
		Role:          store.RoleSummary,
		Content:       text,
		CreatedAt:     s.now(),
		TokenEstimate: ctxmgr.EstimateTokens(text),
		Active:        true,
		SupersedesIDs: ids,
	}, nil
}

// summarizeText picks between a single direct LLM call and
// compaction's chunk-then-merge strategy, depending on whether the span
// fits within one chunk's worth of the default summarization budget.
func (s *Summarizer) summarizeText(ctx context.Context, toSummarize []store.Message) (string, error) {
	cMessages := toCompactionMessages(toSummarize)
	cfg := compaction.DefaultSummarizationConfig()

	if compaction.EstimateMessagesTokens(cMessages) <= cfg.MaxChunkTokens {
		transcript := renderTranscript(toSummarize)
		resp, err := s.llm.Complete(ctx, []llm.Message{
			{Role: "system", Content: summarizeSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(summaryPromptTemplate, transcript)},
		}, nil, llm.Params{})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}

	return compaction.SummarizeInStages(ctx, cMessages, &llmChunkSummarizer{llm: s.llm}, cfg)
}

// llmChunkSummarizer adapts llm.Client to compaction.Summarizer so
// SummarizeInStages/SummarizeChunks can drive it one chunk at a time.
type llmChunkSummarizer struct {
	llm llm.Client
}

func (a *llmChunkSummarizer) GenerateSummary(ctx context.Context, messages []*compaction.Message, _ *compaction.SummarizationConfig) (string, error) {
	resp, err := a.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(summaryPromptTemplate, renderCompactionTranscript(messages))},
	}, nil, llm.Params{})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func toCompactionMessages(messages []store.Message) []*compaction.Message {
	out := make([]*compaction.Message, len(messages))
	for i, m := range messages {
		out[i] = &compaction.Message{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.CreatedAt.Unix(),
			ID:        m.ID,
		}
	}
	return out
}

func renderTranscript(messages []store.Message) string {
	var out string
	for _, m := range messages {
		out += fmt.Sprintf("[%s] %s\n", m.Role, m.Content)
	}
	return out
}

func renderCompactionTranscript(messages []*compaction.Message) string {
	var out string
	for _, m := range messages {
		out += fmt.Sprintf("[%s] %s\n", m.Role, m.Content)
	}
	return out
}

func (s *Summarizer) emit(ctx context.Context, sessionID, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.Emit(ctx, store.Event{
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: s.now(),
		Payload:   payload,
	})
}

func (s *Summarizer) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now().UTC()
}

func (s *Summarizer) newID() string {
	if s.idFn != nil {
		return s.idFn()
	}
	return fmt.Sprintf("sum-%d", time.Now().UnixNano())
}
