package observability

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting Prometheus
// metrics across the reasoning loop, tool dispatch, and store layers.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.LLMRequestDuration.WithLabelValues("anthropic", "claude").Observe(time.Since(start).Seconds())
type Metrics struct {
	// RunCounter counts agent runs by outcome (final_answer|abort|error).
	RunCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	// Labels: provider, model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider, model, status.
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption. Labels: provider, model, kind (input|output).
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations. Labels: tool_name, status.
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds. Labels: tool_name.
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by kind and component.
	ErrorCounter *prometheus.CounterVec

	// EventsDropped counts events dropped by EventRouter backpressure. Labels: session_id.
	EventsDropped *prometheus.CounterVec

	// SchedulerQueueOverflow counts dropped background tasks. Labels: agent_id.
	SchedulerQueueOverflow *prometheus.CounterVec

	// ActiveSessions gauges current in-flight runs.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// process startup; registers against the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		RunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_runs_total",
				Help: "Total number of agent runs by outcome",
			},
			[]string{"outcome"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_llm_request_duration_seconds",
				Help:    "LLM call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_requests_total",
				Help: "Total LLM requests by provider, model, status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_tokens_total",
				Help: "Token consumption by provider, model, kind",
			},
			[]string{"provider", "model", "kind"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_executions_total",
				Help: "Tool invocations by name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_execution_duration_seconds",
				Help:    "Tool execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_errors_total",
				Help: "Errors by kind and component",
			},
			[]string{"component", "kind"},
		),
		EventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_events_dropped_total",
				Help: "Events dropped by EventRouter backpressure",
			},
			[]string{"session_id"},
		),
		SchedulerQueueOverflow: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_scheduler_queue_overflow_total",
				Help: "Background tasks dropped due to a full per-agent queue",
			},
			[]string{"agent_id"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_active_sessions",
				Help: "Current number of in-flight runs",
			},
		),
	}
}

// AgentMetrics is the per-agent counter set returned by AgentCore.GetMetrics,
// per the data model: monotonic counters plus an EWMA of response time.
type AgentMetrics struct {
	mu sync.Mutex

	requests     int64
	inputTokens  int64
	outputTokens int64
	toolCalls    int64
	errors       int64
	totalTimeMs  int64
	ewmaMs       float64
}

// ewmaAlpha is the smoothing factor for the response-time moving average.
const ewmaAlpha = 0.2

// NewAgentMetrics returns a zeroed counter set.
func NewAgentMetrics() *AgentMetrics {
	return &AgentMetrics{}
}

// RecordRun updates the counters after one completed run.
func (m *AgentMetrics) RecordRun(inputTokens, outputTokens, toolCalls int, duration time.Duration, isError bool) {
	ms := float64(duration.Milliseconds())

	atomic.AddInt64(&m.requests, 1)
	atomic.AddInt64(&m.inputTokens, int64(inputTokens))
	atomic.AddInt64(&m.outputTokens, int64(outputTokens))
	atomic.AddInt64(&m.toolCalls, int64(toolCalls))
	atomic.AddInt64(&m.totalTimeMs, int64(ms))
	if isError {
		atomic.AddInt64(&m.errors, 1)
	}

	m.mu.Lock()
	if m.ewmaMs == 0 {
		m.ewmaMs = ms
	} else {
		m.ewmaMs = ewmaAlpha*ms + (1-ewmaAlpha)*m.ewmaMs
	}
	m.mu.Unlock()
}

// Snapshot is an immutable read of AgentMetrics' current values.
type Snapshot struct {
	Requests        int64
	InputTokens     int64
	OutputTokens    int64
	ToolCalls       int64
	Errors          int64
	TotalTimeMs     int64
	AvgResponseMs   float64
}

// Snapshot returns the current counter values.
func (m *AgentMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	avg := m.ewmaMs
	m.mu.Unlock()
	return Snapshot{
		Requests:      atomic.LoadInt64(&m.requests),
		InputTokens:   atomic.LoadInt64(&m.inputTokens),
		OutputTokens:  atomic.LoadInt64(&m.outputTokens),
		ToolCalls:     atomic.LoadInt64(&m.toolCalls),
		Errors:        atomic.LoadInt64(&m.errors),
		TotalTimeMs:   atomic.LoadInt64(&m.totalTimeMs),
		AvgResponseMs: avg,
	}
}
