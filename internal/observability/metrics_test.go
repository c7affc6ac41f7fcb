package observability

import (
	"testing"
	"time"
)

func TestAgentMetricsRecordRun(t *testing.T) {
	m := NewAgentMetrics()
	m.RecordRun(100, 50, 2, 10*time.Millisecond, false)
	m.RecordRun(200, 75, 1, 20*time.Millisecond, true)

	snap := m.Snapshot()
	if snap.Requests != 2 {
		t.Fatalf("expected 2 requests, got %d", snap.Requests)
	}
	if snap.InputTokens != 300 || snap.OutputTokens != 125 {
		t.Fatalf("unexpected token totals: %+v", snap)
	}
	if snap.ToolCalls != 3 {
		t.Fatalf("expected 3 tool calls, got %d", snap.ToolCalls)
	}
	if snap.Errors != 1 {
		t.Fatalf("expected 1 error, got %d", snap.Errors)
	}
	if snap.AvgResponseMs <= 0 {
		t.Fatalf("expected a positive EWMA, got %f", snap.AvgResponseMs)
	}
}
