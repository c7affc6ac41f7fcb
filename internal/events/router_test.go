package events

import (
	"context"
	"testing"

	"github.com/haasonsaas/agentcore/internal/store"
	"github.com/haasonsaas/agentcore/internal/store/memkv"
)

func TestEmitAndStream(t *testing.T) {
	r := New("memkv", memkv.NewStreamStore(), 4, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := store.Event{EventID: string(rune('a' + i)), SessionID: "s1", Type: "agent_thought"}
		if err := r.Emit(ctx, e); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	events, err := r.Stream(ctx, "s1", "")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestOverflowDropsOldestNonCritical(t *testing.T) {
	r := New("memkv", memkv.NewStreamStore(), 2, nil)
	ctx := context.Background()

	_ = r.Emit(ctx, store.Event{EventID: "1", SessionID: "s1", Type: "agent_thought"})
	_ = r.Emit(ctx, store.Event{EventID: "2", SessionID: "s1", Type: "agent_thought"})
	_ = r.Emit(ctx, store.Event{EventID: "3", SessionID: "s1", Type: "agent_thought"})

	buf := r.bufferFor("s1")
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.events.Len() != 2 {
		t.Fatalf("expected buffer capped at 2, got %d", buf.events.Len())
	}
	front := buf.events.Front().Value.(store.Event)
	if front.EventID != "2" {
		t.Fatalf("expected oldest event evicted, front is %s", front.EventID)
	}
}

func TestOverflowNeverDropsCritical(t *testing.T) {
	r := New("memkv", memkv.NewStreamStore(), 1, nil)
	ctx := context.Background()

	_ = r.Emit(ctx, store.Event{EventID: "1", SessionID: "s1", Type: "final_answer"})
	_ = r.Emit(ctx, store.Event{EventID: "2", SessionID: "s1", Type: "agent_thought"})

	if r.DroppedCount("s1") != 1 {
		t.Fatalf("expected the new event to be dropped instead of the critical one, dropped=%d", r.DroppedCount("s1"))
	}
	buf := r.bufferFor("s1")
	buf.mu.Lock()
	defer buf.mu.Unlock()
	front := buf.events.Front().Value.(store.Event)
	if front.EventID != "1" {
		t.Fatalf("expected critical event retained, front is %s", front.EventID)
	}
}

func TestSwitchToWritesHandoverMarker(t *testing.T) {
	oldBackend := memkv.NewStreamStore()
	r := New("memkv", oldBackend, 4, nil)
	ctx := context.Background()
	_ = r.Emit(ctx, store.Event{EventID: "1", SessionID: "s1", Type: "agent_thought"})

	newBackend := memkv.NewStreamStore()
	if err := r.SwitchTo(ctx, "memkv2", newBackend, "corr-1"); err != nil {
		t.Fatalf("switchTo: %v", err)
	}

	oldEvents, _ := oldBackend.Read(ctx, "s1", "", 0)
	if oldEvents[len(oldEvents)-1].Type != "routing_handover" {
		t.Fatalf("expected handover marker on old stream, got %+v", oldEvents)
	}
	newEvents, _ := newBackend.Read(ctx, "s1", "", 0)
	if newEvents[len(newEvents)-1].Type != "routing_handover" {
		t.Fatalf("expected handover marker on new stream, got %+v", newEvents)
	}
}
