package memory

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/agentcore/internal/store"
	"github.com/haasonsaas/agentcore/internal/store/memkv"
)

func TestRouterAppendAndLoad(t *testing.T) {
	r := New("memkv", memkv.New(), nil)
	ctx := context.Background()

	msg := store.Message{ID: "m1", SessionID: "s1", Role: store.RoleUser, Content: "hello", CreatedAt: time.Now(), Active: true}
	if err := r.Append(ctx, "s1", msg); err != nil {
		t.Fatalf("append: %v", err)
	}

	msgs, err := r.Load(ctx, "s1", store.Filter{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestRouterSwitchToPreservesOrdering(t *testing.T) {
	oldBackend := memkv.New()
	r := New("memkv", oldBackend, nil)
	ctx := context.Background()

	base := time.Now()
	for i, content := range []string{"first", "second", "third"} {
		msg := store.Message{
			ID:        string(rune('a' + i)),
			SessionID: "s1",
			Role:      store.RoleUser,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			Active:    true,
		}
		if err := r.Append(ctx, "s1", msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := oldBackend.PutSession(ctx, store.Session{SessionID: "s1", AgentID: "agent-1", CreatedAt: base}); err != nil {
		t.Fatalf("put session: %v", err)
	}

	newBackend := memkv.New()
	if err := r.SwitchTo(ctx, "memkv2", newBackend); err != nil {
		t.Fatalf("switchTo: %v", err)
	}

	if r.CurrentKind() != "memkv2" {
		t.Fatalf("expected current kind memkv2, got %s", r.CurrentKind())
	}

	msgs, err := r.Load(ctx, "s1", store.Filter{})
	if err != nil {
		t.Fatalf("load after switch: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages after migration, got %d", len(msgs))
	}
	for i, content := range []string{"first", "second", "third"} {
		if msgs[i].Content != content {
			t.Fatalf("expected ordering preserved, got %+v", msgs)
		}
	}

	if _, ok, err := newBackend.GetSession(ctx, "s1"); err != nil || !ok {
		t.Fatalf("expected session metadata migrated, ok=%v err=%v", ok, err)
	}
}

func TestRouterSwitchToFailureLeavesOldStoreAuthoritative(t *testing.T) {
	oldBackend := memkv.New()
	r := New("memkv", oldBackend, nil)
	ctx := context.Background()

	msg := store.Message{ID: "m1", SessionID: "s1", Role: store.RoleUser, Content: "hello", CreatedAt: time.Now(), Active: true}
	if err := r.Append(ctx, "s1", msg); err != nil {
		t.Fatalf("append: %v", err)
	}

	failing := &failingStore{Store: memkv.New()}
	if err := r.SwitchTo(ctx, "failing", failing); err == nil {
		t.Fatal("expected switchTo to fail")
	}

	if r.CurrentKind() != "memkv" {
		t.Fatalf("expected pointer unchanged on failure, got %s", r.CurrentKind())
	}
	msgs, err := r.Load(ctx, "s1", store.Filter{})
	if err != nil || len(msgs) != 1 {
		t.Fatalf("expected old store still authoritative, got %+v err=%v", msgs, err)
	}
}

// failingStore wraps a KVStore and fails every Put, to simulate a
// migration failure during switchTo's copy phase.
type failingStore struct {
	*memkv.Store
}

func (f *failingStore) Put(ctx context.Context, sessionID string, msg store.Message) error {
	return context.DeadlineExceeded
}
