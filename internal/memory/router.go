// Package memory holds the MemoryRouter: the single point through which
// the reasoning loop appends, loads, and clears session history, with a
// pluggable KVStore backend that can be hot-swapped without losing
// in-flight sessions.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/store"
)

// Router holds the current KVStore and coordinates backend switches.
// Appends and loads take the read side of mu; switchTo takes the write
// side so in-flight appends block during the flip and reads queued
// before the flip observe the old store.
type Router struct {
	mu      sync.RWMutex
	current store.KVStore
	kind    string
	logger  *observability.Logger
}

// New creates a Router backed by the given store, identified by kind
// (e.g. "memkv", "sqlkv", "dockv", "filekv") for currentKind() and logs.
func New(kind string, backend store.KVStore, logger *observability.Logger) *Router {
	return &Router{current: backend, kind: kind, logger: logger}
}

// Append adds a message to a session's history.
func (r *Router) Append(ctx context.Context, sessionID string, msg store.Message) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Put(ctx, sessionID, msg)
}

// Load returns a session's messages, applying filter semantics on top of
// the backend's getRange.
func (r *Router) Load(ctx context.Context, sessionID string, filter store.Filter) ([]store.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs, err := r.current.GetRange(ctx, sessionID, filter.FromID, filter.Limit)
	if err != nil {
		return nil, err
	}
	if !filter.ActiveOnly {
		return msgs, nil
	}
	active := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Active {
			active = append(active, m)
		}
	}
	return active, nil
}

// UpdateActive flips the active flag on a set of message ids, used when a
// summary supersedes older messages.
func (r *Router) UpdateActive(ctx context.Context, sessionID string, ids []string, active bool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.UpdateActive(ctx, sessionID, ids, active)
}

// Clear removes a session's history entirely. An empty sessionID is
// rejected; clearing every session is not a supported operation through
// this entry point.
func (r *Router) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("memory: clear requires a session id")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Delete(ctx, sessionID)
}

// Purge removes specific messages outright on backends that support it
// (store.Purger); on backends that don't, it is a no-op and the messages
// remain as inactive rows. Used by MemorySummarizer's
// retention_policy="delete".
func (r *Router) Purge(ctx context.Context, sessionID string, ids []string) error {
	r.mu.RLock()
	backend := r.current
	r.mu.RUnlock()
	if p, ok := backend.(store.Purger); ok {
		return p.PurgeMessages(ctx, sessionID, ids)
	}
	return nil
}

// CurrentKind reports the identifier of the active backend.
func (r *Router) CurrentKind() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kind
}

// SwitchTo migrates every known session from the current backend to
// newBackend (identified by newKind), following the two-phase protocol:
// snapshot every session from the current store, bulk-write into the new
// store preserving (session_id, id, created_at) ordering and active
// flags, then atomically flip the pointer under the exclusive lock. If
// the copy phase fails, the pointer is left untouched and the old store
// remains authoritative.
func (r *Router) SwitchTo(ctx context.Context, newKind string, newBackend store.KVStore) error {
	r.mu.RLock()
	oldBackend := r.current
	r.mu.RUnlock()

	sessionIDs, err := oldBackend.ScanSessions(ctx)
	if err != nil {
		return fmt.Errorf("memory: switchTo scan sessions: %w", err)
	}

	for _, sessionID := range sessionIDs {
		if sess, ok, err := oldBackend.GetSession(ctx, sessionID); err != nil {
			return fmt.Errorf("memory: switchTo read session %s: %w", sessionID, err)
		} else if ok {
			if err := newBackend.PutSession(ctx, sess); err != nil {
				return fmt.Errorf("memory: switchTo write session %s: %w", sessionID, err)
			}
		}

		msgs, err := oldBackend.GetRange(ctx, sessionID, "", 0)
		if err != nil {
			return fmt.Errorf("memory: switchTo read messages for %s: %w", sessionID, err)
		}
		for _, msg := range msgs {
			if err := newBackend.Put(ctx, sessionID, msg); err != nil {
				return fmt.Errorf("memory: switchTo write message %s/%s: %w", sessionID, msg.ID, err)
			}
		}
	}

	r.mu.Lock()
	r.current = newBackend
	r.kind = newKind
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info(ctx, "memory router switched backend",
			"new_kind", newKind,
			"sessions_migrated", len(sessionIDs))
	}
	return nil
}
