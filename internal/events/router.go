// Package events holds the EventRouter: the fan-out point for structured
// run events. Each session gets a bounded, non-blocking buffer; overflow
// drops the oldest non-critical event rather than blocking the caller,
// grounded on the teacher's BackpressureSink two-lane drop policy.
package events

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/store"
)

// DefaultBufferSize is the default per-session bounded buffer capacity.
const DefaultBufferSize = 1024

// criticalEventTypes are never dropped to make room for new events;
// everything else is droppable under backpressure.
var criticalEventTypes = map[string]bool{
	"final_answer":      true,
	"guardrail_blocked": true,
	"sub_agent_error":   true,
	"routing_handover":  true,
}

// Router fans events out to a StreamStore, with a bounded in-memory ring
// per session for live stream() consumers, and supports hot-swapping the
// backing StreamStore without losing events already emitted.
type Router struct {
	mu         sync.RWMutex
	backend    store.StreamStore
	kind       string
	bufferSize int
	buffers    map[string]*sessionBuffer
	dropped    map[string]uint64
	logger     *observability.Logger
}

type sessionBuffer struct {
	mu     sync.Mutex
	events *list.List // of store.Event, oldest at Front
	cap    int
}

// New creates a Router backed by the given StreamStore, identified by
// kind. bufferSize <= 0 uses DefaultBufferSize.
func New(kind string, backend store.StreamStore, bufferSize int, logger *observability.Logger) *Router {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Router{
		backend:    backend,
		kind:       kind,
		bufferSize: bufferSize,
		buffers:    make(map[string]*sessionBuffer),
		dropped:    make(map[string]uint64),
		logger:     logger,
	}
}

func (r *Router) bufferFor(sessionID string) *sessionBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buffers[sessionID]
	if !ok {
		b = &sessionBuffer{events: list.New(), cap: r.bufferSize}
		r.buffers[sessionID] = b
	}
	return b
}

// Emit appends the event to the session's bounded buffer and persists it
// to the backend StreamStore. Non-blocking: when the buffer is full, the
// oldest non-critical event is evicted to make room; if every buffered
// event is critical, the new event is itself dropped and counted.
func (r *Router) Emit(ctx context.Context, event store.Event) error {
	r.mu.RLock()
	backend := r.backend
	r.mu.RUnlock()

	buf := r.bufferFor(event.SessionID)
	buf.mu.Lock()
	if buf.events.Len() >= buf.cap {
		if !r.evictOldestNonCriticalLocked(buf) {
			buf.mu.Unlock()
			r.recordDropped(event.SessionID)
			return nil
		}
	}
	buf.events.PushBack(event)
	buf.mu.Unlock()

	if err := backend.Append(ctx, event.SessionID, event); err != nil {
		return fmt.Errorf("events: append to backend: %w", err)
	}
	return nil
}

func (r *Router) evictOldestNonCriticalLocked(buf *sessionBuffer) bool {
	for e := buf.events.Front(); e != nil; e = e.Next() {
		evt := e.Value.(store.Event)
		if !criticalEventTypes[evt.Type] {
			buf.events.Remove(e)
			return true
		}
	}
	return false
}

func (r *Router) recordDropped(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[sessionID]++
}

// DroppedCount reports how many events have been dropped for a session
// due to backpressure.
func (r *Router) DroppedCount(sessionID string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped[sessionID]
}

// Stream returns every buffered event for a session after afterEventID
// (or from the start if empty), oldest first. Restartable: callers track
// their own cursor (the last event_id seen) and pass it back in on the
// next call. The stream is conceptually infinite (finite=false): callers
// should poll again after processing the returned batch.
func (r *Router) Stream(ctx context.Context, sessionID string, afterEventID string) ([]store.Event, error) {
	r.mu.RLock()
	backend := r.backend
	r.mu.RUnlock()
	return backend.Read(ctx, sessionID, afterEventID, 0)
}

// CurrentKind reports the identifier of the active backend.
func (r *Router) CurrentKind() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kind
}

// SwitchTo migrates to a new StreamStore backend following the same
// two-phase protocol as the MemoryRouter. Events already emitted stay in
// the old stream; a routing_handover marker is written to both streams
// with a shared correlation id so stream() consumers can chain across
// the switch.
func (r *Router) SwitchTo(ctx context.Context, newKind string, newBackend store.StreamStore, correlationID string) error {
	r.mu.RLock()
	oldBackend := r.backend
	sessionIDs := make([]string, 0, len(r.buffers))
	for id := range r.buffers {
		sessionIDs = append(sessionIDs, id)
	}
	r.mu.RUnlock()

	for _, sessionID := range sessionIDs {
		events, err := oldBackend.Read(ctx, sessionID, "", 0)
		if err != nil {
			return fmt.Errorf("events: switchTo read session %s: %w", sessionID, err)
		}
		for _, e := range events {
			if err := newBackend.Append(ctx, sessionID, e); err != nil {
				return fmt.Errorf("events: switchTo write session %s: %w", sessionID, err)
			}
		}

		handover := store.Event{
			EventID:   correlationID + "-" + sessionID,
			SessionID: sessionID,
			Type:      "routing_handover",
			Payload:   map[string]any{"correlation_id": correlationID, "new_kind": newKind},
		}
		if err := oldBackend.Append(ctx, sessionID, handover); err != nil {
			return fmt.Errorf("events: switchTo mark old stream %s: %w", sessionID, err)
		}
		if err := newBackend.Append(ctx, sessionID, handover); err != nil {
			return fmt.Errorf("events: switchTo mark new stream %s: %w", sessionID, err)
		}
	}

	r.mu.Lock()
	r.backend = newBackend
	r.kind = newKind
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info(ctx, "event router switched backend", "new_kind", newKind, "sessions_migrated", len(sessionIDs))
	}
	return nil
}
