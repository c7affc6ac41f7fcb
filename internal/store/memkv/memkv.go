// Package memkv is the in-memory KVStore/StreamStore variant: the default
// backend for tests and single-process deployments, grounded on the
// teacher's in-memory session store (append-only per-session slice behind
// a RWMutex).
package memkv

import (
	"context"
	"sort"
	"sync"

	"github.com/haasonsaas/agentcore/internal/store"
)

// Store is an in-memory KVStore. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages map[string][]store.Message // sessionID -> ordered messages
	sessions map[string]store.Session
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		messages: make(map[string][]store.Message),
		sessions: make(map[string]store.Session),
	}
}

func (s *Store) Put(ctx context.Context, sessionID string, msg store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	for i, existing := range msgs {
		if existing.ID == msg.ID {
			msgs[i] = msg
			return nil
		}
	}
	s.messages[sessionID] = append(msgs, msg)
	return nil
}

func (s *Store) GetRange(ctx context.Context, sessionID string, fromID string, limit int) ([]store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	sorted := make([]store.Message, len(msgs))
	copy(sorted, msgs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	start := 0
	if fromID != "" {
		for i, m := range sorted {
			if m.ID == fromID {
				start = i + 1
				break
			}
		}
	}
	result := sorted[start:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	out := make([]store.Message, len(result))
	copy(out, result)
	return out, nil
}

func (s *Store) UpdateActive(ctx context.Context, sessionID string, ids []string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	msgs := s.messages[sessionID]
	for i, m := range msgs {
		if idSet[m.ID] {
			msgs[i].Active = active
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, sessionID)
	delete(s.sessions, sessionID)
	return nil
}

func (s *Store) ScanSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) PutSession(ctx context.Context, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = sess
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok, nil
}

func (s *Store) Close() error { return nil }

// PurgeMessages implements store.Purger.
func (s *Store) PurgeMessages(ctx context.Context, sessionID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	msgs := s.messages[sessionID]
	kept := msgs[:0]
	for _, m := range msgs {
		if !idSet[m.ID] {
			kept = append(kept, m)
		}
	}
	s.messages[sessionID] = kept
	return nil
}

// StreamStore is the in-memory StreamStore companion, an independent
// append-only buffer per stream name.
type StreamStore struct {
	mu      sync.RWMutex
	streams map[string][]store.Event
}

// NewStreamStore returns an empty in-memory stream store.
func NewStreamStore() *StreamStore {
	return &StreamStore{streams: make(map[string][]store.Event)}
}

func (s *StreamStore) Append(ctx context.Context, stream string, event store.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[stream] = append(s.streams[stream], event)
	return nil
}

func (s *StreamStore) Read(ctx context.Context, stream string, afterEventID string, limit int) ([]store.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.streams[stream]
	start := 0
	if afterEventID != "" {
		for i, e := range events {
			if e.EventID == afterEventID {
				start = i + 1
				break
			}
		}
	}
	result := events[start:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	out := make([]store.Event, len(result))
	copy(out, result)
	return out, nil
}

func (s *StreamStore) Close() error { return nil }
