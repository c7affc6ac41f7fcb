// Package filekv is the local-file-backed KVStore/StreamStore variant:
// each session is an append-only JSONL file on disk, in the same
// directory-layout spirit as internal/artifacts' LocalStore, with an
// optional S3Store as a cold-storage overflow tier for sessions whose
// local file exceeds a size threshold.
package filekv

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/haasonsaas/agentcore/internal/artifacts"
	"github.com/haasonsaas/agentcore/internal/store"
)

// Store is a JSONL-file-backed KVStore. Each session gets its own file
// under basePath/messages/<session_id>.jsonl; session metadata lives in
// one sessions.jsonl file guarded by the same mutex.
type Store struct {
	mu       sync.Mutex
	basePath string

	// overflow, when set, receives sessions whose local file exceeds
	// overflowThresholdBytes; Put continues to append locally and a
	// caller-driven archive pass (Archive) copies the file up and
	// truncates it, leaving only the tail locally.
	overflow               *artifacts.S3Store
	overflowThresholdBytes int64

	sessions map[string]store.Session
}

// Option configures a Store at construction.
type Option func(*Store)

// WithOverflow wires an S3Store as the cold-storage tier and sets the
// local-file size threshold (bytes) past which Archive will offload.
func WithOverflow(s3 *artifacts.S3Store, thresholdBytes int64) Option {
	return func(s *Store) {
		s.overflow = s3
		s.overflowThresholdBytes = thresholdBytes
	}
}

// New creates a filekv store rooted at basePath.
func New(basePath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(basePath, "messages"), 0o755); err != nil {
		return nil, fmt.Errorf("create filekv directory: %w", err)
	}
	s := &Store{basePath: basePath, sessions: make(map[string]store.Session)}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.loadSessions(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) sessionsPath() string {
	return filepath.Join(s.basePath, "sessions.json")
}

func (s *Store) messagePath(sessionID string) string {
	return filepath.Join(s.basePath, "messages", sessionID+".jsonl")
}

func (s *Store) loadSessions() error {
	data, err := os.ReadFile(s.sessionsPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sessions index: %w", err)
	}
	return json.Unmarshal(data, &s.sessions)
}

func (s *Store) persistSessionsLocked() error {
	data, err := json.Marshal(s.sessions)
	if err != nil {
		return fmt.Errorf("marshal sessions index: %w", err)
	}
	tmp := s.sessionsPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sessions index: %w", err)
	}
	return os.Rename(tmp, s.sessionsPath())
}

func (s *Store) Put(ctx context.Context, sessionID string, msg store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.messagePath(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// readAll loads every message (including superseded duplicates by ID,
// deduplicated keeping the last write) for a session from its JSONL file.
func (s *Store) readAll(sessionID string) ([]store.Message, error) {
	f, err := os.Open(s.messagePath(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	byID := make(map[string]store.Message)
	order := make([]string, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var m store.Message
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			return nil, fmt.Errorf("decode message line: %w", err)
		}
		if _, seen := byID[m.ID]; !seen {
			order = append(order, m.ID)
		}
		byID[m.ID] = m
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session file: %w", err)
	}

	out := make([]store.Message, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetRange(ctx context.Context, sessionID string, fromID string, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.readAll(sessionID)
	if err != nil {
		return nil, err
	}

	start := 0
	if fromID != "" {
		for i, m := range msgs {
			if m.ID == fromID {
				start = i + 1
				break
			}
		}
	}
	result := msgs[start:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpdateActive rewrites the session file with the flag flipped, since a
// JSONL append log has no in-place update; the rewrite keeps one entry
// per id, the pattern readAll already normalizes to.
func (s *Store) UpdateActive(ctx context.Context, sessionID string, ids []string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.readAll(sessionID)
	if err != nil {
		return err
	}
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	for i := range msgs {
		if idSet[msgs[i].ID] {
			msgs[i].Active = active
		}
	}
	return s.rewriteLocked(sessionID, msgs)
}

func (s *Store) rewriteLocked(sessionID string, msgs []store.Message) error {
	tmp := s.messagePath(sessionID) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create rewrite temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, m := range msgs {
		line, err := json.Marshal(m)
		if err != nil {
			f.Close()
			return fmt.Errorf("marshal message: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("write rewrite line: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush rewrite: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.messagePath(sessionID))
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.messagePath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	delete(s.sessions, sessionID)
	return s.persistSessionsLocked()
}

func (s *Store) ScanSessions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(filepath.Join(s.basePath, "messages"))
	if err != nil {
		return nil, fmt.Errorf("scan messages dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".jsonl" {
			ids = append(ids, name[:len(name)-len(".jsonl")])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) PutSession(ctx context.Context, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = sess
	return s.persistSessionsLocked()
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok, nil
}

func (s *Store) Close() error { return nil }

// Archive offloads a session's local file to the overflow S3Store when it
// exceeds the configured threshold, then truncates the local file to empty
// (the overflow copy remains the durable record; GetRange after an archive
// only sees messages written since).
func (s *Store) Archive(ctx context.Context, sessionID string) error {
	if s.overflow == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.messagePath(sessionID))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat session file: %w", err)
	}
	if info.Size() < s.overflowThresholdBytes {
		return nil
	}

	f, err := os.Open(s.messagePath(sessionID))
	if err != nil {
		return fmt.Errorf("open session file for archive: %w", err)
	}
	defer f.Close()

	key := "sessions/" + sessionID
	if _, err := s.overflow.Put(ctx, key, f, archivePutOptions()); err != nil {
		return fmt.Errorf("archive session to overflow store: %w", err)
	}
	return os.Truncate(s.messagePath(sessionID), 0)
}

func archivePutOptions() artifacts.PutOptions {
	return artifacts.PutOptions{MimeType: "application/x-ndjson"}
}
