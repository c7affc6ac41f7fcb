package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// charsPerToken is the conservative token-estimation divisor used
// throughout this repo: bytes/4, never an exact tokenizer count.
const charsPerToken = 4

// DefaultMaxPreviewTokens bounds how much of a payload is kept inline as a
// preview when no caller-supplied value is configured.
const DefaultMaxPreviewTokens = 150

// MemoryRepository is the in-process ArtifactStore: content-addressed,
// backed by a pluggable Store for the bytes themselves and an in-memory
// index for metadata. Writes are idempotent under content hash.
type MemoryRepository struct {
	mu              sync.RWMutex
	store           Store
	metadata        map[string]*Metadata
	inline          map[string][]byte
	hashToID        map[string]string
	maxPreviewToken int
	logger          *slog.Logger
}

// NewMemoryRepository creates a repository backed by the given store.
func NewMemoryRepository(store Store, maxPreviewTokens int, logger *slog.Logger) *MemoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPreviewTokens <= 0 {
		maxPreviewTokens = DefaultMaxPreviewTokens
	}
	return &MemoryRepository{
		store:           store,
		metadata:        make(map[string]*Metadata),
		inline:          make(map[string][]byte),
		hashToID:        make(map[string]string),
		maxPreviewToken: maxPreviewTokens,
		logger:          logger,
	}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StoreArtifact offloads a byte payload for a session, returning a Ref the
// caller can inline in place of the payload. Putting the same bytes twice
// returns the same artifact_id (offload idempotence).
func (r *MemoryRepository) StoreArtifact(ctx context.Context, sessionID string, data []byte, mimeHint string) (Ref, error) {
	hash := contentHash(data)

	r.mu.RLock()
	if existingID, ok := r.hashToID[hash]; ok {
		if meta, ok := r.metadata[existingID]; ok {
			ref := refFromMetadata(meta, r.preview(data))
			r.mu.RUnlock()
			return ref, nil
		}
	}
	r.mu.RUnlock()

	artifactID := hash
	now := time.Now()
	meta := &Metadata{
		ID:          artifactID,
		SessionID:   sessionID,
		Type:        "tool_output",
		MimeType:    mimeHint,
		Size:        int64(len(data)),
		ContentHash: hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(GetDefaultTTL("tool_output")),
	}

	const maxInline = 1024 * 1024
	if int64(len(data)) < maxInline {
		meta.Reference = fmt.Sprintf("inline://%s", artifactID)
		r.mu.Lock()
		r.inline[artifactID] = data
		r.metadata[artifactID] = meta
		r.hashToID[hash] = artifactID
		r.mu.Unlock()
	} else {
		ref, err := r.store.Put(ctx, artifactID, bytes.NewReader(data), PutOptions{
			MimeType: mimeHint,
			TTL:      GetDefaultTTL("tool_output"),
			Metadata: map[string]string{"type": "tool_output"},
		})
		if err != nil {
			return Ref{}, fmt.Errorf("store artifact: %w", err)
		}
		meta.Reference = ref
		r.mu.Lock()
		r.metadata[artifactID] = meta
		r.hashToID[hash] = artifactID
		r.mu.Unlock()
	}

	r.logger.Info("artifact stored", "id", artifactID, "size", len(data), "session_id", sessionID)
	return refFromMetadata(meta, r.preview(data)), nil
}

// preview extracts the first maxPreviewToken tokens worth of text,
// newline-aware: it prefers to cut on a line boundary and appends an
// ellipsis marker when truncated.
func (r *MemoryRepository) preview(data []byte) string {
	maxChars := r.maxPreviewToken * charsPerToken
	text := string(data)
	if len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	if idx := strings.LastIndexByte(cut, '\n'); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return cut + "\n...[truncated]"
}

func refFromMetadata(meta *Metadata, preview string) Ref {
	return Ref{
		ArtifactID:    meta.ID,
		SessionID:     meta.SessionID,
		CreatedAt:     meta.CreatedAt,
		SizeBytes:     meta.Size,
		TokenEstimate: len(preview) / charsPerToken,
		Preview:       preview,
		MimeHint:      meta.MimeType,
	}
}

func (r *MemoryRepository) fetch(ctx context.Context, artifactID string) ([]byte, *Metadata, error) {
	r.mu.RLock()
	meta, ok := r.metadata[artifactID]
	inline, hasInline := r.inline[artifactID]
	r.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("artifact not found: %s", artifactID)
	}
	if !meta.ExpiresAt.IsZero() && time.Now().After(meta.ExpiresAt) {
		_ = r.DeleteArtifact(ctx, artifactID)
		return nil, nil, fmt.Errorf("artifact expired: %s", artifactID)
	}
	if hasInline {
		return inline, meta, nil
	}
	rc, err := r.store.Get(ctx, artifactID)
	if err != nil {
		return nil, nil, fmt.Errorf("get artifact data: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("read artifact data: %w", err)
	}
	return data, meta, nil
}

// GetArtifact returns the full payload plus a Ref describing it.
func (r *MemoryRepository) GetArtifact(ctx context.Context, artifactID string) ([]byte, Ref, error) {
	data, meta, err := r.fetch(ctx, artifactID)
	if err != nil {
		return nil, Ref{}, err
	}
	return data, refFromMetadata(meta, r.preview(data)), nil
}

// Tail returns the last n lines of the artifact's text content.
func (r *MemoryRepository) Tail(ctx context.Context, artifactID string, nLines int) (string, error) {
	data, _, err := r.fetch(ctx, artifactID)
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(data), "\n")
	if nLines <= 0 || nLines >= len(lines) {
		return string(data), nil
	}
	return strings.Join(lines[len(lines)-nLines:], "\n"), nil
}

// Search does a case-insensitive substring search, returning offset+line
// for each hit, capped at 100.
func (r *MemoryRepository) Search(ctx context.Context, artifactID string, query string) ([]SearchHit, error) {
	data, _, err := r.fetch(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}
	lowerQuery := strings.ToLower(query)
	text := string(data)
	lowerText := strings.ToLower(text)

	var hits []SearchHit
	lineStarts := []int{0}
	for i, c := range text {
		if c == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}

	searchFrom := 0
	for len(hits) < 100 {
		idx := strings.Index(lowerText[searchFrom:], lowerQuery)
		if idx < 0 {
			break
		}
		offset := searchFrom + idx
		line := lineNumberForOffset(lineStarts, offset)
		hits = append(hits, SearchHit{Line: line, Offset: offset, Text: lineAt(text, lineStarts, line)})
		searchFrom = offset + 1
		if searchFrom >= len(lowerText) {
			break
		}
	}
	return hits, nil
}

func lineNumberForOffset(lineStarts []int, offset int) int {
	line := 0
	for i, start := range lineStarts {
		if start <= offset {
			line = i
		} else {
			break
		}
	}
	return line + 1
}

func lineAt(text string, lineStarts []int, line int) string {
	idx := line - 1
	if idx < 0 || idx >= len(lineStarts) {
		return ""
	}
	start := lineStarts[idx]
	end := len(text)
	if idx+1 < len(lineStarts) {
		end = lineStarts[idx+1] - 1
	}
	if start > end || start > len(text) {
		return ""
	}
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

// ListArtifacts finds artifacts matching criteria.
func (r *MemoryRepository) ListArtifacts(ctx context.Context, filter Filter) ([]Ref, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var results []Ref
	for _, meta := range r.metadata {
		if !meta.ExpiresAt.IsZero() && now.After(meta.ExpiresAt) {
			continue
		}
		if filter.SessionID != "" && meta.SessionID != filter.SessionID {
			continue
		}
		if filter.EdgeID != "" && meta.EdgeID != filter.EdgeID {
			continue
		}
		if filter.Type != "" && meta.Type != filter.Type {
			continue
		}
		if !filter.CreatedAfter.IsZero() && meta.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if !filter.CreatedBefore.IsZero() && meta.CreatedAt.After(filter.CreatedBefore) {
			continue
		}
		results = append(results, Ref{
			ArtifactID: meta.ID,
			SessionID:  meta.SessionID,
			CreatedAt:  meta.CreatedAt,
			SizeBytes:  meta.Size,
			MimeHint:   meta.MimeType,
		})
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

// DeleteArtifact removes an artifact and its data.
func (r *MemoryRepository) DeleteArtifact(ctx context.Context, artifactID string) error {
	r.mu.Lock()
	meta, ok := r.metadata[artifactID]
	if ok {
		delete(r.metadata, artifactID)
		delete(r.inline, artifactID)
		delete(r.hashToID, meta.ContentHash)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if !strings.HasPrefix(meta.Reference, "inline://") {
		if err := r.store.Delete(ctx, artifactID); err != nil {
			r.logger.Warn("failed to delete artifact from store", "id", artifactID, "error", err)
		}
	}
	r.logger.Info("artifact deleted", "id", artifactID)
	return nil
}

// PruneExpired removes expired artifacts.
func (r *MemoryRepository) PruneExpired(ctx context.Context) (int, error) {
	r.mu.Lock()
	var expired []string
	now := time.Now()
	for id, meta := range r.metadata {
		if !meta.ExpiresAt.IsZero() && now.After(meta.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	count := 0
	for _, id := range expired {
		if err := r.DeleteArtifact(ctx, id); err == nil {
			count++
		}
	}
	if count > 0 {
		r.logger.Info("pruned expired artifacts", "count", count)
	}
	return count, nil
}
