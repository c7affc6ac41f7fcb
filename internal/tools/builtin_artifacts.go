package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/agentcore/internal/artifacts"
)

// RegisterArtifactTools auto-registers the four artifact-retrieval
// builtins (read_artifact, tail_artifact, search_artifact,
// list_artifacts) against repo, per spec.md §4.4: these let the model
// pull back full content for payloads that were offloaded out of the
// prompt. Callers invoke this only when artifact offload is enabled.
func RegisterArtifactTools(r *Registry, repo artifacts.Repository) error {
	tools := []struct {
		descriptor Descriptor
		handler    Handler
	}{
		{
			descriptor: Descriptor{
				Name:        "read_artifact",
				Description: "Read the full content of a previously offloaded tool result by its artifact id.",
				Parameters: []Parameter{
					{Name: "artifact_id", Type: ParamString, Required: true, Description: "The artifact id to read."},
				},
				Kind: KindBuiltin,
			},
			handler: readArtifactHandler(repo),
		},
		{
			descriptor: Descriptor{
				Name:        "tail_artifact",
				Description: "Read the last N lines of an offloaded artifact.",
				Parameters: []Parameter{
					{Name: "artifact_id", Type: ParamString, Required: true},
					{Name: "n_lines", Type: ParamInt, Required: false, Default: 20},
				},
				Kind: KindBuiltin,
			},
			handler: tailArtifactHandler(repo),
		},
		{
			descriptor: Descriptor{
				Name:        "search_artifact",
				Description: "Search an offloaded artifact for a case-insensitive substring match, capped at 100 hits.",
				Parameters: []Parameter{
					{Name: "artifact_id", Type: ParamString, Required: true},
					{Name: "query", Type: ParamString, Required: true},
				},
				Kind: KindBuiltin,
			},
			handler: searchArtifactHandler(repo),
		},
		{
			descriptor: Descriptor{
				Name:        "list_artifacts",
				Description: "List artifacts stored for the current session.",
				Parameters: []Parameter{
					{Name: "session_id", Type: ParamString, Required: true},
				},
				Kind: KindBuiltin,
			},
			handler: listArtifactsHandler(repo),
		},
	}

	for _, t := range tools {
		if err := r.Register(t.descriptor, t.handler); err != nil {
			return fmt.Errorf("tools: register builtin %q: %w", t.descriptor.Name, err)
		}
	}
	return nil
}

func readArtifactHandler(repo artifacts.Repository) Handler {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			ArtifactID string `json:"artifact_id"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, err
		}
		data, ref, err := repo.GetArtifact(ctx, req.ArtifactID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"content": string(data), "ref": ref})
	}
}

func tailArtifactHandler(repo artifacts.Repository) Handler {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			ArtifactID string `json:"artifact_id"`
			NLines     int    `json:"n_lines"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, err
		}
		if req.NLines <= 0 {
			req.NLines = 20
		}
		tail, err := repo.Tail(ctx, req.ArtifactID, req.NLines)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"content": tail})
	}
}

func searchArtifactHandler(repo artifacts.Repository) Handler {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			ArtifactID string `json:"artifact_id"`
			Query      string `json:"query"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, err
		}
		hits, err := repo.Search(ctx, req.ArtifactID, req.Query)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"hits": hits})
	}
}

func listArtifactsHandler(repo artifacts.Repository) Handler {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, err
		}
		refs, err := repo.ListArtifacts(ctx, artifacts.Filter{SessionID: req.SessionID})
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"artifacts": refs})
	}
}
