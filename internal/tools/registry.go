package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// registeredTool bundles a Descriptor with its compiled schema and handler.
type registeredTool struct {
	descriptor Descriptor
	schema     *jsonschema.Schema
	handler    Handler
}

// Registry is the thread-safe ToolRegistry, grounded on the teacher's
// RWMutex-guarded map[string]Tool (internal/agent/tool_registry.go),
// generalized with JSON-schema parameter validation and a BM25 index.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
	bm25  *bm25Index
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools: make(map[string]*registeredTool),
		bm25:  newBM25Index(),
	}
}

// Register adds a tool by descriptor and handler. Duplicate names fail
// registration, per spec.md §4.3. The descriptor's ParametersSchema is
// derived from Parameters if not already set.
func (r *Registry) Register(d Descriptor, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tools: duplicate tool name %q", d.Name)
	}

	if len(d.ParametersSchema) == 0 {
		schemaDoc, err := BuildJSONSchema(d.Parameters)
		if err != nil {
			return fmt.Errorf("tools: build schema for %q: %w", d.Name, err)
		}
		d.ParametersSchema = schemaDoc
	}
	schema, err := CompileSchema(d.Name, d.ParametersSchema)
	if err != nil {
		return fmt.Errorf("tools: register %q: %w", d.Name, err)
	}

	r.tools[d.Name] = &registeredTool{descriptor: d, schema: schema, handler: handler}
	r.bm25.add(d)
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	r.bm25.remove(name)
}

// Get returns a tool's descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Descriptor{}, false
	}
	return t.descriptor, true
}

// Execute validates args against the tool's schema and invokes its handler.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tools: tool not found: %s", name)
	}
	if err := ValidateArguments(t.schema, args); err != nil {
		return nil, err
	}
	return t.handler(ctx, args)
}

// Catalog returns every descriptor, deterministically ordered by (kind
// priority, name) as spec.md §4.8's prompt-assembly contract requires.
func (r *Registry) Catalog() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.descriptor)
	}
	sortDescriptors(out)
	return out
}

// Search returns the top-k tool descriptors by BM25 score over
// name ⊕ description ⊕ param_names, for advanced_tool_use mode. Ties
// break by (kind priority, name), matching Catalog's ordering.
func (r *Registry) Search(query string, k int) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.bm25.search(query, k)
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			out = append(out, t.descriptor)
		}
	}
	return out
}

func sortDescriptors(ds []Descriptor) {
	sort.Slice(ds, func(i, j int) bool {
		pi, pj := kindPriority(ds[i].Kind), kindPriority(ds[j].Kind)
		if pi != pj {
			return pi > pj
		}
		return ds[i].Name < ds[j].Name
	})
}
