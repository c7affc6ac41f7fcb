// Package tools implements the ToolRegistry: a thread-safe catalog of
// local tool descriptors with JSON-schema parameter validation and,
// when advanced tool use is enabled, a BM25 lexical index over the
// catalog so the prompt can carry only the top-k relevant tools.
package tools

import (
	"context"
	"encoding/json"
)

// Kind orders a tool's provenance, used both for display and as the BM25
// search tie-break (local beats mcp beats skill_script).
type Kind string

const (
	KindLocal       Kind = "local"
	KindMCP         Kind = "mcp"
	KindBuiltin     Kind = "builtin"
	KindSkillScript Kind = "skill_script"
	KindSubAgent    Kind = "sub_agent"
)

// kindPriority orders Kind for BM25 tie-breaking: higher value wins.
func kindPriority(k Kind) int {
	switch k {
	case KindLocal:
		return 4
	case KindMCP:
		return 3
	case KindBuiltin:
		return 2
	case KindSkillScript:
		return 1
	default:
		return 0
	}
}

// ParamType is one of the structural types a tool parameter may declare.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInt     ParamType = "int"
	ParamFloat   ParamType = "float"
	ParamBool    ParamType = "bool"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
	ParamEnum    ParamType = "enum"
)

// Parameter describes one field of a tool's declared input, derived by
// structural reflection over the handler's request type.
type Parameter struct {
	Name        string      `json:"name"`
	Type        ParamType   `json:"type"`
	ElementType ParamType   `json:"element_type,omitempty"` // for array<T>
	Required    bool        `json:"required"`
	Default     any         `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
	EnumValues  []string    `json:"enum_values,omitempty"`
}

// Descriptor is a tool's catalog entry.
type Descriptor struct {
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	Parameters       []Parameter  `json:"parameters"`
	ParametersSchema json.RawMessage `json:"parameters_schema"`
	Kind             Kind         `json:"kind"`
}

// Handler executes a tool call given its raw JSON arguments and returns
// the raw JSON result or an error.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
