package tools

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// InferParameters derives a tool's Parameter list from a Go struct type
// by structural reflection: each exported field becomes one parameter,
// named by its `json` tag (falling back to the field name), typed by its
// Go kind, and marked required unless the field is a pointer or carries
// `jsonschema:"omitempty"`.
func InferParameters(reqType reflect.Type) ([]Parameter, error) {
	for reqType.Kind() == reflect.Ptr {
		reqType = reqType.Elem()
	}
	if reqType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("tools: InferParameters requires a struct type, got %s", reqType.Kind())
	}

	seen := make(map[string]bool)
	params := make([]Parameter, 0, reqType.NumField())
	for i := 0; i < reqType.NumField(); i++ {
		field := reqType.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}
		name, omitempty := jsonFieldName(field)
		if name == "-" {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("tools: duplicate parameter name %q", name)
		}
		seen[name] = true

		p := Parameter{
			Name:        name,
			Description: field.Tag.Get("description"),
			Required:    !omitempty && field.Type.Kind() != reflect.Ptr,
		}
		t, elem := paramTypeOf(field.Type)
		p.Type = t
		p.ElementType = elem
		if enumTag := field.Tag.Get("enum"); enumTag != "" {
			p.Type = ParamEnum
			p.EnumValues = strings.Split(enumTag, ",")
		}
		params = append(params, p)
	}
	return params, nil
}

func jsonFieldName(field reflect.StructField) (name string, omitempty bool) {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty
}

func paramTypeOf(t reflect.Type) (ParamType, ParamType) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return ParamString, ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return ParamInt, ""
	case reflect.Float32, reflect.Float64:
		return ParamFloat, ""
	case reflect.Bool:
		return ParamBool, ""
	case reflect.Slice, reflect.Array:
		elemType, _ := paramTypeOf(t.Elem())
		return ParamArray, elemType
	default:
		return ParamObject, ""
	}
}

// BuildJSONSchema renders a Parameter list into a JSON Schema document
// (draft 2020-12 subset) describing the tool's input object.
func BuildJSONSchema(params []Parameter) (json.RawMessage, error) {
	properties := make(map[string]any, len(params))
	var required []string

	for _, p := range params {
		properties[p.Name] = propertySchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}

	doc := map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return json.Marshal(doc)
}

func propertySchema(p Parameter) map[string]any {
	prop := map[string]any{}
	if p.Description != "" {
		prop["description"] = p.Description
	}
	switch p.Type {
	case ParamString:
		prop["type"] = "string"
	case ParamInt:
		prop["type"] = "integer"
	case ParamFloat:
		prop["type"] = "number"
	case ParamBool:
		prop["type"] = "boolean"
	case ParamObject:
		prop["type"] = "object"
	case ParamEnum:
		prop["type"] = "string"
		enumVals := make([]any, len(p.EnumValues))
		for i, v := range p.EnumValues {
			enumVals[i] = v
		}
		prop["enum"] = enumVals
	case ParamArray:
		prop["type"] = "array"
		itemType := "string"
		switch p.ElementType {
		case ParamInt:
			itemType = "integer"
		case ParamFloat:
			itemType = "number"
		case ParamBool:
			itemType = "boolean"
		case ParamObject:
			itemType = "object"
		}
		prop["items"] = map[string]any{"type": itemType}
	}
	if p.Default != nil {
		prop["default"] = p.Default
	}
	return prop
}

// CompileSchema compiles a tool's JSON schema document for validating
// incoming arguments.
func CompileSchema(name string, schemaDoc json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	resourceURL := "tool://" + name + "/schema.json"
	if err := compiler.AddResource(resourceURL, strings.NewReader(string(schemaDoc))); err != nil {
		return nil, fmt.Errorf("tools: add schema resource: %w", err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("tools: compile schema: %w", err)
	}
	return schema, nil
}

// ValidateArguments checks raw JSON arguments against a compiled schema.
func ValidateArguments(schema *jsonschema.Schema, args json.RawMessage) error {
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("tools: arguments are not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("tools: arguments failed schema validation: %w", err)
	}
	return nil
}
