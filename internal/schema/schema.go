// Package schema validates worker output against a JSON Schema subset:
// type, properties, required, items, enum and additionalProperties.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Violation is one schema failure, located by a JSON-pointer-like path.
type Violation struct {
	Path   string
	Reason string
}

func (v Violation) String() string {
	path := v.Path
	if path == "" {
		path = "$"
	}
	return fmt.Sprintf("%s: %s", path, v.Reason)
}

// ValidationError collects every violation found in one document.
type ValidationError struct {
	Violations []Violation
}

func (e ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "schema validation failed"
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("schema validation failed: %s", strings.Join(parts, "; "))
}

// Schema is a parsed schema document.
type Schema struct {
	root map[string]any
}

// Parse decodes a schema document. The subset keywords are checked lazily
// during validation; unknown keywords are ignored.
func Parse(raw []byte) (*Schema, error) {
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("malformed schema document: %w", err)
	}
	return &Schema{root: root}, nil
}

// ValidateJSON decodes raw and validates it against the schema. All
// violations are collected rather than stopping at the first.
func (s *Schema) ValidateJSON(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}
	return s.Validate(doc)
}

// Validate checks an already-decoded document.
func (s *Schema) Validate(doc any) error {
	var violations []Violation
	walk(s.root, doc, "$", &violations)
	if len(violations) > 0 {
		return ValidationError{Violations: violations}
	}
	return nil
}

func walk(schema map[string]any, doc any, path string, out *[]Violation) {
	if enum, ok := schema["enum"].([]any); ok {
		if !enumContains(enum, doc) {
			*out = append(*out, Violation{Path: path, Reason: fmt.Sprintf("value %v not in enum", compactJSON(doc))})
		}
		return
	}

	if typ, ok := schema["type"].(string); ok {
		if !matchesType(typ, doc) {
			*out = append(*out, Violation{Path: path, Reason: fmt.Sprintf("expected %s, got %s", typ, typeName(doc))})
			return
		}
	}

	switch v := doc.(type) {
	case map[string]any:
		walkObject(schema, v, path, out)
	case []any:
		if items, ok := schema["items"].(map[string]any); ok {
			for i, elem := range v {
				walk(items, elem, fmt.Sprintf("%s[%d]", path, i), out)
			}
		}
	}
}

func walkObject(schema map[string]any, doc map[string]any, path string, out *[]Violation) {
	props, _ := schema["properties"].(map[string]any)

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := doc[name]; !present {
				*out = append(*out, Violation{Path: path, Reason: fmt.Sprintf("missing required property %q", name)})
			}
		}
	}

	for name, sub := range props {
		subSchema, ok := sub.(map[string]any)
		if !ok {
			continue
		}
		value, present := doc[name]
		if !present {
			continue
		}
		walk(subSchema, value, path+"."+name, out)
	}

	if additional, ok := schema["additionalProperties"].(bool); ok && !additional {
		var extras []string
		for name := range doc {
			if _, declared := props[name]; !declared {
				extras = append(extras, name)
			}
		}
		sort.Strings(extras)
		for _, name := range extras {
			*out = append(*out, Violation{Path: path, Reason: fmt.Sprintf("unexpected property %q", name)})
		}
	}
}

func matchesType(typ string, doc any) bool {
	switch typ {
	case "object":
		_, ok := doc.(map[string]any)
		return ok
	case "array":
		_, ok := doc.([]any)
		return ok
	case "string":
		_, ok := doc.(string)
		return ok
	case "boolean":
		_, ok := doc.(bool)
		return ok
	case "number":
		_, ok := doc.(float64)
		return ok
	case "integer":
		f, ok := doc.(float64)
		return ok && f == math.Trunc(f)
	case "null":
		return doc == nil
	default:
		return true
	}
}

func typeName(doc any) string {
	switch doc.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", doc)
	}
}

func enumContains(enum []any, doc any) bool {
	for _, candidate := range enum {
		if reflect.DeepEqual(candidate, doc) {
			return true
		}
	}
	return false
}

func compactJSON(doc any) string {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Sprintf("%v", doc)
	}
	return string(raw)
}
