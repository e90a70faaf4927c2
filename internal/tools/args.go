package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Args is a decoded tool-call argument object.
type Args map[string]any

// ParseArgs decodes the JSON argument string a model attached to a tool call.
// An empty string decodes to empty arguments.
func ParseArgs(raw string) (Args, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Args{}, nil
	}
	var args Args
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, fmt.Errorf("malformed tool arguments: %w", err)
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}

// String returns a required string argument.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

// StringOr returns a string argument or def when absent.
func (a Args) StringOr(key, def string) (string, error) {
	if _, ok := a[key]; !ok {
		return def, nil
	}
	return a.String(key)
}

// StringSlice returns an optional list-of-strings argument. Absent keys
// return nil.
func (a Args) StringSlice(key string) ([]string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be a list of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// Map returns an optional object argument. Absent keys return an empty map.
func (a Args) Map(key string) (map[string]any, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return map[string]any{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an object", key)
	}
	return m, nil
}
