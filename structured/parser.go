// Package structured pulls JSON objects out of free-form model text.
package structured

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// Parse extracts a JSON object from raw model output. It tries, in order, the
// whole trimmed text, the interior of the first fenced code block and the span
// between the first '{' and the last '}'. It never fails loudly: when nothing
// parses it returns an empty object and false.
//
// The brace strategy assumes a single top-level object; unbalanced nested
// braces in surrounding prose defeat it.
func Parse(raw string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, false
	}

	if obj, ok := decodeObject(trimmed); ok {
		return obj, true
	}

	if m := fencePattern.FindStringSubmatch(trimmed); len(m) == 2 {
		if obj, ok := decodeObject(strings.TrimSpace(m[1])); ok {
			return obj, true
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if obj, ok := decodeObject(trimmed[start : end+1]); ok {
			return obj, true
		}
	}

	return map[string]any{}, false
}

func decodeObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// Decode converts a parsed object into T by round-tripping it through JSON.
func Decode[T any](obj map[string]any) (*T, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &out, nil
}
