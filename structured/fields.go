package structured

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Has reports whether key is present with a non-null value.
func Has(obj map[string]any, key string) bool {
	v, ok := obj[key]
	return ok && v != nil
}

// String returns obj[key] as a string, or def when absent or empty.
func String(obj map[string]any, key, def string) string {
	switch v := obj[key].(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	case nil:
		return def
	case float64, bool, json.Number:
		return fmt.Sprint(v)
	default:
		return def
	}
}

// Float returns obj[key] as a float64. Numeric strings are accepted because
// small models often quote numbers.
func Float(obj map[string]any, key string, def float64) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns obj[key] rounded to the nearest integer.
func Int(obj map[string]any, key string, def int) int {
	if !Has(obj, key) {
		return def
	}
	f := Float(obj, key, float64(def))
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// Bool returns obj[key] as a bool, accepting "true"/"false" strings.
func Bool(obj map[string]any, key string, def bool) bool {
	switch v := obj[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// StringSlice returns obj[key] as a list of strings. A bare string becomes a
// single-element list.
func StringSlice(obj map[string]any, key string) []string {
	switch v := obj[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			s := strings.TrimSpace(fmt.Sprint(item))
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
