package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// getByPath returns the value at a dot-separated path of a nested map.
func getByPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := data
	for i, part := range parts {
		val, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return val, true
		}
		next, ok := val.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// setByPath sets a value in a nested map, creating intermediate maps.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func typeError(path, expected string, val any) error {
	return &TypeError{Path: path, Expected: expected, Actual: fmt.Sprintf("%T", val)}
}

func setString(values map[string]any, path string, dst *string) error {
	val, ok := getByPath(values, path)
	if !ok || val == nil {
		return nil
	}
	s, ok := val.(string)
	if !ok {
		return typeError(path, "string", val)
	}
	*dst = s
	return nil
}

// setContext accepts either a serialized JSON string or a table, which is
// serialized.
func setContext(values map[string]any, path string, dst *string) error {
	val, ok := getByPath(values, path)
	if !ok || val == nil {
		return nil
	}
	switch v := val.(type) {
	case string:
		*dst = v
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("setting %s: %w", path, err)
		}
		*dst = string(b)
	default:
		return typeError(path, "string or table", val)
	}
	return nil
}

func setInt(values map[string]any, path string, dst *int) error {
	val, ok := getByPath(values, path)
	if !ok || val == nil {
		return nil
	}
	switch v := val.(type) {
	case int:
		*dst = v
	case int64:
		*dst = int(v)
	case uint64:
		*dst = int(v)
	case float64:
		if v != math.Trunc(v) {
			return typeError(path, "integer", val)
		}
		*dst = int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return typeError(path, "integer", val)
		}
		*dst = n
	default:
		return typeError(path, "integer", val)
	}
	return nil
}

func setBool(values map[string]any, path string, dst *bool) error {
	val, ok := getByPath(values, path)
	if !ok || val == nil {
		return nil
	}
	switch v := val.(type) {
	case bool:
		*dst = v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return typeError(path, "boolean", val)
		}
		*dst = b
	default:
		return typeError(path, "boolean", val)
	}
	return nil
}

// setDuration accepts a Go duration string or a number of milliseconds.
func setDuration(values map[string]any, path string, dst *time.Duration) error {
	val, ok := getByPath(values, path)
	if !ok || val == nil {
		return nil
	}
	switch v := val.(type) {
	case time.Duration:
		*dst = v
	case int:
		*dst = time.Duration(v) * time.Millisecond
	case int64:
		*dst = time.Duration(v) * time.Millisecond
	case uint64:
		*dst = time.Duration(v) * time.Millisecond
	case float64:
		*dst = time.Duration(v * float64(time.Millisecond))
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return typeError(path, "duration", val)
		}
		*dst = d
	default:
		return typeError(path, "duration", val)
	}
	return nil
}

// DeepMerge recursively merges src into dst.
// Values in src override values in dst.
// Maps are merged recursively; other types are replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}
