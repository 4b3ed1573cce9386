package service

import (
	"encoding/json"
	"fmt"
)

// The webhook payload arrives as decoded JSON, so every field is one of
// map[string]any, []any, string, float64, bool, or nil. The helpers below
// pull typed values out of that shape without panicking on surprises.

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// optString returns a pointer to the field's string value, or nil when the
// field is absent or not a string.
func optString(m map[string]any, key string) *string {
	if m == nil {
		return nil
	}
	if s, ok := m[key].(string); ok {
		return &s
	}
	return nil
}

// optInt64 reads a numeric field as int64. JSON numbers decode as float64;
// fractional parts are truncated the way a database bigint column would.
func optInt64(m map[string]any, key string) *int64 {
	if m == nil {
		return nil
	}
	if f, ok := m[key].(float64); ok {
		n := int64(f)
		return &n
	}
	return nil
}

func optFloat(m map[string]any, key string) *float64 {
	if m == nil {
		return nil
	}
	if f, ok := m[key].(float64); ok {
		return &f
	}
	return nil
}

func optBool(m map[string]any, key string) *bool {
	if m == nil {
		return nil
	}
	if b, ok := m[key].(bool); ok {
		return &b
	}
	return nil
}

// firstString probes keys in order and returns the first string value found.
func firstString(m map[string]any, keys ...string) *string {
	for _, key := range keys {
		if s := optString(m, key); s != nil {
			return s
		}
	}
	return nil
}

// stringOf renders a scalar the way it would print in a log line. State
// fields occasionally arrive as numbers instead of strings.
func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	default:
		return fmt.Sprint(v)
	}
}

// serialize renders a payload fragment as JSON text for storage. A missing
// or nil fragment serializes as the literal "null" so downstream consumers
// always see valid JSON.
func serialize(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
