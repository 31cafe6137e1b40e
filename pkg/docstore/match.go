package docstore

import (
	"bytes"
	"encoding/json"
)

// Matches reports whether every filter holds for data. Values are compared by
// their JSON encoding, so int64(1) and float64(1) are equal.
func Matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok {
			return false
		}
		if !SameJSON(v, f.Value) {
			return false
		}
	}
	return true
}

// SameJSON reports whether two values encode to the same JSON
func SameJSON(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// FilterJSON encodes filters as a JSON object, e.g. {"pageType":"home"}
func FilterJSON(filters []Filter) ([]byte, error) {
	obj := make(map[string]any, len(filters))
	for _, f := range filters {
		obj[f.Field] = f.Value
	}
	return json.Marshal(obj)
}
