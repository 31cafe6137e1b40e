package diff

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Normalize converts a caller-supplied value to its JSON form
// (nil, bool, float64, string, []any, map[string]any).
//
// Values are normalised before diffing and persisting so that a value read
// back from any store compares equal to the value that was written.
func Normalize(v any) (any, error) {
	pv, err := structpb.NewValue(plain(v))
	if err != nil {
		return nil, fmt.Errorf("diff: value of type %T is not JSON-like: %w", v, err)
	}
	return pv.AsInterface(), nil
}

// plain rewrites typed string containers into the shapes structpb accepts
func plain(v any) any {
	switch t := v.(type) {
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
