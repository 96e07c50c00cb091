package formdata

import (
	"encoding/json"
	"strconv"
)

// Truthy reports whether a decoded JSON value counts as set: nil, false, zero,
// empty strings and empty containers do not.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case *Params:
		return t != nil && t.Len() > 0
	case json.RawMessage:
		s := string(t)
		return s != "" && s != "null" && s != "{}" && s != "[]" && s != `""` && s != "false" && s != "0"
	default:
		return true
	}
}

// AsList returns v as a list: lists are copied, nil becomes an empty list and
// any other value becomes a one-element list.
func AsList(v any) []any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case []any:
		return append([]any{}, t...)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// AsInt converts numeric values and numeric strings to an int.
func AsInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	default:
		return 0, false
	}
}
