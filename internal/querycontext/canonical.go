// Package querycontext compares the query payloads stored on charts with the
// ones their current params would produce.
package querycontext

import (
	"sort"

	"vizmigrate/internal/formdata"
)

// Canonicalize returns a copy of v with falsy map entries removed and every
// list of objects sorted by its canonical JSON. Children are canonicalized
// first, so a map emptied by the stripping is itself stripped.
func Canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			c := Canonicalize(child)
			if !formdata.Truthy(c) {
				continue
			}
			out[k] = c
		}
		return out
	case *formdata.Params:
		m := make(map[string]any, t.Len())
		for pair := t.Oldest(); pair != nil; pair = pair.Next() {
			m[pair.Key] = pair.Value
		}
		return Canonicalize(m)
	case []any:
		out := make([]any, len(t))
		allMaps := len(t) > 0
		for i, child := range t {
			out[i] = Canonicalize(child)
			if _, ok := out[i].(map[string]any); !ok {
				allMaps = false
			}
		}
		if allMaps {
			sortByJSON(out)
		}
		return out
	default:
		return v
	}
}

func sortByJSON(list []any) {
	keys := make([]string, len(list))
	for i, item := range list {
		data, err := formdata.MarshalValue(item)
		if err != nil {
			return
		}
		keys[i] = string(data)
	}
	sort.Sort(byKey{list, keys})
}

type byKey struct {
	items []any
	keys  []string
}

func (b byKey) Len() int           { return len(b.items) }
func (b byKey) Less(i, j int) bool { return b.keys[i] < b.keys[j] }
func (b byKey) Swap(i, j int) {
	b.items[i], b.items[j] = b.items[j], b.items[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}

// CanonicalJSON serializes the canonical form of v. Map keys come out sorted.
func CanonicalJSON(v any) (string, error) {
	data, err := formdata.MarshalValue(Canonicalize(v))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Equivalent reports whether a and b have the same canonical form.
func Equivalent(a, b any) (bool, error) {
	ca, err := CanonicalJSON(a)
	if err != nil {
		return false, err
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		return false, err
	}
	return ca == cb, nil
}
