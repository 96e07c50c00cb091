// Package formdata holds the in-memory form of a chart's persisted params and
// the codec that moves it to and from its JSON text.
package formdata

import (
	"bytes"
	"encoding/json"

	orderedmap "github.com/pb33f/ordered-map/v2"
)

// BackupKey is the params key holding the pre-migration params.
const BackupKey = "form_data_bak"

// Params is the top-level params mapping. Key order is preserved so that a
// re-encoded blob keeps the layout it was stored with.
type Params = orderedmap.OrderedMap[string, any]

// NewParams returns an empty params mapping.
func NewParams() *Params {
	return orderedmap.New[string, any]()
}

// Blob is the decoded configuration of one saved chart.
type Blob struct {
	Type   string
	Params *Params

	// raw is the compacted JSON the params were decoded from, if any.
	raw json.RawMessage
}

// NewBlob wraps params for the given chart type.
func NewBlob(vizType string, params *Params) *Blob {
	if params == nil {
		params = NewParams()
	}
	return &Blob{Type: vizType, Params: params}
}

// Get returns the value stored under key.
func (b *Blob) Get(key string) (any, bool) {
	return b.Params.Get(key)
}

// Value returns the value stored under key, or nil.
func (b *Blob) Value(key string) any {
	v, _ := b.Params.Get(key)
	return v
}

// GetString returns the value under key when it is a string.
func (b *Blob) GetString(key string) string {
	s, _ := b.Value(key).(string)
	return s
}

// Has reports whether key is present, whatever its value.
func (b *Blob) Has(key string) bool {
	_, ok := b.Params.Get(key)
	return ok
}

// Set stores value under key, keeping the key's position if it already exists.
func (b *Blob) Set(key string, value any) {
	b.Params.Set(key, value)
	b.raw = nil
}

// Delete removes key and returns its previous value.
func (b *Blob) Delete(key string) (any, bool) {
	v, ok := b.Params.Delete(key)
	if ok {
		b.raw = nil
	}
	return v, ok
}

// Keys returns the params keys in stored order.
func (b *Blob) Keys() []string {
	keys := make([]string, 0, b.Params.Len())
	for pair := b.Params.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Backup returns the raw sidecar copy of the pre-migration params.
func (b *Blob) Backup() (json.RawMessage, bool) {
	v, ok := b.Params.Get(BackupKey)
	if !ok {
		return nil, false
	}
	switch bak := v.(type) {
	case json.RawMessage:
		if len(bytes.TrimSpace(bak)) == 0 || string(bytes.TrimSpace(bak)) == "null" {
			return nil, false
		}
		return bak, true
	case nil:
		return nil, false
	default:
		raw, err := json.Marshal(bak)
		if err != nil {
			return nil, false
		}
		return raw, true
	}
}

// Snapshot returns the params as compact JSON. Params that were decoded and
// not touched since come back exactly as they were read.
func (b *Blob) Snapshot() (json.RawMessage, error) {
	if b.raw != nil {
		return append(json.RawMessage(nil), b.raw...), nil
	}
	return encodeParams(b.Params)
}

// ShallowCopy returns a blob sharing values with b but owning its key order,
// so keys can be added, renamed or removed without touching b.
func (b *Blob) ShallowCopy() *Blob {
	params := NewParams()
	for pair := b.Params.Oldest(); pair != nil; pair = pair.Next() {
		params.Set(pair.Key, pair.Value)
	}
	return &Blob{Type: b.Type, Params: params, raw: b.raw}
}

// Replace swaps in new params and forgets the decoded text.
func (b *Blob) Replace(params *Params) {
	b.Params = params
	b.raw = nil
}

// Touch marks the params as modified so Snapshot re-encodes them.
func (b *Blob) Touch() {
	b.raw = nil
}

// Clone returns an independent deep copy of b.
func (b *Blob) Clone() (*Blob, error) {
	text, err := b.Encode()
	if err != nil {
		return nil, err
	}
	return Decode(b.Type, text)
}
