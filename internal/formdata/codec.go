package formdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDecode is returned when persisted text cannot be read as a params object.
var ErrDecode = errors.New("params are not a valid JSON object")

// Older writers persisted Python's non-finite float literals, which are not JSON.
var nonFinite = [][]byte{[]byte("-Infinity"), []byte("Infinity"), []byte("NaN")}

// Decode reads the persisted params text of a chart of the given type.
// Empty text and a JSON null decode to empty params.
func Decode(vizType, text string) (*Blob, error) {
	params, raw, err := DecodeParams([]byte(text))
	if err != nil {
		return nil, err
	}
	return &Blob{Type: vizType, Params: params, raw: raw}, nil
}

// DecodeParams parses a params object, keeping its top-level key order. The
// sidecar under BackupKey is kept as raw JSON. The compacted text is returned
// alongside the params.
func DecodeParams(data []byte) (*Params, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NewParams(), json.RawMessage("{}"), nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, Sanitize(trimmed)); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	raw := json.RawMessage(compact.Bytes())

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("%w: got %s", ErrDecode, kindOf(raw))
	}

	params := NewParams()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		key := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("%w: key %q: %v", ErrDecode, key, err)
		}
		if key == BackupKey {
			params.Set(key, append(json.RawMessage(nil), value...))
			continue
		}
		v, err := unmarshalValue(value)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: key %q: %v", ErrDecode, key, err)
		}
		params.Set(key, v)
	}
	return params, raw, nil
}

// DecodeValue parses any persisted JSON document with the same tolerance as
// DecodeParams. Empty text decodes to nil.
func DecodeValue(text string) (any, error) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		return nil, nil
	}
	v, err := unmarshalValue(Sanitize(trimmed))
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// unmarshalValue decodes one JSON document. Numbers become float64 unless that
// would change an integer, in which case the json.Number is kept.
func unmarshalValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return exactNumbers(v), nil
}

// Integers beyond this magnitude are not all representable as float64.
const maxExactInt = 1 << 53

func exactNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			n, err := t.Int64()
			if err != nil || n > maxExactInt || n < -maxExactInt {
				return t
			}
			return float64(n)
		}
		f, err := t.Float64()
		if err != nil {
			return t
		}
		return f
	case []any:
		for i := range t {
			t[i] = exactNumbers(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = exactNumbers(t[k])
		}
		return t
	default:
		return v
	}
}

// Encode returns the params as JSON text. Params that have not been modified
// since they were decoded are returned exactly as read.
func (b *Blob) Encode() (string, error) {
	if b.raw != nil {
		return string(b.raw), nil
	}
	data, err := encodeParams(b.Params)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MarshalValue encodes v as compact JSON without HTML escaping.
func MarshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func encodeParams(p *Params) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for pair := p.Oldest(); pair != nil; pair = pair.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, err := MarshalValue(pair.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := MarshalValue(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", pair.Key, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Sanitize replaces NaN and Infinity literals outside of strings with null.
func Sanitize(data []byte) []byte {
	if !containsNonFinite(data) {
		return data
	}

	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		if lit := nonFiniteAt(data, i); lit > 0 {
			out = append(out, "null"...)
			i += lit - 1
			continue
		}
		out = append(out, c)
	}
	return out
}

func containsNonFinite(data []byte) bool {
	return bytes.Contains(data, []byte("NaN")) || bytes.Contains(data, []byte("Infinity"))
}

// nonFiniteAt returns the length of a non-finite literal starting at i, or 0.
func nonFiniteAt(data []byte, i int) int {
	for _, lit := range nonFinite {
		if !bytes.HasPrefix(data[i:], lit) {
			continue
		}
		end := i + len(lit)
		if end < len(data) && isIdentByte(data[end]) {
			return 0
		}
		return len(lit)
	}
	return 0
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func kindOf(raw json.RawMessage) string {
	switch s := strings.TrimSpace(string(raw)); {
	case strings.HasPrefix(s, "["):
		return "array"
	case strings.HasPrefix(s, "\""):
		return "string"
	default:
		return "scalar"
	}
}
