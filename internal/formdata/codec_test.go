package formdata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeepsKeyOrder(t *testing.T) {
	blob, err := Decode("line", `{"z": 1, "a": {"y": 2, "b": 3}, "m": [1, 2]}`)
	require.NoError(t, err)

	assert.Equal(t, "line", blob.Type)
	assert.Equal(t, []string{"z", "a", "m"}, blob.Keys())

	out, err := blob.Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":{"y":2,"b":3},"m":[1,2]}`, out)
}

func TestDecodeEmpty(t *testing.T) {
	for _, text := range []string{"", "  ", "null", "{}"} {
		blob, err := Decode("treemap", text)
		require.NoError(t, err, text)
		assert.Equal(t, 0, blob.Params.Len(), text)

		out, err := blob.Encode()
		require.NoError(t, err)
		assert.Equal(t, "{}", out)
	}
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	for _, text := range []string{`[1,2]`, `"text"`, `{"a":`, `42`} {
		_, err := Decode("treemap", text)
		assert.ErrorIs(t, err, ErrDecode, text)
	}
}

func TestDecodeToleratesNonFiniteNumbers(t *testing.T) {
	blob, err := Decode("bubble", `{"max": NaN, "min": -Infinity, "label": "NaN stays", "Infinity_x": Infinity}`)
	require.NoError(t, err)

	assert.Nil(t, blob.Value("max"))
	assert.Nil(t, blob.Value("min"))
	assert.Nil(t, blob.Value("Infinity_x"))
	assert.Equal(t, "NaN stays", blob.GetString("label"))
}

func TestDecodeKeepsLargeIntegers(t *testing.T) {
	blob, err := Decode("line", `{"big": 12345678901234567890, "nested": {"ids": [-9007199254740993, 7]}, "ratio": 0.5, "n": 30}`)
	require.NoError(t, err)

	assert.Equal(t, json.Number("12345678901234567890"), blob.Value("big"))
	assert.Equal(t, 0.5, blob.Value("ratio"))
	assert.Equal(t, 30.0, blob.Value("n"))
	nested := blob.Value("nested").(map[string]any)
	assert.Equal(t, []any{json.Number("-9007199254740993"), 7.0}, nested["ids"])

	blob.Set("touched", true)
	out, err := blob.Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"big":12345678901234567890,"nested":{"ids":[-9007199254740993,7]},"ratio":0.5,"n":30,"touched":true}`, out)

	v, err := DecodeValue(`[18446744073709551615, 1]`)
	require.NoError(t, err)
	assert.Equal(t, []any{json.Number("18446744073709551615"), 1.0}, v)

	_, err = DecodeValue(`{"a": 1} {"b": 2}`)
	assert.Error(t, err)
}

func TestSanitizeLeavesStringsAlone(t *testing.T) {
	in := []byte(`{"a":"say \"NaN\"","b":NaN,"NaNa":1}`)
	assert.Equal(t, `{"a":"say \"NaN\"","b":null,"NaNa":1}`, string(Sanitize(in)))
}

func TestBackupIsKeptRaw(t *testing.T) {
	blob, err := Decode("treemap_v2", `{"metric":"count","form_data_bak":{"order_desc":true,"metrics":["count"]}}`)
	require.NoError(t, err)

	bak, ok := blob.Backup()
	require.True(t, ok)
	assert.Equal(t, `{"order_desc":true,"metrics":["count"]}`, string(bak))
}

func TestEncodeAfterModification(t *testing.T) {
	blob, err := Decode("area", `{"b":1,"a":"<x>"}`)
	require.NoError(t, err)

	blob.Set("c", []any{"1 week ago"})
	blob.Set("b", 2)
	blob.Set(BackupKey, json.RawMessage(`{"b":1}`))

	out, err := blob.Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"b":2,"a":"<x>","c":["1 week ago"],"form_data_bak":{"b":1}}`, out)
}

func TestCloneIsIndependent(t *testing.T) {
	blob, err := Decode("pivot_table", `{"groupby":["a"]}`)
	require.NoError(t, err)

	clone, err := blob.Clone()
	require.NoError(t, err)
	clone.Set("groupby", []any{"b"})

	assert.Equal(t, []any{"a"}, blob.Value("groupby"))
	assert.Equal(t, []any{"b"}, clone.Value("groupby"))
}

func TestDecodeValue(t *testing.T) {
	v, err := DecodeValue(`{"queries":[{"metrics":[]}],"x":NaN}`)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Nil(t, m["x"])
	assert.Len(t, m["queries"], 1)

	v, err = DecodeValue("")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{nil, false},
		{"", false},
		{"auto", true},
		{0.0, false},
		{30.0, true},
		{false, false},
		{[]any{}, false},
		{[]any{nil}, true},
		{map[string]any{}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truthy(tt.value), "%#v", tt.value)
	}
}
