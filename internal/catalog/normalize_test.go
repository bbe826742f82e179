package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONLeavesValidJSONUntouched(t *testing.T) {
	inputs := []string{
		`{"a":1,"b":[true,false,null]}`,
		`["x","y"]`,
		`{"path":"C:\\temp","quote":"say \"hi\""}`,
		`"plain"`,
		`42`,
	}
	for _, in := range inputs {
		assert.Equal(t, in, NormalizeJSON(in))
	}
}

func TestNormalizeJSONRepairs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want interface{}
	}{
		{
			name: "python literals and single quotes",
			in:   `{'a': 'b', 'c': None, 'd': True, 'e': False}`,
			want: map[string]interface{}{"a": "b", "c": nil, "d": true, "e": false},
		},
		{
			name: "single quoted array with trailing comma",
			in:   `['x', 'y',]`,
			want: []interface{}{"x", "y"},
		},
		{
			name: "double quotes inside single quoted value",
			in:   `{'q': 'say "hi"'}`,
			want: map[string]interface{}{"q": `say "hi"`},
		},
		{
			name: "escaped apostrophe",
			in:   `{'d': 'it\'s'}`,
			want: map[string]interface{}{"d": "it's"},
		},
		{
			name: "smart quotes",
			in:   "{\u201ca\u201d: \u201cb\u201d}",
			want: map[string]interface{}{"a": "b"},
		},
		{
			name: "trailing comma in object",
			in:   `{"a": 1,}`,
			want: map[string]interface{}{"a": float64(1)},
		},
		{
			name: "hex escape",
			in:   `["caf\xe9"]`,
			want: []interface{}{"café"},
		},
		{
			name: "hex escaped quote",
			in:   `["a\x22b"]`,
			want: []interface{}{`a"b`},
		},
		{
			name: "stray backslash",
			in:   `["C:\path"]`,
			want: []interface{}{`C:\path`},
		},
		{
			name: "control characters dropped from single quoted value",
			in:   "['line1\nline2']",
			want: []interface{}{"line1line2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseJSONValue(tt.in)
			require.True(t, ok, "normalized: %s", NormalizeJSON(tt.in))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeJSONRoundTrip(t *testing.T) {
	values := []interface{}{
		map[string]interface{}{"name": "Lamp", "tags": []interface{}{"a", "b"}},
		[]interface{}{float64(1), "two", nil, true},
		map[string]interface{}{"nested": map[string]interface{}{"k": `v "quoted" \ slash`}},
	}
	for _, v := range values {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		got, ok := ParseJSONValue(string(b))
		require.True(t, ok)
		assert.Equal(t, v, got)
	}
}

func TestParseHelpersNeverFail(t *testing.T) {
	garbage := []string{"", "   ", "{{{", "'''", `\`, `{'a': }`, "[1, 2", "null", "None", `{"a":`, "\x00\x01"}
	for _, g := range garbage {
		assert.NotPanics(t, func() {
			assert.NotNil(t, ParseJSONArray(g))
			assert.NotNil(t, ParseJSONObject(g))
			_, _ = ParseJSONValue(g)
		}, "input %q", g)
	}

	assert.Empty(t, ParseJSONArray(`{"a":1}`))
	assert.Empty(t, ParseJSONObject(`[1,2]`))
	assert.Equal(t, []interface{}{"a"}, ParseJSONArray(`['a']`))
	assert.Equal(t, map[string]interface{}{"k": "v"}, ParseJSONObject(`{'k': 'v'}`))
}
