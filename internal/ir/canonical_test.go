package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    IRValue
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"min int64", IRInt(-9223372036854775808), "-9223372036854775808"},
		{"bool true", IRBool(true), "true"},
		{"null", IRNull{}, "null"},
		{"nil", nil, "null"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"nested", IRObject{"z": IRObject{"b": IRInt(1), "a": IRInt(2)}, "a": IRInt(3)}, `{"a":3,"z":{"a":2,"b":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"html not escaped", "<a & b>", `"<a & b>"`},
		{"quote", `say "hi"`, `"say \"hi\""`},
		{"backslash", `a\b`, `"a\\b"`},
		{"newline and tab", "a\n\tb", `"a\n\tb"`},
		{"control char", "\x01", `"\u0001"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"literal backslash u2028 text", `\u2028`, `"\\u2028"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed U+00E9.
	decomposed, err := MarshalCanonical(IRObject{"cafe\u0301": IRString("cafe\u0301")})
	require.NoError(t, err)
	composed, err := MarshalCanonical(IRObject{"caf\u00e9": IRString("caf\u00e9")})
	require.NoError(t, err)
	assert.Equal(t, string(composed), string(decomposed))
}

func TestMarshalCanonicalIdempotency(t *testing.T) {
	obj := IRObject{"b": IRArray{IRInt(1), IRNull{}}, "a": IRString("x")}
	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for range 10 {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMarshalCanonicalResourceRow(t *testing.T) {
	// "@" sorts before upper-case letters, so annotations lead the row.
	row := Obj(
		O("Name", IRString("Contoso")),
		O("Id", IRInt(1)),
		O("@etag", IRString(`W/"abc"`)),
		O("Region", IRNull{}),
	)
	result, err := MarshalCanonical(row)
	require.NoError(t, err)
	assert.Equal(t, `{"@etag":"W/\"abc\"","Id":1,"Name":"Contoso","Region":null}`, string(result))
}
