package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"type":  "Customer",
		"joins": []any{"contacts", "orders"},
		"depth": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"depth":2,"joins":["contacts","orders"],"type":"Customer"}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(String("{a} < ? & {b} > ?"))
	require.NoError(t, err)
	assert.Equal(t, `"{a} < ? & {b} > ?"`, string(got))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	decomposed := "Cafe\u0301"
	composed := "Caf\u00e9"

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	got, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	// A literal backslash followed by "u2028" text must stay escaped.
	got, err = MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"float", 1.5},
		{"nested float", map[string]any{"a": []any{1, 2.5}}},
		{"null", nil},
		{"unsupported", struct{}{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MarshalCanonical(tc.value)
			assert.Error(t, err)
		})
	}
}

func TestObject_SortedKeysUTF16(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...) which sorts before
	// U+FF5E (0xFF5E) in UTF-16 but after it in UTF-8.
	obj := Object{"～": Int(1), "\U0001F600": Int(2)}
	assert.Equal(t, []string{"\U0001F600", "～"}, obj.SortedKeys())
}
