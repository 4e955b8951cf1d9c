package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysByUTF16(t *testing.T) {
	// U+1F600 encodes as surrogates (0xD83D...) which sort before U+FF5E
	// under UTF-16 but after it under UTF-8.
	obj := Object{
		"\uff5e":     Int(1),
		"\U0001F600": Int(2),
		"a":          Int(3),
	}

	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":3,\"\U0001F600\":2,\"\uff5e\":1}", string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(String("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(got))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	got, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshalCanonical_ControlCharacters(t *testing.T) {
	got, err := MarshalCanonical(String("tab\there\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"tab\there\u0001"`, string(got))
}

func TestMarshalCanonical_NFCNormalizes(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	got, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_FloatsKeepFraction(t *testing.T) {
	got, err := MarshalCanonical(Array{Float(1), Float(2.5), Int(3)})
	require.NoError(t, err)
	assert.Equal(t, "[1.0,2.5,3]", string(got))
}

func TestMarshalCanonical_Null(t *testing.T) {
	got, err := MarshalCanonical(Object{"gone": Null{}})
	require.NoError(t, err)
	assert.Equal(t, `{"gone":null}`, string(got))
}

func TestUnmarshal_NumbersSplitIntAndFloat(t *testing.T) {
	v, err := Unmarshal([]byte(`{"i":7,"f":7.5,"e":1e3}`))
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, Int(7), obj["i"])
	assert.Equal(t, Float(7.5), obj["f"])
	assert.Equal(t, Float(1000), obj["e"])
}

func TestUnmarshal_RejectsTrailingData(t *testing.T) {
	_, err := Unmarshal([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestUnmarshalObject_RejectsNonObject(t *testing.T) {
	_, err := UnmarshalObject([]byte(`[1,2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array")
}

func TestCanonicalRoundTrip_PreservesContent(t *testing.T) {
	in := Object{
		"name":   String("Alice"),
		"age":    Int(31),
		"score":  Float(1),
		"tags":   Array{String("a"), Bool(true), Null{}},
		"nested": Object{"x": Int(-5)},
	}

	data, err := MarshalCanonical(in)
	require.NoError(t, err)

	out, err := UnmarshalObject(data)
	require.NoError(t, err)
	assert.True(t, Equal(in, out), "round trip changed content: %s", data)
}
