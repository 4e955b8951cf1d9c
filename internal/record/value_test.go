package record

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGo_ConvertsNativeValues(t *testing.T) {
	v, err := FromGo(map[string]any{
		"s":   "x",
		"i":   42,
		"f":   1.5,
		"b":   true,
		"n":   nil,
		"arr": []any{1, "two"},
		"num": json.Number("9"),
	})
	require.NoError(t, err)

	want := Object{
		"s":   String("x"),
		"i":   Int(42),
		"f":   Float(1.5),
		"b":   Bool(true),
		"n":   Null{},
		"arr": Array{Int(1), String("two")},
		"num": Int(9),
	}
	assert.True(t, Equal(want, v))
}

func TestFromGo_RejectsNonFinite(t *testing.T) {
	_, err := FromGo(math.Inf(1))
	require.Error(t, err)

	_, err = FromGo(math.NaN())
	require.Error(t, err)
}

func TestFromGo_RejectsUnsupported(t *testing.T) {
	_, err := FromGo(struct{}{})
	require.Error(t, err)
}

func TestToGo_InvertsFromGo(t *testing.T) {
	in := map[string]any{"a": int64(1), "b": []any{"x", nil}, "c": map[string]any{"d": 2.5}}
	v, err := FromGo(in)
	require.NoError(t, err)
	assert.Equal(t, in, ToGo(v))
}

func TestObjectMerge_ShallowLastWriteWins(t *testing.T) {
	base := Object{"id": Int(1), "name": String("Alice"), "addr": Object{"city": String("Oslo")}}
	patch := Object{"name": String("Alicia"), "addr": Object{"zip": String("0150")}}

	merged := base.Merge(patch)

	assert.Equal(t, Int(1), merged["id"])
	assert.Equal(t, String("Alicia"), merged["name"])
	assert.True(t, Equal(Object{"zip": String("0150")}, merged["addr"]), "nested objects are replaced, not merged")
	assert.Equal(t, String("Alice"), base["name"], "base must not be mutated")
}

func TestClone_IsDeep(t *testing.T) {
	orig := Object{"list": Array{Int(1)}, "obj": Object{"k": String("v")}}
	cp := orig.Clone()

	cp["list"].(Array)[0] = Int(9)
	cp["obj"].(Object)["k"] = String("changed")

	assert.Equal(t, Int(1), orig["list"].(Array)[0])
	assert.Equal(t, String("v"), orig["obj"].(Object)["k"])
}

func TestEqual_DistinguishesIntAndFloat(t *testing.T) {
	assert.False(t, Equal(Int(1), Float(1)))
	assert.True(t, Equal(Null{}, Null{}))
	assert.False(t, Equal(Array{Int(1)}, Array{Int(1), Int(2)}))
}

func TestCompareUTF16(t *testing.T) {
	assert.Equal(t, -1, CompareUTF16("a", "b"))
	assert.Equal(t, 0, CompareUTF16("same", "same"))
	assert.Equal(t, -1, CompareUTF16("ab", "abc"))
	assert.Equal(t, -1, CompareUTF16("\U0001F600", "\uff5e"))
}
