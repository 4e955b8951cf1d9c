package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asyncdb/internal/record"
)

func TestCodec_ValuesReadableAcrossCodecs(t *testing.T) {
	rec := record.Object{"id": record.Int(1), "name": record.String("Alice")}

	for _, c := range []Codec{CodecNone, CodecSnappy} {
		t.Run(c.String(), func(t *testing.T) {
			data, err := encodeValue(c, rec)
			require.NoError(t, err)
			assert.Equal(t, byte(c)|formatBinary, data[0])

			got, err := decodeValue(data)
			require.NoError(t, err)
			assert.True(t, record.Equal(rec, got))
		})
	}
}

func TestCodec_KeepsStringsByteExact(t *testing.T) {
	rec := record.Object{
		"id":  record.String("Jose\u0301"),
		"raw": record.String("a\xffb"),
		"f":   record.Float(3),
	}

	for _, c := range []Codec{CodecNone, CodecSnappy} {
		t.Run(c.String(), func(t *testing.T) {
			data, err := encodeValue(c, rec)
			require.NoError(t, err)

			got, err := decodeValue(data)
			require.NoError(t, err)
			assert.Equal(t, rec, got)
		})
	}
}

func TestCodec_ReadsJSONPayloads(t *testing.T) {
	got, err := decodeValue(append([]byte{byte(CodecNone)}, `{"id":1,"name":"Alice"}`...))
	require.NoError(t, err)
	assert.Equal(t, record.Object{"id": record.Int(1), "name": record.String("Alice")}, got)
}

func TestCodec_RejectsUnknown(t *testing.T) {
	_, err := decodeValue([]byte{7, '{', '}'})
	assert.Error(t, err)

	_, err = decodeValue(nil)
	assert.Error(t, err)

	_, err = ParseCodec("gzip")
	assert.Error(t, err)
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecNone, c)

	c, err = ParseCodec("snappy")
	require.NoError(t, err)
	assert.Equal(t, CodecSnappy, c)
}
