package store

import (
	"fmt"

	"github.com/golang/snappy"

	"github.com/roach88/asyncdb/internal/record"
)

// Codec identifies how a stored value is compressed. It is written in the
// low bits of the first byte of every value.
type Codec byte

const (
	// CodecNone stores the payload as is.
	CodecNone Codec = 0
	// CodecSnappy stores the snappy-compressed payload.
	CodecSnappy Codec = 1
)

// formatBinary marks a payload written by record.EncodeValue. Values without
// it hold canonical JSON from earlier versions and remain readable.
const formatBinary byte = 0x80

// ParseCodec maps a compression name to a Codec. The empty string means
// CodecNone.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "snappy":
		return CodecSnappy, nil
	}
	return 0, fmt.Errorf("unknown compression %q: must be none or snappy", name)
}

// String returns the compression name.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	}
	return fmt.Sprintf("codec(%d)", byte(c))
}

func (c Codec) valid() bool {
	return c == CodecNone || c == CodecSnappy
}

// encodeValue serializes a record for storage.
func encodeValue(c Codec, rec record.Object) ([]byte, error) {
	raw, err := record.EncodeValue(rec)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	switch c {
	case CodecNone:
		return append([]byte{byte(CodecNone) | formatBinary}, raw...), nil
	case CodecSnappy:
		out := make([]byte, 1, 1+snappy.MaxEncodedLen(len(raw)))
		out[0] = byte(CodecSnappy) | formatBinary
		return append(out, snappy.Encode(nil, raw)...), nil
	}
	return nil, fmt.Errorf("encode value: unknown codec %d", c)
}

// decodeValue reverses encodeValue, honoring the codec byte of the value.
func decodeValue(data []byte) (record.Object, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode value: empty")
	}
	raw := data[1:]
	binaryPayload := data[0]&formatBinary != 0
	switch Codec(data[0] &^ formatBinary) {
	case CodecNone:
	case CodecSnappy:
		var err error
		raw, err = snappy.Decode(nil, raw)
		if err != nil {
			return nil, fmt.Errorf("decode value: %w", err)
		}
	default:
		return nil, fmt.Errorf("decode value: unknown codec %d", data[0])
	}
	var obj record.Object
	var err error
	if binaryPayload {
		obj, err = record.DecodeObject(raw)
	} else {
		obj, err = record.UnmarshalObject(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return obj, nil
}
