package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// Tags of the binary value encoding.
const (
	binNull   byte = 0x00
	binFalse  byte = 0x01
	binTrue   byte = 0x02
	binInt    byte = 0x03
	binFloat  byte = 0x04
	binString byte = 0x05
	binArray  byte = 0x06
	binObject byte = 0x07

	maxValueDepth = 512
)

// EncodeValue returns the storage form of v. Unlike MarshalCanonical it is
// lossless: strings keep their exact bytes (no normalization, invalid UTF-8
// included) and Int stays distinct from Float.
//
// Layout: one tag byte, then Int as a zigzag varint, Float as 8 bytes
// big-endian, String as uvarint length and bytes, Array as uvarint count and
// elements, Object as uvarint count and (key, value) pairs in byte order of
// the keys.
func EncodeValue(v Value) ([]byte, error) {
	return appendValue(nil, v, 0)
}

func appendValue(b []byte, v Value, depth int) ([]byte, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("encode value: nesting exceeds %d levels", maxValueDepth)
	}
	switch val := v.(type) {
	case nil, Null:
		return append(b, binNull), nil
	case Bool:
		if val {
			return append(b, binTrue), nil
		}
		return append(b, binFalse), nil
	case Int:
		return binary.AppendVarint(append(b, binInt), int64(val)), nil
	case Float:
		if _, err := floatValue(float64(val)); err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		return binary.BigEndian.AppendUint64(append(b, binFloat), math.Float64bits(float64(val))), nil
	case String:
		b = binary.AppendUvarint(append(b, binString), uint64(len(val)))
		return append(b, val...), nil
	case Array:
		b = binary.AppendUvarint(append(b, binArray), uint64(len(val)))
		for i, elem := range val {
			var err error
			if b, err = appendValue(b, elem, depth+1); err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return b, nil
	case Object:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b = binary.AppendUvarint(append(b, binObject), uint64(len(keys)))
		for _, k := range keys {
			b = binary.AppendUvarint(b, uint64(len(k)))
			b = append(b, k...)
			var err error
			if b, err = appendValue(b, val[k], depth+1); err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
		}
		return b, nil
	default:
		return nil, fmt.Errorf("encode value: unsupported type %T", v)
	}
}

// DecodeValue reverses EncodeValue.
func DecodeValue(data []byte) (Value, error) {
	d := valueDecoder{data: data}
	v, err := d.value(0)
	if err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	if d.pos != len(data) {
		return nil, fmt.Errorf("decode value: %d trailing bytes", len(data)-d.pos)
	}
	return v, nil
}

// DecodeObject decodes a value that must be an Object.
func DecodeObject(data []byte) (Object, error) {
	v, err := DecodeValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("decode object: got %s", TypeName(v))
	}
	return obj, nil
}

type valueDecoder struct {
	data []byte
	pos  int
}

func (d *valueDecoder) uvarint() (uint64, error) {
	n, size := binary.Uvarint(d.data[d.pos:])
	if size <= 0 {
		return 0, fmt.Errorf("bad length at offset %d", d.pos)
	}
	d.pos += size
	return n, nil
}

func (d *valueDecoder) bytes(n uint64) ([]byte, error) {
	if n > uint64(len(d.data)-d.pos) {
		return nil, fmt.Errorf("short data at offset %d", d.pos)
	}
	out := d.data[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return out, nil
}

func (d *valueDecoder) value(depth int) (Value, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("nesting exceeds %d levels", maxValueDepth)
	}
	if d.pos >= len(d.data) {
		return nil, fmt.Errorf("unexpected end of data")
	}
	tag := d.data[d.pos]
	d.pos++

	switch tag {
	case binNull:
		return Null{}, nil
	case binFalse:
		return Bool(false), nil
	case binTrue:
		return Bool(true), nil
	case binInt:
		n, size := binary.Varint(d.data[d.pos:])
		if size <= 0 {
			return nil, fmt.Errorf("bad int at offset %d", d.pos)
		}
		d.pos += size
		return Int(n), nil
	case binFloat:
		raw, err := d.bytes(8)
		if err != nil {
			return nil, err
		}
		return floatValue(math.Float64frombits(binary.BigEndian.Uint64(raw)))
	case binString:
		n, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		raw, err := d.bytes(n)
		if err != nil {
			return nil, err
		}
		return String(raw), nil
	case binArray:
		n, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if n > uint64(len(d.data)-d.pos) {
			return nil, fmt.Errorf("array length %d exceeds data", n)
		}
		arr := make(Array, 0, n)
		for i := uint64(0); i < n; i++ {
			elem, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case binObject:
		n, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if n > uint64(len(d.data)-d.pos) {
			return nil, fmt.Errorf("object size %d exceeds data", n)
		}
		obj := make(Object, n)
		for i := uint64(0); i < n; i++ {
			klen, err := d.uvarint()
			if err != nil {
				return nil, err
			}
			k, err := d.bytes(klen)
			if err != nil {
				return nil, err
			}
			elem, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			obj[string(k)] = elem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unknown tag 0x%02x at offset %d", tag, d.pos-1)
	}
}
